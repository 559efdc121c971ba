package client

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/cache"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

const (
	ContentType = "application/activity+json"
	userAgent   = "fedwiki"
	// maxBody bounds the size of fetched documents.
	maxBody = 4 << 20
)

var Prefs = []httpsig.Algorithm{httpsig.RSA_SHA256}
var getHeaders = []string{httpsig.RequestTarget, "date"}
var postHeaders = []string{httpsig.RequestTarget, "date", "digest"}

// HttpClient fetches and delivers on behalf of the wiki instance actor. Every request is signed with the
// instance's key.
type HttpClient struct {
	client          *http.Client
	key             crypto.PrivateKey
	pubKeyId        *url.URL
	cache           cache.Cache
	getSigner       httpsig.Signer
	getSignerMutex  sync.Mutex
	postSigner      httpsig.Signer
	postSignerMutex sync.Mutex
}

func New(client *http.Client, key crypto.PrivateKey, prefs []httpsig.Algorithm, keyId *url.URL, c cache.Cache) (*HttpClient, error) {
	getSigner, _, err := httpsig.NewSigner(prefs, httpsig.DigestSha256, getHeaders, httpsig.Signature, 3600)
	if err != nil {
		return nil, err
	}

	postSigner, _, err := httpsig.NewSigner(prefs, httpsig.DigestSha256, postHeaders, httpsig.Signature, 3600)
	if err != nil {
		return nil, err
	}

	if c == nil {
		c = cache.Noop{}
	}
	return &HttpClient{
		client:     client,
		key:        key,
		pubKeyId:   keyId,
		cache:      c,
		getSigner:  getSigner,
		postSigner: postSigner,
	}, nil
}

// Fetch dereferences iri and decodes the JSON document.
func (c *HttpClient) Fetch(ctx context.Context, iri *url.URL) (map[string]any, error) {
	body, err := c.Dereference(ctx, iri)
	if err != nil {
		return nil, err
	}

	var props map[string]any
	if err = json.Unmarshal(body, &props); err != nil {
		log.Error().Err(err).Str("iri", iri.String()).Msg("response body unmarshaling error")
		return nil, fmt.Errorf("%w: %s is not a JSON object", federation.ErrUnprocessablePropValue, iri)
	}
	return props, nil
}

// Dereference performs a signed GET of iri, going through the cache first. Only actors are cached. A 404 or 410 response yields
// federation.ErrNotFoundIRI.
func (c *HttpClient) Dereference(ctx context.Context, iri *url.URL) ([]byte, error) {
	key := iri.String()
	if doc, ok := c.cache.Get(ctx, key); ok {
		return doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", ContentType)
	req.Header.Set("User-Agent", userAgent)

	if err = c.sign(req, nil); err != nil {
		log.Error().Err(err).Msg("error while signing request")
		return nil, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, err
	}

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		c.cache.Forget(ctx, key)
		return nil, fmt.Errorf("%w: %s", federation.ErrNotFoundIRI, iri)
	case res.StatusCode >= http.StatusBadRequest:
		log.Error().Str("status", res.Status).Bytes("response", body).Str("iri", key).Msg("fetch error")
		return nil, fmt.Errorf("fetching %s: %s", iri, res.Status)
	}

	if cacheable(body) {
		c.cache.Set(ctx, key, body)
	}
	return body, nil
}

// cacheable reports whether a document is an actor. Content and collections change with every edit and are
// always fetched.
func cacheable(body []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(body, &head) != nil {
		return false
	}
	switch head.Type {
	case "Person", "Service", "Application", "Group", "Organization":
		return true
	}
	return false
}

// Deliver posts an activity to an inbox.
func (c *HttpClient) Deliver(ctx context.Context, body []byte, to *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, to.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("User-Agent", userAgent)

	if err = c.sign(req, body); err != nil {
		return err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxBody))
		log.Error().Int("code", res.StatusCode).Bytes("response body", body).Str("inbox", to.String()).Msg("delivery error")
		return fmt.Errorf("error %d: %s", res.StatusCode, res.Status)
	}
	return nil
}

func (c *HttpClient) sign(req *http.Request, body []byte) error {
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	if req.Method == http.MethodGet {
		c.getSignerMutex.Lock()
		defer c.getSignerMutex.Unlock()
		return c.getSigner.SignRequest(c.key, c.pubKeyId.String(), req, nil)
	}

	c.postSignerMutex.Lock()
	defer c.postSignerMutex.Unlock()
	return c.postSigner.SignRequest(c.key, c.pubKeyId.String(), req, body)
}
