package client

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"code.superseriousbusiness.org/httpsig"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

var key *rsa.PrivateKey
var algo = httpsig.RSA_SHA256
var ctx = context.Background()
var keyId, _ = url.Parse("http://localhost:8080#main-key")

func TestMain(m *testing.M) {
	var err error
	key, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
		return
	}

	m.Run()
}

type mapCache struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[key]
	return doc, ok
}

func (c *mapCache) Set(_ context.Context, key string, doc []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[key] = doc
}

func (c *mapCache) Forget(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, key)
}

func verify(t *testing.T, path string, response string, hits *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		verifier, err := httpsig.NewVerifier(r)
		if err != nil {
			t.Error(err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if path != r.URL.Path {
			t.Errorf("expected path %s, got %s", path, r.URL.Path)
		}
		if verifier.KeyId() != keyId.String() {
			t.Errorf("expected key id %s, got %s", keyId, verifier.KeyId())
		}

		if err = verifier.Verify(&key.PublicKey, algo); err != nil {
			t.Error("signature validation error:", err)
			http.Error(w, "", http.StatusUnauthorized)
			return
		}

		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			if r.Header.Get("Digest") == "" {
				t.Error("missing digest header")
			}
			if string(body) != response {
				t.Errorf("unexpected body %q", body)
			}
		}
		w.Write([]byte(response))
	})
}

func newClient(t *testing.T) (*HttpClient, *mapCache) {
	t.Helper()
	c := &mapCache{docs: map[string][]byte{}}
	client, err := New(&http.Client{}, key, []httpsig.Algorithm{algo}, keyId, c)
	if err != nil {
		t.Fatal(err)
	}
	return client, c
}

func TestFetch(t *testing.T) {
	client, _ := newClient(t)

	cases := []struct {
		name string
		path string
		body string
		hits int
	}{
		{
			name: "ActorIsCached",
			path: "/user/sarah",
			body: `{"type":"Person","name":"Go"}`,
			hits: 1,
		},
		{
			name: "ArticleIsNot",
			path: "/article/Go",
			body: `{"type":"Article","name":"Go"}`,
			hits: 2,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var hits int
			server := httptest.NewServer(verify(t, c.path, c.body, &hits))
			defer server.Close()
			u, _ := url.Parse(server.URL)

			props, err := client.Fetch(ctx, u.JoinPath(c.path))
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if props["name"] != "Go" {
				t.Errorf("unexpected document %v", props)
			}

			if _, err = client.Fetch(ctx, u.JoinPath(c.path)); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if hits != c.hits {
				t.Errorf("expected %d requests, server saw %d", c.hits, hits)
			}
		})
	}
}

func TestFetchNotFound(t *testing.T) {
	client, c := newClient(t)
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	u, _ := url.Parse(server.URL + "/gone")
	c.Set(ctx, "unrelated", []byte("{}"))

	_, err := client.Fetch(ctx, u)
	if !errors.Is(err, federation.ErrNotFoundIRI) {
		t.Errorf("expected ErrNotFoundIRI, got %v", err)
	}
	if _, ok := c.Get(ctx, u.String()); ok {
		t.Error("a missing document must not be cached")
	}
}

func TestFetchNotJSON(t *testing.T) {
	client, _ := newClient(t)
	var hits int
	server := httptest.NewServer(verify(t, "/html", "<html></html>", &hits))
	defer server.Close()
	u, _ := url.Parse(server.URL + "/html")

	if _, err := client.Fetch(ctx, u); !errors.Is(err, federation.ErrUnprocessablePropValue) {
		t.Errorf("expected ErrUnprocessablePropValue, got %v", err)
	}
}

func TestDeliver(t *testing.T) {
	client, _ := newClient(t)
	body := `{"type":"Follow"}`

	var hits int
	server := httptest.NewServer(verify(t, "/inbox", body, &hits))
	defer server.Close()
	u, _ := url.Parse(server.URL + "/inbox")

	if err := client.Deliver(ctx, []byte(body), u); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if hits != 1 {
		t.Errorf("expected one delivery, got %d", hits)
	}
}

func TestDeliverRejected(t *testing.T) {
	client, _ := newClient(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer server.Close()
	u, _ := url.Parse(server.URL + "/inbox")

	if err := client.Deliver(ctx, []byte("{}"), u); err == nil {
		t.Error("expected error")
	}
}
