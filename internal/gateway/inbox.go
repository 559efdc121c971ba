package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/utils"
)

const maxActivitySize = 1 << 20

// HandleInbox authenticates, verifies and receives one posted activity. Nothing is written before verification
// succeeds. An activity id seen before is acknowledged without being received again, unless receiving it failed.
func (g *Gateway) HandleInbox(ctx context.Context, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActivitySize+1))
	if err != nil {
		return err
	}
	if len(body) > maxActivitySize {
		return fmt.Errorf("%w: activity larger than %d bytes", federation.ErrUnprocessablePropValue, maxActivitySize)
	}

	if err = checkDigest(r.Header.Get("Digest"), body); err != nil {
		return err
	}
	sender, err := g.authenticate(ctx, r)
	if err != nil {
		return err
	}

	a, err := Decode(ctx, body)
	if err != nil {
		return err
	}
	if err = federation.CheckDomain(a.Actor(), sender); err != nil {
		return err
	}
	if err = federation.CheckDomain(a.ID(), sender); err != nil {
		return err
	}
	if err = g.Verify(ctx, a, sender); err != nil {
		log.Warn().Err(err).Str("activity", a.ID().String()).Str("sender", sender.String()).Msg("rejected activity")
		return err
	}

	first, err := g.db.MarkReceived(ctx, a.ID(), time.Now())
	if err != nil {
		return err
	}
	if !first {
		log.Debug().Str("activity", a.ID().String()).Msg("ignoring duplicate activity")
		return nil
	}
	if err = g.Receive(ctx, a, sender); err != nil {
		// The sender retries failed deliveries; the retry must not be taken for a duplicate.
		if ferr := g.db.ForgetReceived(ctx, a.ID()); ferr != nil {
			log.Error().Err(ferr).Str("activity", a.ID().String()).Msg("failed to clear receipt mark")
		}
		return err
	}
	return nil
}

func checkDigest(header string, body []byte) error {
	if header == "" {
		return fmt.Errorf("%w: missing digest", federation.ErrVerification)
	}

	sum := sha256.Sum256(body)
	expected := base64.StdEncoding.EncodeToString(sum[:])
	for _, part := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(algo, "SHA-256") {
			if value == expected {
				return nil
			}
			return fmt.Errorf("%w: digest does not match body", federation.ErrVerification)
		}
	}
	return fmt.Errorf("%w: no SHA-256 digest", federation.ErrVerification)
}

// authenticate verifies the HTTP signature of r and returns the actor owning the signing key.
func (g *Gateway) authenticate(ctx context.Context, r *http.Request) (*url.URL, error) {
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", federation.ErrVerification, err)
	}

	keyID, err := url.Parse(verifier.KeyId())
	if err != nil || !keyID.IsAbs() {
		return nil, fmt.Errorf("%w: unable to parse keyId %q", federation.ErrVerification, verifier.KeyId())
	}

	pem, owner, err := g.resolver.PublicKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, federation.ErrVerification) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: resolving key %s: %w", federation.ErrVerification, keyID, err)
	}
	key, err := utils.ParsePublicKey(pem)
	if err != nil {
		return nil, fmt.Errorf("%w: key of %s: %w", federation.ErrVerification, owner, err)
	}

	if err = verifier.Verify(key, httpsig.RSA_SHA256); err != nil {
		return nil, fmt.Errorf("%w: %w", federation.ErrVerification, err)
	}
	log.Debug().Str("key", keyID.String()).Msg("signature verified")
	return owner, nil
}
