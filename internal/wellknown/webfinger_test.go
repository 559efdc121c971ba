package wellknown

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/testutil"
)

var fx *testutil.Fixture

func TestMain(m *testing.M) {
	var err error
	if fx, err = testutil.New(context.Background(), "wellknown", "../../migrations"); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
	}
	m.Run()
}

func TestParseResource(t *testing.T) {
	cases := []struct {
		resource   string
		user, host string
		err        error
	}{
		{resource: "acct:admin@local.test", user: "admin", host: "local.test"},
		{resource: "acct:@Admin@Local.test", user: "admin", host: "local.test"},
		{resource: "https://local.test/user/admin", err: federation.ErrUnsupported},
		{resource: "acct:admin", err: federation.ErrUnprocessablePropValue},
		{resource: "acct:@local.test", err: federation.ErrUnprocessablePropValue},
	}

	for _, c := range cases {
		t.Run(c.resource, func(t *testing.T) {
			user, host, err := ParseResource(c.resource)
			if !errors.Is(err, c.err) {
				t.Fatalf("expected %v, got %v", c.err, err)
			}
			if user != c.user || host != c.host {
				t.Errorf("got %q at %q", user, host)
			}
		})
	}
}

func TestWebfinger(t *testing.T) {
	r := chi.NewRouter()
	Mount(fx.State, r)

	cases := []struct {
		name     string
		resource string
		status   int
		href     string
	}{
		{name: "Person", resource: "acct:admin@local.test", status: http.StatusOK, href: fx.Admin.ApID.String()},
		{name: "Instance", resource: "acct:local.test@local.test", status: http.StatusOK, href: testutil.LocalURL},
		{name: "Ghost", resource: "acct:ghost@local.test", status: http.StatusNotFound},
		{name: "Unknown", resource: "acct:nobody@local.test", status: http.StatusNotFound},
		{name: "OtherHost", resource: "acct:admin@remote.test", status: http.StatusNotFound},
		{name: "Malformed", resource: "admin", status: http.StatusBadRequest},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource="+url.QueryEscape(c.resource), nil))
			if w.Code != c.status {
				t.Fatalf("expected %d, got %d", c.status, w.Code)
			}
			if c.status != http.StatusOK {
				return
			}

			if ct := w.Header().Get("Content-Type"); ct != ContentType {
				t.Errorf("content type %q", ct)
			}
			var res WebfingerResponse
			if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
				t.Fatal(err)
			}
			want := WebfingerResponse{
				Subject: c.resource,
				Aliases: []string{c.href},
				Links:   []WebfingerLink{{Rel: "self", Type: ActivityType, Href: c.href}},
			}
			if diff := cmp.Diff(want, res); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
