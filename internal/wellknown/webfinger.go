// Package wellknown serves WebFinger, which lets peers find the actor behind an acct: handle. The instance itself
// answers to acct:<domain>@<domain>.
package wellknown

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/state"
)

const (
	ContentType  = "application/jrd+json"
	ActivityType = "application/activity+json"
)

type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type WebfingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []WebfingerLink `json:"links"`
}

func Mount(st *state.State, r chi.Router) {
	r.Route("/.well-known", func(r chi.Router) {
		r.Get("/webfinger", WebfingerEndpoint(st))
	})
}

// ParseResource splits an acct: resource into its user and host parts.
func ParseResource(resource string) (user, host string, err error) {
	acct, ok := strings.CutPrefix(resource, "acct:")
	if !ok {
		return "", "", fmt.Errorf("%w: resource %q is not an acct: URI", federation.ErrUnsupported, resource)
	}
	user, host, ok = strings.Cut(strings.TrimPrefix(acct, "@"), "@")
	if !ok || user == "" || host == "" {
		return "", "", fmt.Errorf("%w: malformed resource %q", federation.ErrUnprocessablePropValue, resource)
	}
	return strings.ToLower(user), strings.ToLower(host), nil
}

func lookup(r *http.Request, st *state.State, user string) (*url.URL, error) {
	if user == st.Config.Domain {
		return st.Local.ApID, nil
	}
	if user == domain.GhostUsername {
		return nil, db.ErrNotFound
	}
	p, err := st.DB.GetLocalPerson(r.Context(), user)
	if err != nil {
		return nil, err
	}
	return p.ApID, nil
}

func WebfingerEndpoint(st *state.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := r.URL.Query().Get("resource")
		user, host, err := ParseResource(resource)
		if err != nil {
			http.Error(w, "failed to parse resource", http.StatusBadRequest)
			return
		}
		if host != st.Config.Domain {
			http.Error(w, "", http.StatusNotFound)
			return
		}

		apID, err := lookup(r, st, user)
		if err != nil {
			http.Error(w, "", handleErr(err))
			return
		}

		res := WebfingerResponse{
			Subject: resource,
			Aliases: []string{apID.String()},
			Links: []WebfingerLink{
				{Rel: "self", Type: ActivityType, Href: apID.String()},
			},
		}
		w.Header().Set("Content-Type", ContentType)
		if err = json.NewEncoder(w).Encode(res); err != nil {
			log.Error().Err(err).Msg("unable to marshal webfinger response")
		}
	}
}

func handleErr(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	default:
		log.Error().Err(err).Msg("webfinger lookup failed")
		return http.StatusInternalServerError
	}
}
