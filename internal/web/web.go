// Package web serves the federation side of the wiki: the shared inbox and the ActivityStreams documents of the
// instance, its people, articles, comments and collections.
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/config"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/gateway"
	"github.com/sidereusnuntius/fedwiki/internal/objects"
	"github.com/sidereusnuntius/fedwiki/internal/service"
	"github.com/sidereusnuntius/fedwiki/internal/state"
	"github.com/sidereusnuntius/fedwiki/internal/synchronizer"
)

const (
	ContentType = "application/activity+json"
	InboxRoute  = "/" + federation.InboxPath
)

type Handler struct {
	Config   *config.Configuration
	st       *state.State
	service  service.Service
	gateway  *gateway.Gateway
	resolver *objects.Resolver
	sync     *synchronizer.Synchronizer
}

func New(st *state.State, service service.Service, gw *gateway.Gateway, resolver *objects.Resolver, sync *synchronizer.Synchronizer) Handler {
	return Handler{
		Config:   st.Config,
		st:       st,
		service:  service,
		gateway:  gw,
		resolver: resolver,
		sync:     sync,
	}
}

// status maps an error to the response code telling a peer whether retrying makes sense.
func status(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, federation.ErrNotFoundIRI):
		return http.StatusNotFound
	case errors.Is(err, federation.ErrVerification):
		return http.StatusUnauthorized
	case errors.Is(err, edit.ErrForbidden), errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, federation.ErrMissingProperty), errors.Is(err, federation.ErrUnprocessablePropValue),
		errors.Is(err, federation.ErrUnsupported), errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, db.ErrInvalidInput), errors.Is(err, edit.ErrUnknownVersion), errors.Is(err, edit.ErrInvalidPatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	e := log.Debug()
	if code == http.StatusInternalServerError {
		e = log.Error()
	}
	e.Err(err).Str("path", r.URL.Path).Int("status", code).Msg("request failed")
	http.Error(w, http.StatusText(code), code)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	if _, err = w.Write(body); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("failed to write response")
	}
}
