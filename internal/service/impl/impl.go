package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/config"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/gateway"
	"github.com/sidereusnuntius/fedwiki/internal/service"
	"github.com/sidereusnuntius/fedwiki/internal/state"
)

type AppService struct {
	Config  *config.Configuration
	DB      db.DB
	st      *state.State
	engine  *edit.Engine
	gateway *gateway.Gateway
}

func New(st *state.State, engine *edit.Engine, gw *gateway.Gateway) service.Service {
	return &AppService{
		Config:  st.Config,
		DB:      st.DB,
		st:      st,
		engine:  engine,
		gateway: gw,
	}
}

// actor returns the local person acting.
func (s *AppService) actor(ctx context.Context, id int64) (domain.Person, error) {
	p, err := s.DB.GetPersonByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return p, fmt.Errorf("%w: unknown person %d", service.ErrForbidden, id)
		}
		return p, err
	}
	if !p.Local || p.Username == domain.GhostUsername {
		return p, fmt.Errorf("%w: %s cannot act here", service.ErrForbidden, p.ApID)
	}
	return p, nil
}

// translate maps engine errors to the service's.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, edit.ErrForbidden):
		return fmt.Errorf("%w: %w", service.ErrForbidden, err)
	case errors.Is(err, edit.ErrUnknownVersion), errors.Is(err, edit.ErrInvalidPatch),
		errors.Is(err, db.ErrInvalidInput), errors.Is(err, federation.ErrUnsupported):
		return fmt.Errorf("%w: %w", service.ErrInvalidInput, err)
	}
	return err
}

// announce logs a failure to federate a change. The change itself stands.
func announce(err error, object *url.URL) {
	if err != nil {
		log.Error().Err(err).Str("object", object.String()).Msg("failed to announce change")
	}
}
