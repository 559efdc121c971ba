package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/initialization"
	"github.com/sidereusnuntius/fedwiki/internal/service"
	"github.com/sidereusnuntius/fedwiki/internal/validate"
)

func (s *AppService) CreatePerson(ctx context.Context, username string, admin bool) (domain.Person, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if err := validate.Username(username); err != nil {
		return domain.Person{}, fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}
	if username == domain.GhostUsername || username == s.Config.Domain {
		return domain.Person{}, fmt.Errorf("%w: username %q is reserved", service.ErrInvalidInput, username)
	}

	return initialization.CreateLocalPerson(ctx, s.DB, s.Config, s.st.Local, username, admin)
}

func (s *AppService) GetPerson(ctx context.Context, username string) (domain.Person, error) {
	return s.DB.GetLocalPerson(ctx, strings.ToLower(strings.TrimSpace(username)))
}
