package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/service"
)

func (s *AppService) Follow(ctx context.Context, follower, instance *url.URL) (domain.Follow, error) {
	if follower == nil || instance == nil {
		return domain.Follow{}, fmt.Errorf("%w: nil IRI", service.ErrInvalidInput)
	}
	if !s.st.IsLocal(follower) {
		return domain.Follow{}, fmt.Errorf("%w: %s is not a local actor", service.ErrForbidden, follower)
	}

	f, err := s.gateway.FollowInstance(ctx, follower, instance)
	return f, translate(err)
}

func (s *AppService) AcceptFollow(ctx context.Context, follower *url.URL) error {
	if follower == nil {
		return fmt.Errorf("%w: nil IRI", service.ErrInvalidInput)
	}
	return translate(s.gateway.Reaccept(ctx, follower))
}

func (s *AppService) Followers(ctx context.Context) ([]domain.Follow, error) {
	follows, err := s.DB.Followers(ctx, s.st.Local.ID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return follows, err
}
