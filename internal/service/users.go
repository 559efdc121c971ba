package service

import (
	"context"
	"net/url"

	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

type UserService interface {
	CreatePerson(ctx context.Context, username string, admin bool) (domain.Person, error)
	GetPerson(ctx context.Context, username string) (domain.Person, error)
}

type SocialService interface {
	// Follow makes a local person, or the instance itself, follow a remote instance. The follow stays pending
	// until the instance accepts it.
	Follow(ctx context.Context, follower, instance *url.URL) (domain.Follow, error)
	// AcceptFollow confirms a follower of this instance again.
	AcceptFollow(ctx context.Context, follower *url.URL) error
	Followers(ctx context.Context) ([]domain.Follow, error)
}
