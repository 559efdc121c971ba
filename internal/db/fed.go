package db

import (
	"context"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

type Instances interface {
	// CreateLocalInstance stores the instance this deployment runs as. There can only be one.
	CreateLocalInstance(ctx context.Context, instance domain.Instance) (domain.Instance, error)
	GetLocalInstance(ctx context.Context) (domain.Instance, error)
	// UpsertInstance inserts a remote instance or refreshes the copy with the same ApID.
	UpsertInstance(ctx context.Context, instance domain.Instance) (domain.Instance, error)
	GetInstanceByID(ctx context.Context, id int64) (domain.Instance, error)
	GetInstanceByApID(ctx context.Context, apID *url.URL) (domain.Instance, error)
	ListRemoteInstances(ctx context.Context) ([]domain.Instance, error)
	MarkInstanceStale(ctx context.Context, id int64) error
}

type Follows interface {
	// Follow records a follow relation, or updates the pending flag and inboxes of an existing one.
	// created is false when the relation already existed.
	Follow(ctx context.Context, follow domain.Follow) (created bool, err error)
	GetFollow(ctx context.Context, follower *url.URL, instanceID int64) (domain.Follow, error)
	// Followers lists the confirmed followers of an instance.
	Followers(ctx context.Context, instanceID int64) ([]domain.Follow, error)
	// FollowedInstances lists the remote instances followed by local persons or by the local instance.
	FollowedInstances(ctx context.Context) ([]domain.Instance, error)
}

type Activities interface {
	// MarkReceived records an inbound activity id and reports whether it was seen for the first time.
	MarkReceived(ctx context.Context, id *url.URL, at time.Time) (first bool, err error)
	// ForgetReceived removes the mark of an activity whose processing failed, so a redelivery is processed.
	ForgetReceived(ctx context.Context, id *url.URL) error
}
