package domain

import (
	"net/url"
	"time"
)

// Instance is a federation peer. Exactly one instance is local; its private key is the only one stored.
type Instance struct {
	ID          int64
	ApID        *url.URL
	Domain      string
	Name        string
	Topic       string
	Inbox       *url.URL
	SharedInbox *url.URL
	// Articles and Instances are the instance's collections of local articles and linked instances.
	Articles    *url.URL
	Instances   *url.URL
	PublicKey   string
	PrivateKey  string
	Local       bool
	Stale       bool
	LastRefresh time.Time
}

// Follow is a directed edge from an actor (person or instance) to an instance.
type Follow struct {
	ID             int64
	Follower       *url.URL
	FollowerInbox  *url.URL
	FollowerShared *url.URL
	InstanceID     int64
	Pending        bool
	Created        time.Time
}

// DeliveryInbox returns the shared inbox when the follower advertises one.
func (f Follow) DeliveryInbox() *url.URL {
	if f.FollowerShared != nil {
		return f.FollowerShared
	}
	return f.FollowerInbox
}
