package domain

import (
	"net/url"
	"time"
)

// GhostUsername is reserved for the person edits are attributed to when their author cannot be resolved.
const GhostUsername = "ghost"

type Person struct {
	ID          int64
	ApID        *url.URL
	InstanceID  int64
	Username    string
	Name        string
	Bio         string
	Inbox       *url.URL
	SharedInbox *url.URL
	PublicKey   string
	PrivateKey  string
	Admin       bool
	Local       bool
	LastRefresh time.Time
}

// CanModerate reports whether the person holds admin rights on this instance.
func (p Person) CanModerate() bool {
	return p.Local && p.Admin
}
