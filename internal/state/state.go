// Package state holds the handle threaded through every component that acts as the local instance.
package state

import (
	"crypto"
	"net/url"

	"github.com/sidereusnuntius/fedwiki/internal/config"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/utils"
)

type State struct {
	DB     db.DB
	Config *config.Configuration
	// Local is the local instance as of startup. Its identity and keys never change.
	Local domain.Instance
	Key   crypto.PrivateKey
}

func New(DB db.DB, cfg *config.Configuration, local domain.Instance) (*State, error) {
	key, err := utils.ParsePrivateKey(local.PrivateKey)
	if err != nil {
		return nil, err
	}

	return &State{
		DB:     DB,
		Config: cfg,
		Local:  local,
		Key:    key,
	}, nil
}

// KeyID is the id of the key every outgoing request is signed with.
func (s *State) KeyID() *url.URL {
	return federation.KeyID(s.Local.ApID)
}

// IsLocal reports whether iri belongs to this instance.
func (s *State) IsLocal(iri *url.URL) bool {
	return federation.SameHost(iri, s.Local.ApID)
}
