// Package gateway is the federation protocol engine. Inbound activities are authenticated, verified and then
// received; outbound activities get a fresh id and are handed to the delivery queue.
package gateway

import (
	"context"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/objects"
	"github.com/sidereusnuntius/fedwiki/internal/state"
)

// Outbox hands work to background workers.
type Outbox interface {
	Deliver(ctx context.Context, body []byte, inbox *url.URL) error
	SyncArticles(ctx context.Context, instance *url.URL) error
}

type Gateway struct {
	st       *state.State
	db       db.DB
	resolver *objects.Resolver
	outbox   Outbox
}

func New(st *state.State, resolver *objects.Resolver, outbox Outbox) *Gateway {
	return &Gateway{
		st:       st,
		db:       st.DB,
		resolver: resolver,
		outbox:   outbox,
	}
}

// Recipient is an actor an activity is addressed to.
type Recipient struct {
	Inbox       *url.URL
	SharedInbox *url.URL
}

// Inboxes returns the distinct inboxes to deliver to, using shared inboxes where advertised.
func Inboxes(recipients []Recipient) []*url.URL {
	seen := make(map[string]bool, len(recipients))
	inboxes := make([]*url.URL, 0, len(recipients))
	for _, r := range recipients {
		inbox := r.SharedInbox
		if inbox == nil {
			inbox = r.Inbox
		}
		if inbox == nil || seen[inbox.String()] {
			continue
		}
		seen[inbox.String()] = true
		inboxes = append(inboxes, inbox)
	}
	return inboxes
}

// Send assigns the activity an id, then enqueues it for every distinct recipient inbox. Local inboxes are skipped. A failure
// to enqueue one delivery is logged and does not stop the others.
func (g *Gateway) Send(ctx context.Context, a Activity, to []Recipient) (Activity, error) {
	a = a.withID(federation.NewID(g.st.Local.ApID, federation.ActivityPath))
	body, err := Encode(a)
	if err != nil {
		return a, err
	}

	for _, inbox := range Inboxes(to) {
		if g.st.IsLocal(inbox) {
			continue
		}
		if err := g.outbox.Deliver(ctx, body, inbox); err != nil {
			log.Error().Err(err).Str("inbox", inbox.String()).Str("activity", a.ID().String()).
				Msg("failed to enqueue delivery")
		}
	}

	log.Debug().Str("activity", a.ID().String()).Str("type", string(a.Kind())).Int("recipients", len(to)).
		Msg("sent activity")
	return a, nil
}
