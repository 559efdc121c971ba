package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/objects"
)

// Verify checks an activity received from sender before anything is written.
func (g *Gateway) Verify(ctx context.Context, a Activity, sender *url.URL) error {
	switch a := a.(type) {
	case Follow:
		// Only this instance can be followed.
		if a.Object.String() != g.st.Local.ApID.String() {
			return fmt.Errorf("%w: follow of %s", federation.ErrUnsupported, a.Object)
		}
		return nil
	case Accept:
		if !g.st.IsLocal(a.Follow.Actor()) {
			return fmt.Errorf("%w: accept of a follow by %s", federation.ErrVerification, a.Follow.Actor())
		}
		return federation.CheckDomain(a.Follow.Object, sender)
	case Create:
		return g.verifyContent(a.Object, sender)
	case Update:
		return g.verifyContent(a.Object, sender)
	default:
		return fmt.Errorf("%w: %T", federation.ErrUnsupported, a)
	}
}

func (g *Gateway) verifyContent(c Content, sender *url.URL) error {
	switch {
	case c.Article != nil:
		return g.resolver.VerifyArticle(*c.Article, sender)
	case c.Comment != nil:
		return g.resolver.VerifyComment(*c.Comment, sender)
	default:
		return fmt.Errorf("%w: object", federation.ErrMissingProperty)
	}
}

// Receive applies a verified activity.
func (g *Gateway) Receive(ctx context.Context, a Activity, sender *url.URL) error {
	switch a := a.(type) {
	case Follow:
		return g.AcceptFollow(ctx, a)
	case Accept:
		return g.receiveAccept(ctx, a)
	case Create:
		return g.receiveContent(ctx, a.Object, sender)
	case Update:
		return g.receiveContent(ctx, a.Object, sender)
	default:
		return fmt.Errorf("%w: %T", federation.ErrUnsupported, a)
	}
}

// AcceptFollow records a follow of this instance and answers it with an Accept. The relation is confirmed
// immediately; repeating a Follow leaves a single relation and is accepted again.
func (g *Gateway) AcceptFollow(ctx context.Context, f Follow) error {
	actor, err := g.resolver.ResolveActor(ctx, f.Actor())
	if err != nil {
		return fmt.Errorf("resolving follower %s: %w", f.Actor(), err)
	}

	created, err := g.db.Follow(ctx, domain.Follow{
		Follower:       actor.ID,
		FollowerInbox:  actor.Inbox,
		FollowerShared: actor.SharedInbox,
		InstanceID:     g.st.Local.ID,
		Pending:        false,
		Created:        time.Now(),
	})
	if err != nil {
		return err
	}
	log.Info().Str("follower", actor.ID.String()).Bool("new", created).Msg("accepted follow")

	_, err = g.Send(ctx, NewAccept(g.st.Local.ApID, f), []Recipient{{Inbox: actor.Inbox, SharedInbox: actor.SharedInbox}})
	return err
}

// Reaccept answers a confirmed follower of this instance again, for when our first Accept was lost. The Follow
// is rebuilt with a fresh id since the original one is not kept.
func (g *Gateway) Reaccept(ctx context.Context, follower *url.URL) error {
	actor, err := g.resolver.ResolveActor(ctx, follower)
	if err != nil {
		return err
	}
	if _, err = g.db.GetFollow(ctx, actor.ID, g.st.Local.ID); err != nil {
		return fmt.Errorf("follow of %s: %w", follower, err)
	}

	f := NewFollow(actor.ID, g.st.Local.ApID)
	f.IRI = federation.NewID(g.st.Local.ApID, federation.ActivityPath)
	return g.AcceptFollow(ctx, f)
}

// receiveAccept confirms a follow sent from here and schedules fetching the followed instance's articles.
func (g *Gateway) receiveAccept(ctx context.Context, a Accept) error {
	instance, err := g.resolver.Instance(ctx, a.Follow.Object)
	if err != nil {
		return err
	}
	follower, err := g.resolver.ResolveActor(ctx, a.Follow.Actor())
	if err != nil {
		return fmt.Errorf("follower %s: %w", a.Follow.Actor(), err)
	}

	previous, err := g.db.GetFollow(ctx, follower.ID, instance.ID)
	if err == nil && !previous.Pending {
		log.Debug().Str("instance", instance.ApID.String()).Msg("follow already accepted")
		return nil
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}

	if _, err = g.db.Follow(ctx, domain.Follow{
		Follower:       follower.ID,
		FollowerInbox:  follower.Inbox,
		FollowerShared: follower.SharedInbox,
		InstanceID:     instance.ID,
		Pending:        false,
		Created:        time.Now(),
	}); err != nil {
		return err
	}
	log.Info().Str("follower", follower.ID.String()).Str("instance", instance.ApID.String()).Msg("follow accepted")

	if err = g.outbox.SyncArticles(ctx, instance.ApID); err != nil {
		log.Error().Err(err).Str("instance", instance.ApID.String()).Msg("failed to schedule article sync")
	}
	return nil
}

// receiveContent applies an article or comment. An edit accepted into a local article is announced to our
// followers, which include the instance that contributed it.
func (g *Gateway) receiveContent(ctx context.Context, c Content, sender *url.URL) error {
	var (
		o   objects.Outcome
		err error
	)
	if c.Article != nil {
		o, err = g.resolver.ReceiveArticle(ctx, *c.Article, sender)
	} else {
		o, err = g.resolver.ReceiveComment(ctx, *c.Comment, sender)
	}
	if err != nil {
		log.Warn().Err(err).Str("object", c.id()).Str("sender", sender.String()).Msg("failed to receive object")
		return err
	}

	switch {
	case o.Result.Conflict != nil:
		log.Info().Str("object", c.id()).Int64("conflict", o.Result.Conflict.ID).Msg("received edit conflicts")
	case o.Comment == nil && o.Article.Local && o.Accepted() != nil:
		return g.PublishEdit(ctx, *o.Article, o.Accepted())
	}
	return nil
}
