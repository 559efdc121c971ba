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
)

// FollowInstance sends a Follow from a local actor to a remote instance. The relation stays pending until the
// instance accepts it.
func (g *Gateway) FollowInstance(ctx context.Context, follower, target *url.URL) (domain.Follow, error) {
	if !g.st.IsLocal(follower) {
		return domain.Follow{}, fmt.Errorf("%w: %s is not a local actor", federation.ErrUnsupported, follower)
	}
	actor, err := g.resolver.ResolveActor(ctx, follower)
	if err != nil {
		return domain.Follow{}, err
	}
	instance, err := g.resolver.Instance(ctx, target)
	if err != nil {
		return domain.Follow{}, err
	}
	if instance.Local {
		return domain.Follow{}, fmt.Errorf("%w: an instance cannot follow itself", federation.ErrUnsupported)
	}

	existing, err := g.db.GetFollow(ctx, actor.ID, instance.ID)
	if err == nil && !existing.Pending {
		return existing, nil
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return existing, err
	}

	follow := domain.Follow{
		Follower:       actor.ID,
		FollowerInbox:  actor.Inbox,
		FollowerShared: actor.SharedInbox,
		InstanceID:     instance.ID,
		Pending:        true,
		Created:        time.Now(),
	}
	if _, err = g.db.Follow(ctx, follow); err != nil {
		return follow, err
	}

	_, err = g.Send(ctx, NewFollow(actor.ID, instance.ApID), []Recipient{{Inbox: instance.Inbox, SharedInbox: instance.SharedInbox}})
	if err == nil {
		log.Info().Str("follower", actor.ID.String()).Str("instance", instance.ApID.String()).Msg("follow sent")
	}
	return g.db.GetFollow(ctx, actor.ID, instance.ID)
}

func (g *Gateway) followers(ctx context.Context) ([]Recipient, error) {
	follows, err := g.db.Followers(ctx, g.st.Local.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	recipients := make([]Recipient, len(follows))
	for i, f := range follows {
		recipients[i] = Recipient{Inbox: f.FollowerInbox, SharedInbox: f.FollowerShared}
	}
	return recipients, nil
}

func (g *Gateway) home(ctx context.Context, a domain.Article) (Recipient, error) {
	home, err := g.db.GetInstanceByID(ctx, a.InstanceID)
	if err != nil {
		return Recipient{}, err
	}
	return Recipient{Inbox: home.Inbox, SharedInbox: home.SharedInbox}, nil
}

// PublishArticle announces a local article to the followers of this instance. Unapproved articles are withheld.
func (g *Gateway) PublishArticle(ctx context.Context, a domain.Article) error {
	if !a.Local || !a.Approved {
		return nil
	}

	w, err := g.resolver.ArticleToJSON(ctx, a, nil)
	if err != nil {
		return err
	}
	to, err := g.followers(ctx)
	if err != nil {
		return err
	}
	_, err = g.Send(ctx, NewCreate(g.st.Local.ApID, Content{Article: &w}), to)
	return err
}

// PublishEdit announces an accepted edit. Edits to local articles go to our followers once the article is
// approved. Edits made here to a cached remote article are forwarded to its home instance, whose announcement
// then reconciles every copy.
func (g *Gateway) PublishEdit(ctx context.Context, a domain.Article, e *domain.Edit) error {
	var to []Recipient
	if a.Local {
		if !a.Approved {
			log.Debug().Str("article", a.ApID.String()).Msg("withholding edit of unapproved article")
			return nil
		}
		followers, err := g.followers(ctx)
		if err != nil {
			return err
		}
		to = followers
	} else {
		home, err := g.home(ctx, a)
		if err != nil {
			return err
		}
		to = []Recipient{home}
	}

	w, err := g.resolver.ArticleToJSON(ctx, a, e)
	if err != nil {
		return err
	}
	_, err = g.Send(ctx, NewUpdate(g.st.Local.ApID, Content{Article: &w}), to)
	return err
}

// PublishComment announces a comment written here, with its latest edit, to our followers and to the home of the
// article when that is another instance.
func (g *Gateway) PublishComment(ctx context.Context, c domain.Comment, e *domain.Edit, created bool) error {
	article, err := g.db.GetArticleByID(ctx, c.ArticleID)
	if err != nil {
		return err
	}
	if article.Local && !article.Approved {
		return nil
	}

	to, err := g.followers(ctx)
	if err != nil {
		return err
	}
	if !article.Local {
		home, err := g.home(ctx, article)
		if err != nil {
			return err
		}
		to = append(to, home)
	}

	w, err := g.resolver.CommentToJSON(ctx, c, e)
	if err != nil {
		return err
	}

	var a Activity = NewUpdate(g.st.Local.ApID, Content{Comment: &w})
	if created {
		a = NewCreate(g.st.Local.ApID, Content{Comment: &w})
	}
	_, err = g.Send(ctx, a, to)
	return err
}
