package edit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

type NewArticle struct {
	Instance domain.Instance
	// ApID is set for copies of remote articles; local articles get one derived from their title.
	ApID      *url.URL
	Title     string
	Text      string
	Summary   string
	Author    domain.Person
	Protected bool
	Approved  bool
	Published time.Time
}

// CreateArticle stores a new article at the initial version and, when text is not empty, submits it as the
// first edit.
func (e *Engine) CreateArticle(ctx context.Context, n NewArticle) (domain.Article, Result, error) {
	apID := n.ApID
	if apID == nil {
		apID = federation.ArticleIRI(n.Instance.ApID, n.Title)
	}
	published := n.Published
	if published.IsZero() {
		published = time.Now()
	}

	article, err := e.db.CreateArticle(ctx, domain.Article{
		ApID:       apID,
		InstanceID: n.Instance.ID,
		Title:      n.Title,
		Head:       domain.InitialVersion,
		Local:      n.Instance.Local,
		Protected:  n.Protected,
		Approved:   n.Approved,
		Published:  published,
		Updated:    published,
	}, nil)
	if err != nil {
		return domain.Article{}, Result{}, err
	}

	if n.Text == "" {
		return article, Result{Head: article.Head}, nil
	}

	r, err := e.Submit(ctx, Submission{
		Target:        domain.ArticleTarget(article.ID),
		BasedOn:       domain.InitialVersion,
		Patch:         diff.FindPatches("", n.Text),
		Summary:       n.Summary,
		Author:        n.Author,
		Authoritative: true,
	})
	if err != nil {
		return article, Result{}, err
	}

	article, err = e.db.GetArticleByID(ctx, article.ID)
	return article, r, err
}

// Fork copies an article with its whole history into dest under title. The copy starts at the source's head
// and is independent from then on. An unapproved fork stays hidden like any new article.
func (e *Engine) Fork(ctx context.Context, articleID int64, dest domain.Instance, title string, approved bool) (domain.Article, error) {
	source, edits, err := e.snapshot(ctx, articleID)
	if err != nil {
		return domain.Article{}, err
	}

	copies := make([]domain.Edit, len(edits))
	for i, edit := range edits {
		edit.ID = 0
		edit.ApID = e.newID("edit")
		edit.Source = nil
		edit.Local = false
		copies[i] = edit
	}

	now := time.Now()
	fork, err := e.db.CreateArticle(ctx, domain.Article{
		ApID:       federation.ArticleIRI(dest.ApID, title),
		InstanceID: dest.ID,
		Title:      title,
		Text:       source.Text,
		Head:       source.Head,
		Local:      dest.Local,
		Approved:   approved,
		Published:  now,
		Updated:    now,
	}, copies)
	if err != nil {
		return domain.Article{}, err
	}

	log.Info().Str("source", source.ApID.String()).Str("fork", fork.ApID.String()).
		Str("head", fork.Head.Short()).Msg("article forked")
	return fork, nil
}

// snapshot reads an article and its history as of one point in time.
func (e *Engine) snapshot(ctx context.Context, articleID int64) (domain.Article, []domain.Edit, error) {
	unlock := e.locks.Lock(lockKey(domain.ArticleTarget(articleID)))
	defer unlock()

	article, err := e.db.GetArticleByID(ctx, articleID)
	if err != nil {
		return domain.Article{}, nil, err
	}
	edits, err := e.db.ListEdits(ctx, domain.ArticleTarget(articleID))
	return article, edits, err
}

func requireAdmin(actor domain.Person, action string) error {
	if !actor.CanModerate() {
		return fmt.Errorf("%w: %s requires admin rights", ErrForbidden, action)
	}
	return nil
}

func (e *Engine) Protect(ctx context.Context, articleID int64, actor domain.Person, protected bool) error {
	if err := requireAdmin(actor, "protecting an article"); err != nil {
		return err
	}
	return e.db.SetArticleProtected(ctx, articleID, protected)
}

// Approve makes an article visible and federated. It returns the approved article.
func (e *Engine) Approve(ctx context.Context, articleID int64, actor domain.Person) (domain.Article, error) {
	if err := requireAdmin(actor, "approving an article"); err != nil {
		return domain.Article{}, err
	}
	if err := e.db.SetArticleApproved(ctx, articleID, true); err != nil {
		return domain.Article{}, err
	}
	return e.db.GetArticleByID(ctx, articleID)
}

func (e *Engine) Delete(ctx context.Context, articleID int64, actor domain.Person) error {
	if err := requireAdmin(actor, "deleting an article"); err != nil {
		return err
	}

	unlock := e.locks.Lock(lockKey(domain.ArticleTarget(articleID)))
	defer unlock()
	return e.db.DeleteArticle(ctx, articleID)
}

// ArticleByTitle looks an article up in an instance's namespace.
func (e *Engine) ArticleByTitle(ctx context.Context, instance domain.Instance, title string) (domain.Article, error) {
	a, err := e.db.GetArticleByTitle(ctx, instance.ID, title)
	if err != nil {
		return a, fmt.Errorf("article %q: %w", title, err)
	}
	return a, nil
}
