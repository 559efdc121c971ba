package edit

import (
	"context"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

type NewComment struct {
	ArticleID int64
	ParentID  int64
	Author    domain.Person
	Text      string
	// ApID is set for comments received through federation.
	ApID      *url.URL
	EditApID  *url.URL
	Published time.Time
}

// CreateComment stores a comment and submits its text as the first edit of its own lineage.
func (e *Engine) CreateComment(ctx context.Context, n NewComment) (domain.Comment, Result, error) {
	apID := n.ApID
	if apID == nil {
		apID = e.newID("comment")
	}
	published := n.Published
	if published.IsZero() {
		published = time.Now()
	}

	comment, err := e.db.CreateComment(ctx, domain.Comment{
		ApID:      apID,
		ArticleID: n.ArticleID,
		ParentID:  n.ParentID,
		AuthorID:  n.Author.ID,
		Local:     n.ApID == nil,
		Published: published,
	})
	if err != nil {
		return domain.Comment{}, Result{}, err
	}

	r, err := e.Submit(ctx, Submission{
		Target:    domain.CommentTarget(n.ArticleID, comment.ID),
		BasedOn:   domain.InitialVersion,
		Patch:     diff.FindPatches("", n.Text),
		Author:    n.Author,
		ApID:      n.EditApID,
		Published: published,
	})
	if err != nil {
		return comment, r, err
	}

	comment, err = e.db.GetComment(ctx, comment.ID)
	return comment, r, err
}
