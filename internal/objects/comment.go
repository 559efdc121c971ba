package objects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

// maxThreadDepth bounds how many unknown ancestors are fetched for a received comment.
const maxThreadDepth = 16

func (r *Resolver) CommentToJSON(ctx context.Context, c domain.Comment, e *domain.Edit) (Comment, error) {
	article, err := r.db.GetArticleByID(ctx, c.ArticleID)
	if err != nil {
		return Comment{}, err
	}
	author, err := r.db.GetPersonByID(ctx, c.AuthorID)
	if err != nil {
		return Comment{}, err
	}

	inReplyTo := article.ApID
	if c.ParentID != 0 {
		parent, err := r.db.GetComment(ctx, c.ParentID)
		if err != nil {
			return Comment{}, err
		}
		inReplyTo = parent.ApID
	}

	w := Comment{
		Context:       Context,
		Type:          NoteType,
		ID:            c.ApID.String(),
		AttributedTo:  author.ApID.String(),
		Article:       article.ApID.String(),
		InReplyTo:     inReplyTo.String(),
		Content:       c.Text,
		LatestVersion: c.Head.String(),
		Published:     c.Published.UTC(),
		Updated:       c.Updated.UTC(),
	}
	if e != nil {
		we, err := r.EditToJSON(ctx, *e, c.ApID)
		if err != nil {
			return w, err
		}
		w.Edit = &we
	}
	return w, nil
}

// VerifyComment checks that a comment and its author belong to sender. Comments are only ever changed on the
// instance they were written on.
func (r *Resolver) VerifyComment(w Comment, sender *url.URL) error {
	if w.Type != NoteType {
		return fmt.Errorf("%w: type %q is not a comment", federation.ErrUnsupported, w.Type)
	}
	id, err := parseIRI("id", w.ID)
	if err != nil {
		return err
	}
	if err = federation.CheckDomain(id, sender); err != nil {
		return err
	}
	author, err := parseIRI("attributedTo", w.AttributedTo)
	if err != nil {
		return err
	}
	if err = federation.CheckDomain(author, sender); err != nil {
		return err
	}
	if _, err = parseIRI("context", w.Article); err != nil {
		return err
	}
	if w.Edit != nil {
		return verifyEdit(w.Edit, id, sender)
	}
	return nil
}

// ReceiveComment applies a verified comment, fetching the article and any unknown parent first.
func (r *Resolver) ReceiveComment(ctx context.Context, w Comment, sender *url.URL) (Outcome, error) {
	return r.receiveComment(ctx, w, 0)
}

func (r *Resolver) receiveComment(ctx context.Context, w Comment, depth int) (Outcome, error) {
	id, err := parseIRI("id", w.ID)
	if err != nil {
		return Outcome{}, err
	}
	if r.st.IsLocal(id) {
		return Outcome{}, fmt.Errorf("%w: %s is a local comment", federation.ErrVerification, id)
	}

	articleIRI, err := parseIRI("context", w.Article)
	if err != nil {
		return Outcome{}, err
	}
	article, err := r.ReadArticle(ctx, articleIRI)
	if err != nil {
		return Outcome{}, fmt.Errorf("article of comment %s: %w", id, err)
	}

	comment, err := r.db.GetCommentByApID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		comment, err = r.createComment(ctx, id, article, w, depth)
	}
	if err != nil {
		return Outcome{}, err
	}
	if comment.ArticleID != article.ID {
		return Outcome{}, fmt.Errorf("%w: comment %s moved to another article", federation.ErrVerification, id)
	}

	result, err := r.applyComment(ctx, comment, w)
	if err != nil {
		return Outcome{}, err
	}
	if comment, err = r.db.GetComment(ctx, comment.ID); err != nil {
		return Outcome{}, err
	}
	return Outcome{Article: &article, Comment: &comment, Result: result}, nil
}

func (r *Resolver) createComment(ctx context.Context, id *url.URL, article domain.Article, w Comment, depth int) (domain.Comment, error) {
	var parentID int64
	if w.InReplyTo != "" && w.InReplyTo != w.Article {
		parentIRI, err := parseIRI("inReplyTo", w.InReplyTo)
		if err != nil {
			return domain.Comment{}, err
		}
		if parentIRI.String() == id.String() {
			return domain.Comment{}, fmt.Errorf("%w: comment %s replies to itself", federation.ErrUnprocessablePropValue, id)
		}
		parent, err := r.readComment(ctx, parentIRI, depth+1)
		if err != nil {
			return domain.Comment{}, fmt.Errorf("parent of comment %s: %w", id, err)
		}
		if parent.ArticleID != article.ID {
			return domain.Comment{}, fmt.Errorf("%w: parent of %s is attached to another article", federation.ErrVerification, id)
		}
		parentID = parent.ID
	}

	authorIRI, err := parseIRI("attributedTo", w.AttributedTo)
	if err != nil {
		return domain.Comment{}, err
	}
	published := w.Published
	if published.IsZero() {
		published = time.Now()
	}

	comment, _, err := r.engine.CreateComment(ctx, edit.NewComment{
		ArticleID: article.ID,
		ParentID:  parentID,
		Author:    r.Author(ctx, authorIRI),
		ApID:      id,
		Published: published,
	})
	if errors.Is(err, db.ErrConflict) {
		return r.db.GetCommentByApID(ctx, id)
	}
	return comment, err
}

// applyComment brings a cached comment to the state announced by its host. The announced edit is applied when it
// follows the cached head; otherwise the cached text is replaced by the announced content.
func (r *Resolver) applyComment(ctx context.Context, c domain.Comment, w Comment) (edit.Result, error) {
	target := domain.CommentTarget(c.ArticleID, c.ID)

	var s edit.Submission
	switch {
	case w.Edit != nil && domain.EditVersion(w.Edit.PreviousVersion) == c.Head:
		var err error
		if s, err = r.submission(ctx, *w.Edit, target, true); err != nil {
			return edit.Result{}, err
		}
	case w.Content != c.Text:
		author, err := r.db.GetPersonByID(ctx, c.AuthorID)
		if err != nil {
			return edit.Result{}, err
		}
		s = edit.Submission{
			Target:        target,
			BasedOn:       c.Head,
			Patch:         diff.FindPatches(c.Text, w.Content),
			Author:        author,
			ApID:          federation.NewID(r.st.Local.ApID, federation.EditPath),
			Published:     w.Updated,
			Authoritative: true,
		}
	default:
		return edit.Result{Head: c.Head}, nil
	}

	result, err := r.engine.Submit(ctx, s)
	if err != nil {
		return result, err
	}
	if result.Conflict != nil {
		// The host's text wins over whatever raced with it here.
		if err = r.db.DeleteConflict(ctx, result.Conflict.ID); err != nil {
			return result, err
		}
		c, err = r.db.GetComment(ctx, c.ID)
		if err != nil {
			return result, err
		}
		w.Edit = nil
		return r.applyComment(ctx, c, w)
	}
	return result, nil
}

func (r *Resolver) readComment(ctx context.Context, iri *url.URL, depth int) (domain.Comment, error) {
	c, err := r.db.GetCommentByApID(ctx, iri)
	if err == nil || !errors.Is(err, db.ErrNotFound) {
		return c, err
	}
	if r.st.IsLocal(iri) {
		return c, fmt.Errorf("%w: %s", federation.ErrNotFoundIRI, iri)
	}
	if depth > maxThreadDepth {
		return c, fmt.Errorf("%w: thread deeper than %d comments", federation.ErrUnsupported, maxThreadDepth)
	}

	data, err := r.fetch(ctx, iri)
	if err != nil {
		return c, err
	}
	o, err := r.receiveFetchedComment(ctx, iri, data, depth)
	if err != nil {
		return c, err
	}
	return *o.Comment, nil
}

// ReadComment returns the comment with the given id, fetching and caching it when it is unknown.
func (r *Resolver) ReadComment(ctx context.Context, iri *url.URL) (domain.Comment, error) {
	return r.readComment(ctx, iri, 0)
}

func (r *Resolver) receiveFetchedComment(ctx context.Context, iri *url.URL, data []byte, depth int) (Outcome, error) {
	var w Comment
	if err := json.Unmarshal(data, &w); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}
	if err := r.VerifyComment(w, iri); err != nil {
		return Outcome{}, err
	}
	return r.receiveComment(ctx, w, depth)
}
