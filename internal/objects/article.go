package objects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

// Outcome is what receiving a content object did to the local store.
type Outcome struct {
	Article *domain.Article
	// Comment is set when the object was a comment; Article is then the article it is attached to.
	Comment *domain.Comment
	Result  edit.Result
}

// Accepted returns the edit the object produced, if any.
func (o Outcome) Accepted() *domain.Edit {
	return o.Result.Edit
}

// EditsIRI is the ordered collection holding an article's history.
func EditsIRI(article *url.URL) *url.URL {
	return article.JoinPath(federation.EditsPath)
}

// EditToJSON returns the wire form of an edit to object.
func (r *Resolver) EditToJSON(ctx context.Context, e domain.Edit, object *url.URL) (Edit, error) {
	author, err := r.db.GetPersonByID(ctx, e.AuthorID)
	if err != nil {
		return Edit{}, fmt.Errorf("author of edit %s: %w", e.ApID, err)
	}

	return Edit{
		Type:            EditType,
		ID:              e.ApID.String(),
		Object:          object.String(),
		PreviousVersion: e.PreviousVersion.String(),
		Version:         e.Version.String(),
		Content:         e.Patch,
		Summary:         e.Summary,
		AttributedTo:    author.ApID.String(),
		Published:       e.Published.UTC(),
	}, nil
}

// ArticleToJSON returns the wire form of an article. When e is not nil it is embedded as the change being
// announced.
func (r *Resolver) ArticleToJSON(ctx context.Context, a domain.Article, e *domain.Edit) (Article, error) {
	home, err := r.db.GetInstanceByID(ctx, a.InstanceID)
	if err != nil {
		return Article{}, fmt.Errorf("home of %s: %w", a.ApID, err)
	}

	w := Article{
		Context:       Context,
		Type:          ArticleType,
		ID:            a.ApID.String(),
		AttributedTo:  home.ApID.String(),
		Name:          a.Title,
		Content:       a.Text,
		MediaType:     r.st.Config.MediaType,
		LatestVersion: a.Head.String(),
		Edits:         EditsIRI(a.ApID).String(),
		Protected:     a.Protected,
		Published:     a.Published.UTC(),
		Updated:       a.Updated.UTC(),
	}
	if e != nil {
		we, err := r.EditToJSON(ctx, *e, a.ApID)
		if err != nil {
			return w, err
		}
		w.Edit = &we
	}
	return w, nil
}

// verifyEdit checks that an embedded edit targets object and was announced by the instance that authored it.
func verifyEdit(e *Edit, object, sender *url.URL) error {
	id, err := parseIRI("edit.id", e.ID)
	if err != nil {
		return err
	}
	if err = federation.CheckDomain(id, sender); err != nil {
		return err
	}
	author, err := parseIRI("edit.attributedTo", e.AttributedTo)
	if err != nil {
		return err
	}
	if err = federation.CheckDomain(author, sender); err != nil {
		return err
	}
	if e.Object != object.String() {
		return fmt.Errorf("%w: edit %s targets %s, not %s", federation.ErrVerification, e.ID, e.Object, object)
	}
	return nil
}

// VerifyArticle checks an article received from sender. Articles hosted elsewhere may only be announced by their
// home instance. Local articles may be announced by anyone contributing an edit of their own.
func (r *Resolver) VerifyArticle(w Article, sender *url.URL) error {
	if w.Type != ArticleType {
		return fmt.Errorf("%w: type %q is not an article", federation.ErrUnsupported, w.Type)
	}
	id, err := parseIRI("id", w.ID)
	if err != nil {
		return err
	}

	if r.st.IsLocal(id) {
		if w.Edit == nil {
			return fmt.Errorf("%w: edit", federation.ErrMissingProperty)
		}
		return verifyEdit(w.Edit, id, sender)
	}

	if err = federation.CheckDomain(id, sender); err != nil {
		return err
	}
	home, err := parseIRI("attributedTo", w.AttributedTo)
	if err != nil {
		return err
	}
	if err = federation.CheckDomain(home, sender); err != nil {
		return err
	}
	if w.Edit != nil {
		// The home instance relays edits made by other instances, so only the target is checked.
		if w.Edit.Object != w.ID {
			return fmt.Errorf("%w: edit %s targets %s", federation.ErrVerification, w.Edit.ID, w.Edit.Object)
		}
	}
	return nil
}

// editFromJSON converts a wire edit into one applicable to target.
func (r *Resolver) editFromJSON(ctx context.Context, w Edit, target domain.Target) (domain.Edit, error) {
	id, err := parseIRI("edit.id", w.ID)
	if err != nil {
		return domain.Edit{}, err
	}
	if w.Version == "" || w.PreviousVersion == "" {
		return domain.Edit{}, fmt.Errorf("%w: edit version", federation.ErrMissingProperty)
	}

	var authorIRI *url.URL
	if w.AttributedTo != "" {
		if authorIRI, err = parseIRI("edit.attributedTo", w.AttributedTo); err != nil {
			return domain.Edit{}, err
		}
	}
	author := r.Author(ctx, authorIRI)

	published := w.Published
	if published.IsZero() {
		published = time.Now()
	}
	return domain.Edit{
		ApID:            id,
		Target:          target,
		AuthorID:        author.ID,
		Patch:           w.Content,
		Summary:         w.Summary,
		Version:         domain.EditVersion(w.Version),
		PreviousVersion: domain.EditVersion(w.PreviousVersion),
		Published:       published,
	}, nil
}

func (r *Resolver) submission(ctx context.Context, w Edit, target domain.Target, authoritative bool) (edit.Submission, error) {
	e, err := r.editFromJSON(ctx, w, target)
	if err != nil {
		return edit.Submission{}, err
	}
	author, err := r.db.GetPersonByID(ctx, e.AuthorID)
	if err != nil {
		return edit.Submission{}, err
	}
	return edit.Submission{
		Target:        target,
		BasedOn:       e.PreviousVersion,
		Patch:         e.Patch,
		Summary:       e.Summary,
		Author:        author,
		ApID:          e.ApID,
		Published:     e.Published,
		Authoritative: authoritative,
	}, nil
}

// ReceiveArticle applies a verified article. An edit to a local article enters the engine like any other
// submission and may merge or conflict. For cached copies of remote articles the home instance is authoritative,
// and the copy is brought in line with its history.
func (r *Resolver) ReceiveArticle(ctx context.Context, w Article, sender *url.URL) (Outcome, error) {
	id, err := parseIRI("id", w.ID)
	if err != nil {
		return Outcome{}, err
	}

	if r.st.IsLocal(id) {
		return r.receiveContribution(ctx, id, w)
	}

	article, err := r.db.GetArticleByApID(ctx, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return r.createCopy(ctx, id, w)
	case err != nil:
		return Outcome{}, err
	}

	if article.Protected != w.Protected {
		if err = r.db.SetArticleProtected(ctx, article.ID, w.Protected); err != nil {
			return Outcome{}, err
		}
		article.Protected = w.Protected
	}

	if w.Edit != nil {
		return r.applyAuthoritative(ctx, article, *w.Edit)
	}
	if domain.EditVersion(w.LatestVersion) == article.Head {
		return Outcome{Article: &article, Result: edit.Result{Head: article.Head}}, nil
	}
	article, err = r.SyncEdits(ctx, article)
	return Outcome{Article: &article, Result: edit.Result{Head: article.Head}}, err
}

// receiveContribution submits an edit made on another instance to one of our articles.
func (r *Resolver) receiveContribution(ctx context.Context, id *url.URL, w Article) (Outcome, error) {
	article, err := r.db.GetArticleByApID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Outcome{}, fmt.Errorf("%w: %s", federation.ErrNotFoundIRI, id)
		}
		return Outcome{}, err
	}

	s, err := r.submission(ctx, *w.Edit, domain.ArticleTarget(article.ID), false)
	if err != nil {
		return Outcome{}, err
	}
	result, err := r.engine.Submit(ctx, s)
	if err != nil {
		return Outcome{}, err
	}

	if article, err = r.db.GetArticleByID(ctx, article.ID); err != nil {
		return Outcome{}, err
	}
	return Outcome{Article: &article, Result: result}, nil
}

// createCopy stores the first copy of a remote article and fills in its history.
func (r *Resolver) createCopy(ctx context.Context, id *url.URL, w Article) (Outcome, error) {
	homeIRI, err := parseIRI("attributedTo", w.AttributedTo)
	if err != nil {
		return Outcome{}, err
	}
	home, err := r.Instance(ctx, homeIRI)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving home of %s: %w", id, err)
	}

	published := w.Published
	if published.IsZero() {
		published = time.Now()
	}
	article, _, err := r.engine.CreateArticle(ctx, edit.NewArticle{
		Instance:  home,
		ApID:      id,
		Title:     w.Name,
		Protected: w.Protected,
		Approved:  true,
		Published: published,
	})
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			// Created concurrently by another delivery.
			if article, err = r.db.GetArticleByApID(ctx, id); err != nil {
				return Outcome{}, err
			}
		} else {
			return Outcome{}, err
		}
	}
	log.Info().Str("article", id.String()).Str("home", home.ApID.String()).Msg("caching remote article")

	if w.Edit != nil && domain.EditVersion(w.Edit.PreviousVersion) == article.Head {
		return r.applyAuthoritative(ctx, article, *w.Edit)
	}
	article, err = r.SyncEdits(ctx, article)
	return Outcome{Article: &article, Result: edit.Result{Head: article.Head}}, err
}

// applyAuthoritative applies an edit announced by the home instance of a cached article. When the edit does not
// follow the cached head, the whole history is synchronized instead.
func (r *Resolver) applyAuthoritative(ctx context.Context, article domain.Article, w Edit) (Outcome, error) {
	target := domain.ArticleTarget(article.ID)

	if domain.EditVersion(w.PreviousVersion) == article.Head {
		s, err := r.submission(ctx, w, target, true)
		if err != nil {
			return Outcome{}, err
		}
		result, err := r.engine.Submit(ctx, s)
		if err != nil {
			return Outcome{}, err
		}
		if result.Conflict == nil {
			if article, err = r.db.GetArticleByID(ctx, article.ID); err != nil {
				return Outcome{}, err
			}
			return Outcome{Article: &article, Result: result}, nil
		}
		// Lost a race with a local edit; the home's history decides.
		if err = r.db.DeleteConflict(ctx, result.Conflict.ID); err != nil {
			return Outcome{}, err
		}
	}

	if domain.EditVersion(w.Version) == article.Head {
		return Outcome{Article: &article, Result: edit.Result{Head: article.Head}}, nil
	}

	synced, err := r.SyncEdits(ctx, article)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Article: &synced, Result: edit.Result{Head: synced.Head}}, nil
}

// SyncEdits fetches the history of a cached remote article from its home instance. Missing edits are appended
// when the cached history is a prefix of the remote one; otherwise the cached history is replaced.
func (r *Resolver) SyncEdits(ctx context.Context, article domain.Article) (domain.Article, error) {
	if article.Local {
		return article, fmt.Errorf("%w: %s is local", edit.ErrForbidden, article.ApID)
	}

	c, err := r.FetchCollection(ctx, EditsIRI(article.ApID))
	if err != nil {
		return article, fmt.Errorf("fetching history of %s: %w", article.ApID, err)
	}

	target := domain.ArticleTarget(article.ID)
	remote := make([]domain.Edit, 0, len(c.Entries()))
	for _, raw := range c.Entries() {
		var w Edit
		if err = json.Unmarshal(raw, &w); err != nil {
			return article, fmt.Errorf("%w: history of %s: %w", federation.ErrUnprocessablePropValue, article.ApID, err)
		}
		if w.Object != article.ApID.String() {
			return article, fmt.Errorf("%w: edit %s targets %s", federation.ErrVerification, w.ID, w.Object)
		}
		e, err := r.editFromJSON(ctx, w, target)
		if err != nil {
			return article, err
		}
		remote = append(remote, e)
	}

	local, err := r.db.ListEdits(ctx, target)
	if err != nil {
		return article, err
	}

	if !isPrefix(local, remote) {
		if isPrefix(remote, local) {
			// Nothing the cached copy lacks.
			return article, nil
		}
		return r.engine.Realign(ctx, article.ID, remote)
	}

	for _, e := range remote[len(local):] {
		author, err := r.db.GetPersonByID(ctx, e.AuthorID)
		if err != nil {
			return article, err
		}
		result, err := r.engine.Submit(ctx, edit.Submission{
			Target:        target,
			BasedOn:       e.PreviousVersion,
			Patch:         e.Patch,
			Summary:       e.Summary,
			Author:        author,
			ApID:          e.ApID,
			Published:     e.Published,
			Authoritative: true,
		})
		if err != nil {
			return article, err
		}
		if result.Conflict != nil || result.Merged {
			// The cached copy moved while appending, start over from the full history.
			if result.Conflict != nil {
				if err = r.db.DeleteConflict(ctx, result.Conflict.ID); err != nil {
					return article, err
				}
			}
			return r.engine.Realign(ctx, article.ID, remote)
		}
	}

	return r.db.GetArticleByID(ctx, article.ID)
}

func isPrefix(local, remote []domain.Edit) bool {
	if len(local) > len(remote) {
		return false
	}
	for i := range local {
		if local[i].ApID.String() != remote[i].ApID.String() || local[i].Version != remote[i].Version {
			return false
		}
	}
	return true
}

// EditsCollection returns the history of an article as an ordered collection of edits.
func (r *Resolver) EditsCollection(ctx context.Context, a domain.Article) (Collection, error) {
	edits, err := r.db.ListEdits(ctx, domain.ArticleTarget(a.ID))
	if err != nil {
		return Collection{}, err
	}

	items := make([]json.RawMessage, 0, len(edits))
	for _, e := range edits {
		w, err := r.EditToJSON(ctx, e, a.ApID)
		if err != nil {
			return Collection{}, err
		}
		raw, err := json.Marshal(w)
		if err != nil {
			return Collection{}, err
		}
		items = append(items, raw)
	}
	return NewCollection(EditsIRI(a.ApID), true, items), nil
}

// ReadArticle returns the article with the given id, fetching and caching it when it is hosted elsewhere and not
// cached yet.
func (r *Resolver) ReadArticle(ctx context.Context, iri *url.URL) (domain.Article, error) {
	a, err := r.db.GetArticleByApID(ctx, iri)
	if err == nil || !errors.Is(err, db.ErrNotFound) {
		return a, err
	}
	if r.st.IsLocal(iri) {
		return a, fmt.Errorf("%w: %s", federation.ErrNotFoundIRI, iri)
	}

	data, err := r.fetch(ctx, iri)
	if err != nil {
		return a, err
	}
	o, err := r.receiveFetchedArticle(ctx, iri, data)
	if err != nil {
		return a, err
	}
	return *o.Article, nil
}

// RefreshArticle fetches a remote article from its home instance and brings the cached copy up to date.
func (r *Resolver) RefreshArticle(ctx context.Context, iri *url.URL) (domain.Article, error) {
	if r.st.IsLocal(iri) {
		return r.db.GetArticleByApID(ctx, iri)
	}

	data, err := r.fetch(ctx, iri)
	if err != nil {
		return domain.Article{}, err
	}
	o, err := r.receiveFetchedArticle(ctx, iri, data)
	if err != nil {
		return domain.Article{}, err
	}
	return *o.Article, nil
}

func (r *Resolver) receiveFetchedArticle(ctx context.Context, iri *url.URL, data []byte) (Outcome, error) {
	var w Article
	if err := json.Unmarshal(data, &w); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}
	// An object fetched from a host speaks for that host only.
	if err := r.VerifyArticle(w, iri); err != nil {
		return Outcome{}, err
	}
	return r.ReceiveArticle(ctx, w, iri)
}

// ReadFromID resolves an IRI naming either an article or a comment. Articles are tried first since both share
// the same namespace.
func (r *Resolver) ReadFromID(ctx context.Context, iri *url.URL) (Outcome, error) {
	if a, err := r.db.GetArticleByApID(ctx, iri); err == nil {
		return Outcome{Article: &a, Result: edit.Result{Head: a.Head}}, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return Outcome{}, err
	}

	if c, err := r.db.GetCommentByApID(ctx, iri); err == nil {
		a, err := r.db.GetArticleByID(ctx, c.ArticleID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Article: &a, Comment: &c, Result: edit.Result{Head: c.Head}}, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return Outcome{}, err
	}

	if r.st.IsLocal(iri) {
		return Outcome{}, fmt.Errorf("%w: %s", federation.ErrNotFoundIRI, iri)
	}

	data, err := r.fetch(ctx, iri)
	if err != nil {
		return Outcome{}, err
	}
	typ, _, err := peek(data)
	if err != nil {
		return Outcome{}, err
	}

	switch typ {
	case ArticleType:
		return r.receiveFetchedArticle(ctx, iri, data)
	case NoteType:
		return r.receiveFetchedComment(ctx, iri, data, 0)
	default:
		return Outcome{}, fmt.Errorf("%w: object type %q", federation.ErrUnsupported, typ)
	}
}
