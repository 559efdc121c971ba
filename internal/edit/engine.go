// Package edit turns submissions into an article's append-only history. A submission based on the current head
// is applied directly; one based on an older version is merged with what landed since, or stored as a conflict.
package edit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"codeberg.org/gruf/go-mutexes"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
)

var (
	ErrForbidden = errors.New("forbidden")
	// ErrUnknownVersion is returned when a submission is based on a version absent from the target's history.
	ErrUnknownVersion = errors.New("unknown base version")
	ErrInvalidPatch   = errors.New("invalid patch")
)

type Engine struct {
	db    db.DB
	base  *url.URL
	locks *mutexes.MutexMap
}

// New returns an engine minting identifiers under base, the local instance's URL.
func New(DB db.DB, base *url.URL) *Engine {
	locks := mutexes.MutexMap{}
	return &Engine{
		db:    DB,
		base:  base,
		locks: &locks,
	}
}

// Submission is a proposed change to an article or comment.
type Submission struct {
	Target domain.Target
	// BasedOn is the version the patch was computed against.
	BasedOn domain.EditVersion
	Patch   string
	Summary string
	Author  domain.Person
	// ApID identifies an edit received through federation. Local submissions leave it nil.
	ApID      *url.URL
	Published time.Time
	// Authoritative is set for edits announced by the home instance of a remote article, which already
	// enforced its own protection.
	Authoritative bool
	// Resolves is the id of the conflict this submission rebases, if any.
	Resolves int64
}

type Result struct {
	// Edit is the accepted edit; nil when nothing changed or on conflict.
	Edit     *domain.Edit
	Conflict *domain.EditConflict
	// Head is the target's version after the submission.
	Head domain.EditVersion
	// Merged is true when the edit went through a three-way merge.
	Merged bool
}

// Unchanged reports whether the submission left the target as it was without conflicting.
func (r Result) Unchanged() bool {
	return r.Edit == nil && r.Conflict == nil
}

func lockKey(t domain.Target) string {
	if t.IsComment() {
		return "comment:" + strconv.FormatInt(t.CommentID, 10)
	}
	return "article:" + strconv.FormatInt(t.ArticleID, 10)
}

// current returns the text and head of a target.
func (e *Engine) current(ctx context.Context, t domain.Target) (string, domain.EditVersion, error) {
	if t.IsComment() {
		c, err := e.db.GetComment(ctx, t.CommentID)
		if err != nil {
			return "", "", err
		}
		if c.ArticleID != t.ArticleID {
			return "", "", fmt.Errorf("%w: comment %d is not attached to article %d", db.ErrInvalidInput, c.ID, t.ArticleID)
		}
		return c.Text, c.Head, nil
	}

	a, err := e.db.GetArticleByID(ctx, t.ArticleID)
	return a.Text, a.Head, err
}

// authorize applies the protection gate before any diff work.
func (e *Engine) authorize(ctx context.Context, s Submission) error {
	if s.Authoritative || s.Author.CanModerate() {
		return nil
	}

	if s.Target.IsComment() {
		c, err := e.db.GetComment(ctx, s.Target.CommentID)
		if err != nil {
			return err
		}
		if c.AuthorID != s.Author.ID {
			return fmt.Errorf("%w: only the author may edit comment %d", ErrForbidden, c.ID)
		}
		return nil
	}

	a, err := e.db.GetArticleByID(ctx, s.Target.ArticleID)
	if err != nil {
		return err
	}
	if a.Protected {
		return fmt.Errorf("%w: %s is protected", ErrForbidden, a.Title)
	}
	return nil
}

// Replay rebuilds the text of a target from its history, checking every recorded version on the way.
func (e *Engine) Replay(ctx context.Context, t domain.Target) (string, error) {
	edits, err := e.db.ListEdits(ctx, t)
	if err != nil {
		return "", err
	}

	text := ""
	for _, edit := range edits {
		if text, err = diff.Apply(text, edit.Patch); err != nil {
			return "", fmt.Errorf("replaying edit %s: %w", edit.ApID, err)
		}
		if v := domain.VersionOf(text); v != edit.Version {
			return "", fmt.Errorf("replaying edit %s: expected version %s, got %s", edit.ApID, edit.Version.Short(), v.Short())
		}
	}
	return text, nil
}

// TextAt reconstructs the text of a target at version v.
func (e *Engine) TextAt(ctx context.Context, t domain.Target, v domain.EditVersion) (string, error) {
	if v == domain.InitialVersion {
		return "", nil
	}

	edits, err := e.db.ListEdits(ctx, t)
	if err != nil {
		return "", err
	}

	text := ""
	for _, edit := range edits {
		if text, err = diff.Apply(text, edit.Patch); err != nil {
			return "", fmt.Errorf("replaying edit %s: %w", edit.ApID, err)
		}
		if edit.Version == v {
			return text, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownVersion, v.Short())
}

// HasVersion reports whether v appears in the target's history.
func (e *Engine) HasVersion(ctx context.Context, t domain.Target, v domain.EditVersion) (bool, error) {
	if v == domain.InitialVersion {
		return true, nil
	}

	edits, err := e.db.ListEdits(ctx, t)
	if err != nil {
		return false, err
	}
	for _, edit := range edits {
		if edit.Version == v {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) newID(kind string) *url.URL {
	return federation.NewID(e.base, kind)
}

func logResult(s Submission, r Result) {
	event := log.Debug().Int64("article", s.Target.ArticleID).Str("head", r.Head.Short())
	if s.Target.IsComment() {
		event.Int64("comment", s.Target.CommentID)
	}

	switch {
	case r.Conflict != nil:
		event.Int64("conflict", r.Conflict.ID).Msg("submission conflicts")
	case r.Edit != nil:
		event.Bool("merged", r.Merged).Msg("edit accepted")
	default:
		event.Msg("submission left the document unchanged")
	}
}
