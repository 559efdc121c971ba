package edit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

// Submit applies a submission to its target. It returns the accepted edit, the conflict that was recorded, or
// neither when the patch changes nothing. Errors are reserved for invalid, unauthorized or failed submissions.
func (e *Engine) Submit(ctx context.Context, s Submission) (Result, error) {
	if s.ApID != nil {
		exists, err := e.db.EditExists(ctx, s.ApID)
		if err != nil {
			return Result{}, err
		}
		if exists {
			_, head, err := e.current(ctx, s.Target)
			return Result{Head: head}, err
		}
	}

	if err := e.authorize(ctx, s); err != nil {
		return Result{}, err
	}

	unlock := e.locks.Lock(lockKey(s.Target))
	defer unlock()

	r, err := e.submit(ctx, s)
	if err == nil {
		logResult(s, r)
	}
	return r, err
}

// submit runs under the target's lock.
func (e *Engine) submit(ctx context.Context, s Submission) (Result, error) {
	text, head, err := e.current(ctx, s.Target)
	if err != nil {
		return Result{}, err
	}
	unchanged := Result{Head: head}

	if s.BasedOn == head {
		next, err := diff.Apply(text, s.Patch)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
		}
		if next == text {
			return unchanged, nil
		}
		return e.append(ctx, s, head, s.Patch, next, false)
	}

	base, err := e.TextAt(ctx, s.Target, s.BasedOn)
	if err != nil {
		return Result{}, err
	}

	theirs, err := diff.Apply(base, s.Patch)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	if domain.VersionOf(theirs) == head {
		// The same change already landed.
		return unchanged, nil
	}

	merged, clean := diff.Merge(base, text, theirs)
	if !clean {
		conflict, err := e.db.CreateConflict(ctx, domain.EditConflict{
			Target:   s.Target,
			AuthorID: s.Author.ID,
			Patch:    s.Patch,
			Summary:  s.Summary,
			BasedOn:  s.BasedOn,
			Actual:   head,
			Created:  time.Now(),
		}, s.Resolves)
		if err != nil {
			return Result{}, err
		}
		return Result{Conflict: &conflict, Head: head}, nil
	}

	if merged == text {
		return unchanged, nil
	}
	return e.append(ctx, s, head, diff.FindPatches(text, merged), merged, true)
}

func (e *Engine) append(ctx context.Context, s Submission, head domain.EditVersion, patch, text string, merged bool) (Result, error) {
	edit := domain.Edit{
		ApID:            s.ApID,
		Target:          s.Target,
		AuthorID:        s.Author.ID,
		Patch:           patch,
		Summary:         s.Summary,
		Version:         domain.VersionOf(text),
		PreviousVersion: head,
		Local:           s.ApID == nil,
		Published:       s.Published,
	}
	// A merged edit differs from the one its author announced, so it gets an identity of its own.
	if edit.ApID == nil || merged {
		edit.Source = s.ApID
		edit.ApID = e.newID("edit")
	}
	if edit.Published.IsZero() {
		edit.Published = time.Now()
	}

	stored, err := e.db.AppendEdit(ctx, edit, text, s.Resolves)
	if err != nil {
		if s.ApID != nil && errors.Is(err, db.ErrConflict) {
			// Raced with a duplicate delivery of the same edit.
			return Result{Head: head}, nil
		}
		return Result{}, err
	}
	return Result{Edit: &stored, Head: stored.Version, Merged: merged}, nil
}
