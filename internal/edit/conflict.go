package edit

import (
	"context"
	"fmt"

	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

func (e *Engine) conflictFor(ctx context.Context, conflictID int64, actor domain.Person) (domain.EditConflict, error) {
	conflict, err := e.db.GetConflict(ctx, conflictID)
	if err != nil {
		return conflict, err
	}
	if conflict.AuthorID != actor.ID && !actor.CanModerate() {
		return conflict, fmt.Errorf("%w: conflict %d belongs to another author", ErrForbidden, conflictID)
	}
	return conflict, nil
}

// Discard deletes a pending conflict. History and head are not touched.
func (e *Engine) Discard(ctx context.Context, conflictID int64, actor domain.Person) error {
	if _, err := e.conflictFor(ctx, conflictID, actor); err != nil {
		return err
	}
	return e.db.DeleteConflict(ctx, conflictID)
}

// Resolve resubmits a conflict with a rebased patch. On success the conflict is replaced by the resulting edit,
// or by a new conflict if the head moved again.
func (e *Engine) Resolve(ctx context.Context, conflictID int64, actor domain.Person, basedOn domain.EditVersion, patch, summary string) (Result, error) {
	conflict, err := e.conflictFor(ctx, conflictID, actor)
	if err != nil {
		return Result{}, err
	}
	if summary == "" {
		summary = conflict.Summary
	}

	r, err := e.Submit(ctx, Submission{
		Target:   conflict.Target,
		BasedOn:  basedOn,
		Patch:    patch,
		Summary:  summary,
		Author:   actor,
		Resolves: conflictID,
	})
	if err != nil {
		return r, err
	}

	if r.Unchanged() {
		// Nothing left to apply: the author accepted the current text.
		err = e.db.DeleteConflict(ctx, conflictID)
	}
	return r, err
}
