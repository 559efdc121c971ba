package edit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

// Realign replaces the history of a cached remote article with the one published by its home instance. Edits are
// checked by replaying them before anything is written.
func (e *Engine) Realign(ctx context.Context, articleID int64, edits []domain.Edit) (domain.Article, error) {
	text := ""
	prev := domain.InitialVersion
	for i, edit := range edits {
		if edit.PreviousVersion != prev {
			return domain.Article{}, fmt.Errorf("%w: edit %s does not follow %s", ErrUnknownVersion, edit.ApID, prev.Short())
		}

		var err error
		if text, err = diff.Apply(text, edit.Patch); err != nil {
			return domain.Article{}, fmt.Errorf("%w: edit %s: %w", ErrInvalidPatch, edit.ApID, err)
		}
		if v := domain.VersionOf(text); v != edit.Version {
			return domain.Article{}, fmt.Errorf("%w: edit %s claims version %s, got %s", ErrInvalidPatch, edit.ApID,
				edit.Version.Short(), v.Short())
		}
		prev = edit.Version
		edits[i].Local = false
	}

	unlock := e.locks.Lock(lockKey(domain.ArticleTarget(articleID)))
	defer unlock()

	article, err := e.db.GetArticleByID(ctx, articleID)
	if err != nil {
		return article, err
	}
	if article.Local {
		return article, fmt.Errorf("%w: %s is a local article", ErrForbidden, article.Title)
	}

	if err = e.db.ReplaceHistory(ctx, articleID, edits, text); err != nil {
		return article, err
	}
	log.Info().Str("article", article.ApID.String()).Int("edits", len(edits)).Str("head", prev.Short()).
		Msg("realigned article with its home instance")
	return e.db.GetArticleByID(ctx, articleID)
}
