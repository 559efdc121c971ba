package service

import (
	"context"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

// EditOutcome is the result of a submission. At most one of Edit and Conflict is set; neither is when the
// submission left the text as it was.
type EditOutcome struct {
	Article  domain.Article
	Edit     *domain.Edit
	Conflict *domain.EditConflict
	Merged   bool
}

// Resolution settles a conflict, either by discarding it or by resubmitting a patch rebased on BasedOn.
type Resolution struct {
	Discard bool
	BasedOn domain.EditVersion
	Patch   string
	Summary string
}

type ArticleService interface {
	// CreateArticle creates a local article whose first edit sets its text.
	CreateArticle(ctx context.Context, title, text, summary string, author int64) (domain.Article, error)
	GetLocalArticle(ctx context.Context, title string) (domain.Article, error)
	GetArticle(ctx context.Context, id int64) (domain.Article, error)
	// SubmitEdit applies patch, computed against basedOn, to an article. A stale base is merged with the edits
	// that landed since, or stored as a conflict when the changes overlap.
	SubmitEdit(ctx context.Context, articleID int64, basedOn domain.EditVersion, patch, summary string, author int64) (EditOutcome, error)
	// EditArticle is SubmitEdit for callers holding the full new text rather than a patch.
	EditArticle(ctx context.Context, articleID int64, basedOn domain.EditVersion, text, summary string, author int64) (EditOutcome, error)
	ResolveConflict(ctx context.Context, conflictID int64, r Resolution, actor int64) (EditOutcome, error)
	// ForkArticle copies an article and its history into this instance under title.
	ForkArticle(ctx context.Context, articleID int64, title string, actor int64) (domain.Article, error)
	Protect(ctx context.Context, articleID int64, protected bool, actor int64) error
	Approve(ctx context.Context, articleID int64, actor int64) (domain.Article, error)
	DeleteArticle(ctx context.Context, articleID int64, actor int64) error
	// EditList returns accepted edits to an article, or by a person.
	EditList(ctx context.Context, filter db.EditFilter) ([]domain.Edit, error)
	// ConflictList returns the conflicts still pending on an article, or of a person.
	ConflictList(ctx context.Context, filter db.EditFilter) ([]domain.EditConflict, error)
}

type CommentService interface {
	// CreateComment attaches a comment to an article. A non-zero parent makes it a reply.
	CreateComment(ctx context.Context, articleID, parentID int64, text string, author int64) (domain.Comment, error)
	EditComment(ctx context.Context, commentID int64, basedOn domain.EditVersion, text string, author int64) (EditOutcome, error)
	ListComments(ctx context.Context, articleID int64) ([]domain.Comment, error)
}
