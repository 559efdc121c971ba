package db

import (
	"context"
	"net/url"

	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

type ArticleFilter struct {
	// InstanceID restricts the listing to one instance when non-zero.
	InstanceID   int64
	LocalOnly    bool
	ApprovedOnly bool
}

type Articles interface {
	// CreateArticle stores a new article together with its history. The article's text and head must be the
	// result of replaying edits from the empty text.
	CreateArticle(ctx context.Context, article domain.Article, edits []domain.Edit) (domain.Article, error)
	GetArticleByID(ctx context.Context, id int64) (domain.Article, error)
	GetArticleByApID(ctx context.Context, apID *url.URL) (domain.Article, error)
	GetArticleByTitle(ctx context.Context, instanceID int64, title string) (domain.Article, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]domain.Article, error)
	SetArticleProtected(ctx context.Context, id int64, protected bool) error
	SetArticleApproved(ctx context.Context, id int64, approved bool) error
	// DeleteArticle removes the article with its edits, conflicts and comments.
	DeleteArticle(ctx context.Context, id int64) error
}

type EditFilter struct {
	ArticleID int64
	PersonID  int64
}

type Edits interface {
	// AppendEdit appends edit to its target and moves the target's head from edit.PreviousVersion to
	// edit.Version, setting its text to text. It fails with ErrStaleHead if the head is no longer
	// edit.PreviousVersion. A non-zero resolves is the id of a conflict deleted in the same transaction.
	AppendEdit(ctx context.Context, edit domain.Edit, text string, resolves int64) (domain.Edit, error)
	// ListEdits returns the history of a target in application order.
	ListEdits(ctx context.Context, target domain.Target) ([]domain.Edit, error)
	// ReplaceHistory swaps the whole edit sequence of an article, setting its text and head to the result of
	// replaying edits. It is used to realign a cached copy with its home instance.
	ReplaceHistory(ctx context.Context, articleID int64, edits []domain.Edit, text string) error
	ListEditsBy(ctx context.Context, filter EditFilter) ([]domain.Edit, error)
	EditExists(ctx context.Context, apID *url.URL) (bool, error)

	CreateConflict(ctx context.Context, conflict domain.EditConflict, replaces int64) (domain.EditConflict, error)
	GetConflict(ctx context.Context, id int64) (domain.EditConflict, error)
	DeleteConflict(ctx context.Context, id int64) error
	ListConflicts(ctx context.Context, filter EditFilter) ([]domain.EditConflict, error)
}

type Comments interface {
	// CreateComment stores a comment at the initial version; its text arrives through AppendEdit.
	CreateComment(ctx context.Context, comment domain.Comment) (domain.Comment, error)
	GetComment(ctx context.Context, id int64) (domain.Comment, error)
	GetCommentByApID(ctx context.Context, apID *url.URL) (domain.Comment, error)
	ListComments(ctx context.Context, articleID int64) ([]domain.Comment, error)
}
