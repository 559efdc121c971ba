package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/service"
	"github.com/sidereusnuntius/fedwiki/internal/validate"
)

func (s *AppService) CreateArticle(ctx context.Context, title, text, summary string, author int64) (domain.Article, error) {
	title, err := validate.Title(title)
	if err != nil {
		return domain.Article{}, fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}
	summary = RemoveDuplicateSpaces(summary)
	if err = validate.Summary(summary); err != nil {
		return domain.Article{}, fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}
	person, err := s.actor(ctx, author)
	if err != nil {
		return domain.Article{}, err
	}

	article, _, err := s.engine.CreateArticle(ctx, edit.NewArticle{
		Instance: s.st.Local,
		Title:    title,
		Text:     text,
		Summary:  summary,
		Author:   person,
		Approved: !s.Config.ArticleApprovalRequired || person.CanModerate(),
	})
	if err != nil {
		return article, translate(err)
	}

	announce(s.gateway.PublishArticle(ctx, article), article.ApID)
	return article, nil
}

func (s *AppService) GetLocalArticle(ctx context.Context, title string) (domain.Article, error) {
	title, err := validate.Title(title)
	if err != nil {
		return domain.Article{}, fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}
	return s.engine.ArticleByTitle(ctx, s.st.Local, title)
}

func (s *AppService) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	return s.DB.GetArticleByID(ctx, id)
}

func (s *AppService) SubmitEdit(ctx context.Context, articleID int64, basedOn domain.EditVersion, patch, summary string, author int64) (service.EditOutcome, error) {
	summary = RemoveDuplicateSpaces(summary)
	if err := validate.Summary(summary); err != nil {
		return service.EditOutcome{}, fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}
	person, err := s.actor(ctx, author)
	if err != nil {
		return service.EditOutcome{}, err
	}

	r, err := s.engine.Submit(ctx, edit.Submission{
		Target:  domain.ArticleTarget(articleID),
		BasedOn: basedOn,
		Patch:   patch,
		Summary: summary,
		Author:  person,
	})
	if err != nil {
		return service.EditOutcome{}, translate(err)
	}
	return s.articleOutcome(ctx, articleID, r)
}

func (s *AppService) EditArticle(ctx context.Context, articleID int64, basedOn domain.EditVersion, text, summary string, author int64) (service.EditOutcome, error) {
	base, err := s.engine.TextAt(ctx, domain.ArticleTarget(articleID), basedOn)
	if err != nil {
		return service.EditOutcome{}, translate(err)
	}
	return s.SubmitEdit(ctx, articleID, basedOn, diff.FindPatches(base, text), summary, author)
}

// articleOutcome reads the article after a submission and federates the accepted edit.
func (s *AppService) articleOutcome(ctx context.Context, articleID int64, r edit.Result) (service.EditOutcome, error) {
	article, err := s.DB.GetArticleByID(ctx, articleID)
	if err != nil {
		return service.EditOutcome{}, err
	}
	if r.Edit != nil {
		announce(s.gateway.PublishEdit(ctx, article, r.Edit), r.Edit.ApID)
	}
	return service.EditOutcome{Article: article, Edit: r.Edit, Conflict: r.Conflict, Merged: r.Merged}, nil
}

func (s *AppService) ResolveConflict(ctx context.Context, conflictID int64, res service.Resolution, actor int64) (service.EditOutcome, error) {
	person, err := s.actor(ctx, actor)
	if err != nil {
		return service.EditOutcome{}, err
	}
	conflict, err := s.DB.GetConflict(ctx, conflictID)
	if err != nil {
		return service.EditOutcome{}, err
	}

	if res.Discard {
		if err = s.engine.Discard(ctx, conflictID, person); err != nil {
			return service.EditOutcome{}, translate(err)
		}
		article, err := s.DB.GetArticleByID(ctx, conflict.Target.ArticleID)
		return service.EditOutcome{Article: article}, err
	}

	r, err := s.engine.Resolve(ctx, conflictID, person, res.BasedOn, res.Patch, RemoveDuplicateSpaces(res.Summary))
	if err != nil {
		return service.EditOutcome{}, translate(err)
	}
	if conflict.Target.IsComment() {
		return s.commentOutcome(ctx, conflict.Target.CommentID, r)
	}
	return s.articleOutcome(ctx, conflict.Target.ArticleID, r)
}

func (s *AppService) ForkArticle(ctx context.Context, articleID int64, title string, actor int64) (domain.Article, error) {
	person, err := s.actor(ctx, actor)
	if err != nil {
		return domain.Article{}, err
	}
	source, err := s.DB.GetArticleByID(ctx, articleID)
	if err != nil {
		return source, err
	}
	if strings.TrimSpace(title) == "" {
		title = source.Title
	}
	if title, err = validate.Title(title); err != nil {
		return domain.Article{}, fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}

	approved := !s.Config.ArticleApprovalRequired || person.CanModerate()
	fork, err := s.engine.Fork(ctx, articleID, s.st.Local, title, approved)
	if err != nil {
		return fork, translate(err)
	}
	announce(s.gateway.PublishArticle(ctx, fork), fork.ApID)
	return fork, nil
}

func (s *AppService) Protect(ctx context.Context, articleID int64, protected bool, actor int64) error {
	person, err := s.actor(ctx, actor)
	if err != nil {
		return err
	}
	if err = s.engine.Protect(ctx, articleID, person, protected); err != nil {
		return translate(err)
	}

	article, err := s.DB.GetArticleByID(ctx, articleID)
	if err != nil {
		return err
	}
	if article.Local {
		// Copies pick the flag up from an announcement without an edit.
		announce(s.gateway.PublishEdit(ctx, article, nil), article.ApID)
	}
	return nil
}

func (s *AppService) Approve(ctx context.Context, articleID int64, actor int64) (domain.Article, error) {
	person, err := s.actor(ctx, actor)
	if err != nil {
		return domain.Article{}, err
	}
	article, err := s.engine.Approve(ctx, articleID, person)
	if err != nil {
		return article, translate(err)
	}
	announce(s.gateway.PublishArticle(ctx, article), article.ApID)
	return article, nil
}

func (s *AppService) DeleteArticle(ctx context.Context, articleID int64, actor int64) error {
	person, err := s.actor(ctx, actor)
	if err != nil {
		return err
	}
	return translate(s.engine.Delete(ctx, articleID, person))
}

func checkFilter(filter db.EditFilter) error {
	if (filter.ArticleID == 0) == (filter.PersonID == 0) {
		return fmt.Errorf("%w: filter by exactly one of article and person", service.ErrInvalidInput)
	}
	return nil
}

func (s *AppService) EditList(ctx context.Context, filter db.EditFilter) ([]domain.Edit, error) {
	if err := checkFilter(filter); err != nil {
		return nil, err
	}
	return s.DB.ListEditsBy(ctx, filter)
}

func (s *AppService) ConflictList(ctx context.Context, filter db.EditFilter) ([]domain.EditConflict, error) {
	if err := checkFilter(filter); err != nil {
		return nil, err
	}
	return s.DB.ListConflicts(ctx, filter)
}

func RemoveDuplicateSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
