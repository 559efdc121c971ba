package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sidereusnuntius/fedwiki/internal/diff"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/service"
)

func (s *AppService) CreateComment(ctx context.Context, articleID, parentID int64, text string, author int64) (domain.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Comment{}, fmt.Errorf("%w: empty comment", service.ErrInvalidInput)
	}
	person, err := s.actor(ctx, author)
	if err != nil {
		return domain.Comment{}, err
	}
	if _, err = s.DB.GetArticleByID(ctx, articleID); err != nil {
		return domain.Comment{}, err
	}
	if parentID != 0 {
		parent, err := s.DB.GetComment(ctx, parentID)
		if err != nil {
			return domain.Comment{}, err
		}
		if parent.ArticleID != articleID {
			return domain.Comment{}, fmt.Errorf("%w: comment %d is not attached to article %d", service.ErrInvalidInput, parentID, articleID)
		}
	}

	c, r, err := s.engine.CreateComment(ctx, edit.NewComment{
		ArticleID: articleID,
		ParentID:  parentID,
		Author:    person,
		Text:      text,
	})
	if err != nil {
		return c, translate(err)
	}
	announce(s.gateway.PublishComment(ctx, c, r.Edit, true), c.ApID)
	return c, nil
}

func (s *AppService) EditComment(ctx context.Context, commentID int64, basedOn domain.EditVersion, text string, author int64) (service.EditOutcome, error) {
	person, err := s.actor(ctx, author)
	if err != nil {
		return service.EditOutcome{}, err
	}
	c, err := s.DB.GetComment(ctx, commentID)
	if err != nil {
		return service.EditOutcome{}, err
	}

	target := domain.CommentTarget(c.ArticleID, c.ID)
	base, err := s.engine.TextAt(ctx, target, basedOn)
	if err != nil {
		return service.EditOutcome{}, translate(err)
	}
	r, err := s.engine.Submit(ctx, edit.Submission{
		Target:  target,
		BasedOn: basedOn,
		Patch:   diff.FindPatches(base, text),
		Author:  person,
	})
	if err != nil {
		return service.EditOutcome{}, translate(err)
	}
	return s.commentOutcome(ctx, commentID, r)
}

// commentOutcome federates an edit accepted into a comment.
func (s *AppService) commentOutcome(ctx context.Context, commentID int64, r edit.Result) (service.EditOutcome, error) {
	c, err := s.DB.GetComment(ctx, commentID)
	if err != nil {
		return service.EditOutcome{}, err
	}
	article, err := s.DB.GetArticleByID(ctx, c.ArticleID)
	if err != nil {
		return service.EditOutcome{}, err
	}
	if r.Edit != nil && c.Local {
		announce(s.gateway.PublishComment(ctx, c, r.Edit, false), c.ApID)
	}
	return service.EditOutcome{Article: article, Edit: r.Edit, Conflict: r.Conflict, Merged: r.Merged}, nil
}

func (s *AppService) ListComments(ctx context.Context, articleID int64) ([]domain.Comment, error) {
	return s.DB.ListComments(ctx, articleID)
}
