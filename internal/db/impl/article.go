package impl

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

const articleColumns = `id, ap_id, instance_id, title, text, head, local, protected, approved, published, updated`

func scanArticle(row scanner) (a domain.Article, err error) {
	var apID, head string
	var published, updated int64
	err = row.Scan(&a.ID, &apID, &a.InstanceID, &a.Title, &a.Text, &head, &a.Local, &a.Protected, &a.Approved,
		&published, &updated)
	if err != nil {
		return
	}

	a.Head = domain.EditVersion(head)
	a.Published = fromUnix(published)
	a.Updated = fromUnix(updated)
	a.ApID, err = url.Parse(apID)
	return
}

func (d *dbImpl) getArticle(ctx context.Context, q querier, where string, args ...any) (domain.Article, error) {
	row := q.QueryRowContext(ctx, "SELECT "+articleColumns+" FROM articles WHERE "+where, args...)
	a, err := scanArticle(row)
	return a, d.HandleError(err)
}

func (d *dbImpl) CreateArticle(ctx context.Context, article domain.Article, edits []domain.Edit) (a domain.Article, err error) {
	if article.ApID == nil || article.Title == "" {
		return a, db.ErrInvalidInput
	}
	if article.Head == "" {
		article.Head = domain.InitialVersion
	}

	err = d.WithTx(ctx, func(tx querier) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO articles (ap_id, instance_id, title, text, head, local, protected,
			approved, published, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			article.ApID.String(), article.InstanceID, article.Title, article.Text, string(article.Head), article.Local,
			article.Protected, article.Approved, unix(article.Published), unix(article.Updated))
		if err != nil {
			return d.HandleError(err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return d.HandleError(err)
		}

		for i, e := range edits {
			e.Target = domain.ArticleTarget(id)
			e.Seq = int64(i + 1)
			if _, err = d.insertEdit(ctx, tx, e); err != nil {
				return err
			}
		}

		a, err = d.getArticle(ctx, tx, "id = ?", id)
		return err
	})
	return
}

func (d *dbImpl) GetArticleByID(ctx context.Context, id int64) (domain.Article, error) {
	return d.getArticle(ctx, d.db, "id = ?", id)
}

func (d *dbImpl) GetArticleByApID(ctx context.Context, apID *url.URL) (domain.Article, error) {
	return d.getArticle(ctx, d.db, "ap_id = ?", apID.String())
}

func (d *dbImpl) GetArticleByTitle(ctx context.Context, instanceID int64, title string) (domain.Article, error) {
	return d.getArticle(ctx, d.db, "instance_id = ? AND title = ?", instanceID, title)
}

func (d *dbImpl) ListArticles(ctx context.Context, filter db.ArticleFilter) ([]domain.Article, error) {
	var conds []string
	var args []any
	if filter.InstanceID != 0 {
		conds = append(conds, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.LocalOnly {
		conds = append(conds, "local")
	}
	if filter.ApprovedOnly {
		conds = append(conds, "approved")
	}

	query := "SELECT " + articleColumns + " FROM articles"
	if len(conds) != 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY title"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.HandleError(err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, d.HandleError(err)
		}
		articles = append(articles, a)
	}
	return articles, d.HandleError(rows.Err())
}

func (d *dbImpl) setArticleFlag(ctx context.Context, column string, id int64, value bool) error {
	res, err := d.db.ExecContext(ctx, "UPDATE articles SET "+column+" = ?, updated = ? WHERE id = ?",
		value, time.Now().Unix(), id)
	if err != nil {
		return d.HandleError(err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return d.HandleError(err)
	} else if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (d *dbImpl) SetArticleProtected(ctx context.Context, id int64, protected bool) error {
	return d.setArticleFlag(ctx, "protected", id, protected)
}

func (d *dbImpl) SetArticleApproved(ctx context.Context, id int64, approved bool) error {
	return d.setArticleFlag(ctx, "approved", id, approved)
}

func (d *dbImpl) DeleteArticle(ctx context.Context, id int64) error {
	return d.WithTx(ctx, func(tx querier) error {
		for _, stmt := range []string{
			"DELETE FROM conflicts WHERE article_id = ?",
			"DELETE FROM edits WHERE article_id = ?",
			"DELETE FROM comments WHERE article_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return d.HandleError(err)
			}
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM articles WHERE id = ?", id)
		if err != nil {
			return d.HandleError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return d.HandleError(err)
		} else if n == 0 {
			return db.ErrNotFound
		}
		return nil
	})
}
