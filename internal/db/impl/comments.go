package impl

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

const commentColumns = `id, ap_id, article_id, parent_id, author_id, text, head, local, published, updated`

func scanComment(row scanner) (c domain.Comment, err error) {
	var apID, head string
	var parent sql.NullInt64
	var published, updated int64
	err = row.Scan(&c.ID, &apID, &c.ArticleID, &parent, &c.AuthorID, &c.Text, &head, &c.Local, &published, &updated)
	if err != nil {
		return
	}

	c.ParentID = parent.Int64
	c.Head = domain.EditVersion(head)
	c.Published = fromUnix(published)
	c.Updated = fromUnix(updated)
	c.ApID, err = url.Parse(apID)
	return
}

func (d *dbImpl) CreateComment(ctx context.Context, comment domain.Comment) (c domain.Comment, err error) {
	if comment.ApID == nil {
		return c, db.ErrInvalidInput
	}

	parent := sql.NullInt64{Int64: comment.ParentID, Valid: comment.ParentID != 0}
	err = d.WithTx(ctx, func(tx querier) error {
		if parent.Valid {
			var articleID int64
			err := tx.QueryRowContext(ctx, "SELECT article_id FROM comments WHERE id = ?", parent.Int64).Scan(&articleID)
			if err = d.HandleError(err); err != nil {
				return err
			}
			if articleID != comment.ArticleID {
				return db.ErrInvalidInput
			}
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO comments (ap_id, article_id, parent_id, author_id, text, head, local,
			published, updated) VALUES (?, ?, ?, ?, '', ?, ?, ?, ?)`,
			comment.ApID.String(), comment.ArticleID, parent, comment.AuthorID, string(domain.InitialVersion),
			comment.Local, unix(comment.Published), unix(comment.Published))
		if err != nil {
			return d.HandleError(err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return d.HandleError(err)
		}

		c, err = scanComment(tx.QueryRowContext(ctx, "SELECT "+commentColumns+" FROM comments WHERE id = ?", id))
		return d.HandleError(err)
	})
	return
}

func (d *dbImpl) GetComment(ctx context.Context, id int64) (domain.Comment, error) {
	c, err := scanComment(d.db.QueryRowContext(ctx, "SELECT "+commentColumns+" FROM comments WHERE id = ?", id))
	return c, d.HandleError(err)
}

func (d *dbImpl) GetCommentByApID(ctx context.Context, apID *url.URL) (domain.Comment, error) {
	c, err := scanComment(d.db.QueryRowContext(ctx, "SELECT "+commentColumns+" FROM comments WHERE ap_id = ?", apID.String()))
	return c, d.HandleError(err)
}

func (d *dbImpl) ListComments(ctx context.Context, articleID int64) ([]domain.Comment, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT "+commentColumns+" FROM comments WHERE article_id = ? ORDER BY id", articleID)
	if err != nil {
		return nil, d.HandleError(err)
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, d.HandleError(err)
		}
		comments = append(comments, c)
	}
	return comments, d.HandleError(rows.Err())
}
