package impl

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"time"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

const editColumns = `id, ap_id, article_id, comment_id, seq, author_id, patch, summary, version, previous_version,
	local, published, source_ap_id`

func scanEdit(row scanner) (e domain.Edit, err error) {
	var apID, version, previous string
	var comment sql.NullInt64
	var source sql.NullString
	var published int64
	err = row.Scan(&e.ID, &apID, &e.Target.ArticleID, &comment, &e.Seq, &e.AuthorID, &e.Patch, &e.Summary,
		&version, &previous, &e.Local, &published, &source)
	if err != nil {
		return
	}
	if source.Valid {
		if e.Source, err = url.Parse(source.String); err != nil {
			return
		}
	}

	e.Target.CommentID = comment.Int64
	e.Version = domain.EditVersion(version)
	e.PreviousVersion = domain.EditVersion(previous)
	e.Published = fromUnix(published)
	e.ApID, err = url.Parse(apID)
	return
}

func nullComment(t domain.Target) sql.NullInt64 {
	return sql.NullInt64{Int64: t.CommentID, Valid: t.IsComment()}
}

func (d *dbImpl) insertEdit(ctx context.Context, q querier, e domain.Edit) (int64, error) {
	if e.ApID == nil {
		return 0, db.ErrInvalidInput
	}

	var source sql.NullString
	if e.Source != nil {
		source = sql.NullString{String: e.Source.String(), Valid: true}
	}

	res, err := q.ExecContext(ctx, `INSERT INTO edits (ap_id, article_id, comment_id, seq, author_id, patch, summary,
		version, previous_version, local, published, source_ap_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ApID.String(), e.Target.ArticleID, nullComment(e.Target), e.Seq, e.AuthorID, e.Patch, e.Summary,
		string(e.Version), string(e.PreviousVersion), e.Local, unix(e.Published), source)
	if err != nil {
		return 0, d.HandleError(err)
	}

	id, err := res.LastInsertId()
	return id, d.HandleError(err)
}

// moveHead performs the compare-and-swap of a target's head.
func (d *dbImpl) moveHead(ctx context.Context, q querier, t domain.Target, from, to domain.EditVersion, text string) error {
	var res sql.Result
	var err error
	now := time.Now().Unix()
	if t.IsComment() {
		res, err = q.ExecContext(ctx, "UPDATE comments SET text = ?, head = ?, updated = ? WHERE id = ? AND article_id = ? AND head = ?",
			text, string(to), now, t.CommentID, t.ArticleID, string(from))
	} else {
		res, err = q.ExecContext(ctx, "UPDATE articles SET text = ?, head = ?, updated = ? WHERE id = ? AND head = ?",
			text, string(to), now, t.ArticleID, string(from))
	}
	if err != nil {
		return d.HandleError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return d.HandleError(err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if t.IsComment() {
		err = q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM comments WHERE id = ? AND article_id = ?)",
			t.CommentID, t.ArticleID).Scan(&exists)
	} else {
		err = q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM articles WHERE id = ?)", t.ArticleID).Scan(&exists)
	}
	if err != nil {
		return d.HandleError(err)
	}
	if !exists {
		return db.ErrNotFound
	}
	return db.ErrStaleHead
}

func (d *dbImpl) AppendEdit(ctx context.Context, edit domain.Edit, text string, resolves int64) (e domain.Edit, err error) {
	err = d.WithTx(ctx, func(tx querier) error {
		if err := d.moveHead(ctx, tx, edit.Target, edit.PreviousVersion, edit.Version, text); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx, "SELECT IFNULL(MAX(seq), 0) + 1 FROM edits WHERE article_id = ? AND IFNULL(comment_id, 0) = ?",
			edit.Target.ArticleID, edit.Target.CommentID).Scan(&edit.Seq)
		if err != nil {
			return d.HandleError(err)
		}

		if edit.ID, err = d.insertEdit(ctx, tx, edit); err != nil {
			return err
		}

		if resolves != 0 {
			if _, err = tx.ExecContext(ctx, "DELETE FROM conflicts WHERE id = ?", resolves); err != nil {
				return d.HandleError(err)
			}
		}

		e, err = scanEdit(tx.QueryRowContext(ctx, "SELECT "+editColumns+" FROM edits WHERE id = ?", edit.ID))
		return d.HandleError(err)
	})
	return
}

func (d *dbImpl) ReplaceHistory(ctx context.Context, articleID int64, edits []domain.Edit, text string) error {
	head := domain.InitialVersion
	if len(edits) != 0 {
		head = edits[len(edits)-1].Version
	}

	return d.WithTx(ctx, func(tx querier) error {
		res, err := tx.ExecContext(ctx, "UPDATE articles SET text = ?, head = ?, updated = ? WHERE id = ?",
			text, string(head), time.Now().Unix(), articleID)
		if err != nil {
			return d.HandleError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return d.HandleError(err)
		} else if n == 0 {
			return db.ErrNotFound
		}

		if _, err = tx.ExecContext(ctx, "DELETE FROM edits WHERE article_id = ? AND comment_id IS NULL", articleID); err != nil {
			return d.HandleError(err)
		}

		for i, e := range edits {
			e.Target = domain.ArticleTarget(articleID)
			e.Seq = int64(i + 1)
			if _, err = d.insertEdit(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *dbImpl) listEdits(ctx context.Context, query string, args ...any) ([]domain.Edit, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.HandleError(err)
	}
	defer rows.Close()

	var edits []domain.Edit
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, d.HandleError(err)
		}
		edits = append(edits, e)
	}
	return edits, d.HandleError(rows.Err())
}

func (d *dbImpl) ListEdits(ctx context.Context, target domain.Target) ([]domain.Edit, error) {
	return d.listEdits(ctx, "SELECT "+editColumns+" FROM edits WHERE article_id = ? AND IFNULL(comment_id, 0) = ? ORDER BY seq",
		target.ArticleID, target.CommentID)
}

// byFilter builds the WHERE clause shared by edit and conflict listings. Filtering by article leaves comment
// edits out.
func byFilter(filter db.EditFilter) (string, []any) {
	conds := []string{"TRUE"}
	var args []any
	if filter.ArticleID != 0 {
		conds = append(conds, "article_id = ? AND comment_id IS NULL")
		args = append(args, filter.ArticleID)
	}
	if filter.PersonID != 0 {
		conds = append(conds, "author_id = ?")
		args = append(args, filter.PersonID)
	}
	return strings.Join(conds, " AND "), args
}

func (d *dbImpl) ListEditsBy(ctx context.Context, filter db.EditFilter) ([]domain.Edit, error) {
	where, args := byFilter(filter)
	return d.listEdits(ctx, "SELECT "+editColumns+" FROM edits WHERE "+where+" ORDER BY published DESC, id DESC", args...)
}

// EditExists also matches edits that were stored under a new id after being merged.
func (d *dbImpl) EditExists(ctx context.Context, apID *url.URL) (exists bool, err error) {
	err = d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM edits WHERE ap_id = ? OR source_ap_id = ?)",
		apID.String(), apID.String()).Scan(&exists)
	return exists, d.HandleError(err)
}

const conflictColumns = `id, article_id, comment_id, author_id, patch, summary, based_on, actual, created`

func scanConflict(row scanner) (c domain.EditConflict, err error) {
	var comment sql.NullInt64
	var basedOn, actual string
	var created int64
	err = row.Scan(&c.ID, &c.Target.ArticleID, &comment, &c.AuthorID, &c.Patch, &c.Summary, &basedOn, &actual, &created)
	if err != nil {
		return
	}

	c.Target.CommentID = comment.Int64
	c.BasedOn = domain.EditVersion(basedOn)
	c.Actual = domain.EditVersion(actual)
	c.Created = fromUnix(created)
	return
}

func (d *dbImpl) CreateConflict(ctx context.Context, conflict domain.EditConflict, replaces int64) (c domain.EditConflict, err error) {
	err = d.WithTx(ctx, func(tx querier) error {
		if replaces != 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM conflicts WHERE id = ?", replaces); err != nil {
				return d.HandleError(err)
			}
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO conflicts (article_id, comment_id, author_id, patch, summary,
			based_on, actual, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			conflict.Target.ArticleID, nullComment(conflict.Target), conflict.AuthorID, conflict.Patch, conflict.Summary,
			string(conflict.BasedOn), string(conflict.Actual), unix(conflict.Created))
		if err != nil {
			return d.HandleError(err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return d.HandleError(err)
		}

		c, err = scanConflict(tx.QueryRowContext(ctx, "SELECT "+conflictColumns+" FROM conflicts WHERE id = ?", id))
		return d.HandleError(err)
	})
	return
}

func (d *dbImpl) GetConflict(ctx context.Context, id int64) (domain.EditConflict, error) {
	c, err := scanConflict(d.db.QueryRowContext(ctx, "SELECT "+conflictColumns+" FROM conflicts WHERE id = ?", id))
	return c, d.HandleError(err)
}

func (d *dbImpl) DeleteConflict(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM conflicts WHERE id = ?", id)
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

func (d *dbImpl) ListConflicts(ctx context.Context, filter db.EditFilter) ([]domain.EditConflict, error) {
	where, args := byFilter(filter)
	rows, err := d.db.QueryContext(ctx, "SELECT "+conflictColumns+" FROM conflicts WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, d.HandleError(err)
	}
	defer rows.Close()

	var conflicts []domain.EditConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, d.HandleError(err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, d.HandleError(rows.Err())
}
