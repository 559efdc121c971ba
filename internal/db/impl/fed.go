package impl

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

const instanceColumns = `id, ap_id, domain, name, topic, inbox, shared_inbox, articles_url, instances_url,
	public_key, private_key, local, stale, last_refresh`

const insertInstance = `INSERT INTO instances (ap_id, domain, name, topic, inbox, shared_inbox, articles_url,
	instances_url, public_key, private_key, local, stale, last_refresh)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)`

const upsertInstance = insertInstance + `
	ON CONFLICT (ap_id) DO UPDATE SET
		domain = excluded.domain,
		name = excluded.name,
		topic = excluded.topic,
		inbox = excluded.inbox,
		shared_inbox = excluded.shared_inbox,
		articles_url = excluded.articles_url,
		instances_url = excluded.instances_url,
		public_key = excluded.public_key,
		stale = FALSE,
		last_refresh = excluded.last_refresh
	WHERE NOT instances.local`

func scanInstance(row scanner) (i domain.Instance, err error) {
	var apID, inbox string
	var shared, articles, instances, privateKey sql.NullString
	var refreshed int64
	err = row.Scan(&i.ID, &apID, &i.Domain, &i.Name, &i.Topic, &inbox, &shared, &articles, &instances,
		&i.PublicKey, &privateKey, &i.Local, &i.Stale, &refreshed)
	if err != nil {
		return
	}

	i.PrivateKey = privateKey.String
	i.LastRefresh = fromUnix(refreshed)
	if i.ApID, err = url.Parse(apID); err != nil {
		return
	}
	if i.Inbox, err = url.Parse(inbox); err != nil {
		return
	}
	if i.SharedInbox, err = parseURL(shared); err != nil {
		return
	}
	if i.Articles, err = parseURL(articles); err != nil {
		return
	}
	i.Instances, err = parseURL(instances)
	return
}

func instanceArgs(i domain.Instance, local bool) []any {
	return []any{
		i.ApID.String(), i.Domain, i.Name, i.Topic, i.Inbox.String(), nullURL(i.SharedInbox), nullURL(i.Articles),
		nullURL(i.Instances), i.PublicKey, valid(i.PrivateKey), local, unix(i.LastRefresh),
	}
}

func (d *dbImpl) getInstance(ctx context.Context, q querier, where string, args ...any) (domain.Instance, error) {
	row := q.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM instances WHERE "+where, args...)
	i, err := scanInstance(row)
	return i, d.HandleError(err)
}

func (d *dbImpl) listInstances(ctx context.Context, query string, args ...any) ([]domain.Instance, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.HandleError(err)
	}
	defer rows.Close()

	var instances []domain.Instance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, d.HandleError(err)
		}
		instances = append(instances, i)
	}
	return instances, d.HandleError(rows.Err())
}

func (d *dbImpl) CreateLocalInstance(ctx context.Context, instance domain.Instance) (i domain.Instance, err error) {
	if instance.ApID == nil || instance.Inbox == nil || instance.PrivateKey == "" {
		return i, db.ErrInvalidInput
	}

	err = d.WithTx(ctx, func(tx querier) error {
		if _, err := tx.ExecContext(ctx, insertInstance, instanceArgs(instance, true)...); err != nil {
			return d.HandleError(err)
		}
		i, err = d.getInstance(ctx, tx, "local")
		return err
	})
	return
}

func (d *dbImpl) GetLocalInstance(ctx context.Context) (domain.Instance, error) {
	return d.getInstance(ctx, d.db, "local")
}

func (d *dbImpl) UpsertInstance(ctx context.Context, instance domain.Instance) (i domain.Instance, err error) {
	if instance.ApID == nil || instance.Inbox == nil {
		return i, db.ErrInvalidInput
	}

	err = d.WithTx(ctx, func(tx querier) error {
		if _, err := tx.ExecContext(ctx, upsertInstance, instanceArgs(instance, false)...); err != nil {
			return d.HandleError(err)
		}
		i, err = d.getInstance(ctx, tx, "ap_id = ?", instance.ApID.String())
		return err
	})
	return
}

func (d *dbImpl) GetInstanceByID(ctx context.Context, id int64) (domain.Instance, error) {
	return d.getInstance(ctx, d.db, "id = ?", id)
}

func (d *dbImpl) GetInstanceByApID(ctx context.Context, apID *url.URL) (domain.Instance, error) {
	return d.getInstance(ctx, d.db, "ap_id = ?", apID.String())
}

func (d *dbImpl) ListRemoteInstances(ctx context.Context) ([]domain.Instance, error) {
	return d.listInstances(ctx, "SELECT "+instanceColumns+" FROM instances WHERE NOT local ORDER BY id")
}

func (d *dbImpl) MarkInstanceStale(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, "UPDATE instances SET stale = TRUE WHERE id = ? AND NOT local", id)
	return d.HandleError(err)
}

const followColumns = `id, follower, follower_inbox, follower_shared_inbox, instance_id, pending, created`

func scanFollow(row scanner) (f domain.Follow, err error) {
	var follower, inbox string
	var shared sql.NullString
	var created int64
	if err = row.Scan(&f.ID, &follower, &inbox, &shared, &f.InstanceID, &f.Pending, &created); err != nil {
		return
	}

	f.Created = fromUnix(created)
	if f.Follower, err = url.Parse(follower); err != nil {
		return
	}
	if f.FollowerInbox, err = url.Parse(inbox); err != nil {
		return
	}
	f.FollowerShared, err = parseURL(shared)
	return
}

func (d *dbImpl) Follow(ctx context.Context, follow domain.Follow) (created bool, err error) {
	if follow.Follower == nil || follow.FollowerInbox == nil {
		return false, db.ErrInvalidInput
	}

	err = d.WithTx(ctx, func(tx querier) error {
		var id int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM follows WHERE follower = ? AND instance_id = ?",
			follow.Follower.String(), follow.InstanceID).Scan(&id)

		switch d.HandleError(err) {
		case nil:
			_, err = tx.ExecContext(ctx, `UPDATE follows SET pending = ?, follower_inbox = ?, follower_shared_inbox = ?
				WHERE id = ?`, follow.Pending, follow.FollowerInbox.String(), nullURL(follow.FollowerShared), id)
			return d.HandleError(err)
		case db.ErrNotFound:
			created = true
			_, err = tx.ExecContext(ctx, `INSERT INTO follows (follower, follower_inbox, follower_shared_inbox,
				instance_id, pending, created) VALUES (?, ?, ?, ?, ?, ?)`,
				follow.Follower.String(), follow.FollowerInbox.String(), nullURL(follow.FollowerShared),
				follow.InstanceID, follow.Pending, unix(follow.Created))
			return d.HandleError(err)
		default:
			return d.HandleError(err)
		}
	})
	return
}

func (d *dbImpl) GetFollow(ctx context.Context, follower *url.URL, instanceID int64) (domain.Follow, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+followColumns+" FROM follows WHERE follower = ? AND instance_id = ?",
		follower.String(), instanceID)
	f, err := scanFollow(row)
	return f, d.HandleError(err)
}

func (d *dbImpl) Followers(ctx context.Context, instanceID int64) ([]domain.Follow, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT "+followColumns+" FROM follows WHERE instance_id = ? AND NOT pending ORDER BY id",
		instanceID)
	if err != nil {
		return nil, d.HandleError(err)
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		f, err := scanFollow(rows)
		if err != nil {
			return nil, d.HandleError(err)
		}
		follows = append(follows, f)
	}
	return follows, d.HandleError(rows.Err())
}

const selectFollowedInstances = `SELECT ` + instanceColumns + ` FROM instances WHERE NOT local AND id IN (
	SELECT f.instance_id FROM follows f WHERE NOT f.pending AND (
		f.follower IN (SELECT ap_id FROM persons WHERE local)
		OR f.follower IN (SELECT ap_id FROM instances WHERE local)
	)
) ORDER BY id`

func (d *dbImpl) FollowedInstances(ctx context.Context) ([]domain.Instance, error) {
	return d.listInstances(ctx, selectFollowedInstances)
}

func (d *dbImpl) MarkReceived(ctx context.Context, id *url.URL, at time.Time) (bool, error) {
	res, err := d.db.ExecContext(ctx, "INSERT INTO received_activities (ap_id, received) VALUES (?, ?) ON CONFLICT DO NOTHING",
		id.String(), unix(at))
	if err != nil {
		return false, d.HandleError(err)
	}

	n, err := res.RowsAffected()
	return n == 1, d.HandleError(err)
}

func (d *dbImpl) ForgetReceived(ctx context.Context, id *url.URL) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM received_activities WHERE ap_id = ?", id.String())
	return d.HandleError(err)
}
