package impl

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
)

const personColumns = `id, ap_id, instance_id, username, name, bio, inbox, shared_inbox, public_key, private_key,
	admin, local, last_refresh`

const insertPerson = `INSERT INTO persons (ap_id, instance_id, username, name, bio, inbox, shared_inbox, public_key,
	private_key, admin, local, last_refresh)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const upsertPerson = insertPerson + `
	ON CONFLICT (ap_id) DO UPDATE SET
		username = excluded.username,
		name = excluded.name,
		bio = excluded.bio,
		inbox = excluded.inbox,
		shared_inbox = excluded.shared_inbox,
		public_key = excluded.public_key,
		last_refresh = excluded.last_refresh
	WHERE NOT persons.local`

func scanPerson(row scanner) (p domain.Person, err error) {
	var apID, inbox string
	var shared, privateKey sql.NullString
	var refreshed int64
	err = row.Scan(&p.ID, &apID, &p.InstanceID, &p.Username, &p.Name, &p.Bio, &inbox, &shared, &p.PublicKey,
		&privateKey, &p.Admin, &p.Local, &refreshed)
	if err != nil {
		return
	}

	p.PrivateKey = privateKey.String
	p.LastRefresh = fromUnix(refreshed)
	if p.ApID, err = url.Parse(apID); err != nil {
		return
	}
	if p.Inbox, err = url.Parse(inbox); err != nil {
		return
	}
	p.SharedInbox, err = parseURL(shared)
	return
}

func personArgs(p domain.Person, local bool) []any {
	return []any{
		p.ApID.String(), p.InstanceID, p.Username, p.Name, p.Bio, p.Inbox.String(), nullURL(p.SharedInbox),
		p.PublicKey, valid(p.PrivateKey), p.Admin && local, local, unix(p.LastRefresh),
	}
}

func (d *dbImpl) getPerson(ctx context.Context, q querier, where string, args ...any) (domain.Person, error) {
	row := q.QueryRowContext(ctx, "SELECT "+personColumns+" FROM persons WHERE "+where, args...)
	p, err := scanPerson(row)
	return p, d.HandleError(err)
}

func (d *dbImpl) CreateLocalPerson(ctx context.Context, person domain.Person) (p domain.Person, err error) {
	if person.ApID == nil || person.Inbox == nil || person.Username == "" {
		return p, db.ErrInvalidInput
	}

	err = d.WithTx(ctx, func(tx querier) error {
		if _, err := tx.ExecContext(ctx, insertPerson, personArgs(person, true)...); err != nil {
			return d.HandleError(err)
		}
		p, err = d.getPerson(ctx, tx, "ap_id = ?", person.ApID.String())
		return err
	})
	return
}

func (d *dbImpl) UpsertPerson(ctx context.Context, person domain.Person) (p domain.Person, err error) {
	if person.ApID == nil || person.Inbox == nil {
		return p, db.ErrInvalidInput
	}

	err = d.WithTx(ctx, func(tx querier) error {
		if _, err := tx.ExecContext(ctx, upsertPerson, personArgs(person, false)...); err != nil {
			return d.HandleError(err)
		}
		p, err = d.getPerson(ctx, tx, "ap_id = ?", person.ApID.String())
		return err
	})
	return
}

func (d *dbImpl) GetPersonByID(ctx context.Context, id int64) (domain.Person, error) {
	return d.getPerson(ctx, d.db, "id = ?", id)
}

func (d *dbImpl) GetPersonByApID(ctx context.Context, apID *url.URL) (domain.Person, error) {
	return d.getPerson(ctx, d.db, "ap_id = ?", apID.String())
}

func (d *dbImpl) GetLocalPerson(ctx context.Context, username string) (domain.Person, error) {
	return d.getPerson(ctx, d.db, "local AND username = ?", username)
}
