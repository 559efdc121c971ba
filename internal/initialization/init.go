// The init package contains functions that setup required dependencies such as the SQLite database, the task
// queue and the rows every instance needs before it can federate.
package initialization

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/sqlite3"
	_ "github.com/golang-migrate/migrate/source/file"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/config"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/utils"
)

const (
	MainPageTitle   = "Main_Page"
	mainPageSummary = "Default main page"
	mainPageText    = `Welcome to this federated wiki!

This main page can only be edited by the admin. Use it as an introduction for new users, and to list interesting articles.
`
)

// SetupDB applies all remaining migrations to db.
func SetupDB(db *sql.DB, folder, dbname string) error {
	log.Info().Msg("starting migrations")
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		log.Error().Err(err).Msg("failed to create sqlite3 migration driver")
		return err
	}

	mig, err := migrate.NewWithDatabaseInstance(
		"file://"+folder,
		dbname,
		driver,
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create Migrate object")
		return err
	}

	err = mig.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("database schema is up to date")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to run migrations")
	}
	return err
}

// OpenDB opens the wiki database. A single connection is kept so that shared-cache in-memory databases and
// writers never contend for SQLite's lock.
func OpenDB(connString string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", connString)
	if err != nil {
		log.Error().Err(err).Str("connection string", connString).Msg("failed to open database")
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, db.Ping()
}

// Bootstrap returns the local instance, creating it on first start together with the admin, the ghost person and
// the main page.
func Bootstrap(ctx context.Context, DB db.DB, cfg *config.Configuration) (domain.Instance, error) {
	instance, err := DB.GetLocalInstance(ctx)
	if err == nil {
		return instance, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return instance, err
	}

	log.Info().Str("url", cfg.Url.String()).Msg("inserting server data into the database")
	pub, priv, err := utils.GenerateKeysPem(cfg.RsaKeySize)
	if err != nil {
		return instance, err
	}

	inbox := cfg.Url.JoinPath(federation.InboxPath)
	instance, err = DB.CreateLocalInstance(ctx, domain.Instance{
		ApID:        cfg.Url,
		Domain:      cfg.Domain,
		Name:        cfg.Name,
		Topic:       cfg.Topic,
		Inbox:       inbox,
		SharedInbox: inbox,
		Articles:    cfg.Url.JoinPath(federation.ArticlesPath),
		Instances:   cfg.Url.JoinPath(federation.InstancesPath),
		PublicKey:   pub,
		PrivateKey:  priv,
		LastRefresh: time.Now(),
	})
	if err != nil {
		return instance, err
	}

	admin, err := CreateLocalPerson(ctx, DB, cfg, instance, cfg.AdminUsername, true)
	if err != nil {
		return instance, err
	}
	if _, err = CreateLocalPerson(ctx, DB, cfg, instance, domain.GhostUsername, false); err != nil {
		return instance, err
	}

	_, _, err = edit.New(DB, cfg.Url).CreateArticle(ctx, edit.NewArticle{
		Instance:  instance,
		Title:     MainPageTitle,
		Text:      mainPageText,
		Summary:   mainPageSummary,
		Author:    admin,
		Protected: true,
		Approved:  true,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create main page")
	}
	return instance, err
}

func CreateLocalPerson(ctx context.Context, DB db.DB, cfg *config.Configuration, instance domain.Instance, username string, admin bool) (domain.Person, error) {
	pub, priv, err := utils.GenerateKeysPem(cfg.RsaKeySize)
	if err != nil {
		return domain.Person{}, err
	}

	apID := federation.UserIRI(cfg.Url, username)
	return DB.CreateLocalPerson(ctx, domain.Person{
		ApID:        apID,
		InstanceID:  instance.ID,
		Username:    username,
		Name:        username,
		Inbox:       apID.JoinPath(federation.InboxPath),
		SharedInbox: instance.SharedInbox,
		PublicKey:   pub,
		PrivateKey:  priv,
		Admin:       admin,
		LastRefresh: time.Now(),
	})
}

type queueLogger struct{}

func (queueLogger) Info(message string, params ...any) {
	log.Debug().Fields(params).Msg(message)
}

func (queueLogger) Error(message string, params ...any) {
	log.Error().Fields(params).Msg(message)
}

// InitQueue opens the task queue database and installs backlite's schema in it. The returned client still needs
// its queues registered and started.
func InitQueue(cfg *config.Configuration) (*backlite.Client, error) {
	d, err := sql.Open("sqlite3", cfg.QueueDbUrl)
	if err != nil {
		return nil, err
	}

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              d,
		Logger:          queueLogger{},
		ReleaseAfter:    2 * time.Minute,
		NumWorkers:      cfg.Workers,
		CleanupInterval: time.Hour,
	})
	if err != nil {
		return nil, err
	}

	return client, client.Install()
}
