package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/cache"
	"github.com/sidereusnuntius/fedwiki/internal/client"
	"github.com/sidereusnuntius/fedwiki/internal/config"
	"github.com/sidereusnuntius/fedwiki/internal/db/impl"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/gateway"
	"github.com/sidereusnuntius/fedwiki/internal/initialization"
	"github.com/sidereusnuntius/fedwiki/internal/objects"
	"github.com/sidereusnuntius/fedwiki/internal/queue"
	"github.com/sidereusnuntius/fedwiki/internal/service"
	core "github.com/sidereusnuntius/fedwiki/internal/service/impl"
	"github.com/sidereusnuntius/fedwiki/internal/state"
	"github.com/sidereusnuntius/fedwiki/internal/synchronizer"
	"github.com/sidereusnuntius/fedwiki/internal/web"
	"github.com/sidereusnuntius/fedwiki/internal/wellknown"

	_ "github.com/mattn/go-sqlite3"
)

const version = "fedwiki 0.1.0"

const usage = `fedwiki, a federated wiki.

Usage:
    fedwiki serve
    fedwiki setup
    fedwiki sync
    fedwiki follow <instance>
    fedwiki user <username> [--admin]
    fedwiki -h | --help
    fedwiki --version

Commands:
    serve     Run the server, its delivery workers and the periodic sync.
    setup     Apply migrations and create the local instance, admin and main page.
    sync      Cache the articles of every followed instance once, then exit.
    follow    Have this instance follow another wiki, given by its URL.
    user      Create a local account.

Options:
    --admin     Give the new account moderation rights.
    -h --help   Show this screen.
    --version   Show version.

Configuration is read from config.toml or config.yaml, and WIKI_* environment variables.`

// app holds everything the commands share.
type app struct {
	cfg      *config.Configuration
	st       *state.State
	queue    *queue.Queue
	resolver *objects.Resolver
	sync     *synchronizer.Synchronizer
	gateway  *gateway.Gateway
	service  service.Service
	cache    cache.Cache
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing arguments")
	}

	cfg, err := config.ReadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read configuration")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	switch {
	case flag(opts, "serve"):
		err = a.serve(ctx)
	case flag(opts, "setup"):
		log.Info().Str("instance", a.st.Local.ApID.String()).Msg("setup complete")
	case flag(opts, "sync"):
		err = a.sync.SyncNetwork(ctx)
	case flag(opts, "follow"):
		err = a.follow(ctx, opts)
	case flag(opts, "user"):
		err = a.createUser(ctx, opts)
	default:
		docopt.PrintHelpAndExit(nil, usage)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

// build opens the databases, ensures the local instance exists and wires the federation stack together.
func build(ctx context.Context, cfg *config.Configuration) (*app, error) {
	d, err := initialization.OpenDB(cfg.DbUrl)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database connection established")
	if err = initialization.SetupDB(d, cfg.MigrationsDir, cfg.DbUrl); err != nil {
		return nil, err
	}

	DB := impl.New(d)
	local, err := initialization.Bootstrap(ctx, DB, cfg)
	if err != nil {
		return nil, err
	}
	st, err := state.New(DB, cfg, local)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, st: st, cache: cache.Noop{}}
	if cfg.RedisUrl != "" {
		c, err := cache.NewRedis(ctx, cfg.RedisUrl, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		a.cache = c
		log.Info().Msg("fetch cache enabled")
	}

	httpClient, err := client.New(&http.Client{Timeout: cfg.DeliveryTimeout}, st.Key, client.Prefs, st.KeyID(), a.cache)
	if err != nil {
		return nil, err
	}

	engine := edit.New(DB, local.ApID)
	a.resolver = objects.New(st, engine, httpClient)
	a.sync = synchronizer.New(st, a.resolver, cfg.Workers)

	backlite, err := initialization.InitQueue(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to open the task queue: %w", err)
	}
	a.queue = queue.New(backlite, httpClient, a.sync, cfg.DeliveryTimeout)
	a.gateway = gateway.New(st, a.resolver, a.queue)
	a.service = core.New(st, engine, a.gateway)
	return a, nil
}

func (a *app) serve(ctx context.Context) error {
	a.queue.Start(ctx)
	go a.queue.RunSync(ctx, a.cfg.SyncInterval)

	handler := web.New(a.st, a.service, a.gateway, a.resolver, a.sync)
	router := chi.NewRouter()
	wellknown.Mount(a.st, router)
	handler.Mount(router)

	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdown); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Uint16("port", a.cfg.Port).Str("instance", a.st.Local.ApID.String()).Msg("started server")
	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// follow records the follow and enqueues the Follow activity; a running server delivers it.
func (a *app) follow(ctx context.Context, opts docopt.Opts) error {
	raw, _ := opts.String("<instance>")
	target, err := url.Parse(raw)
	if err != nil || !target.IsAbs() {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	f, err := a.service.Follow(ctx, a.st.Local.ApID, target)
	if err != nil {
		return err
	}
	log.Info().Str("instance", target.String()).Bool("pending", f.Pending).Msg("follow requested")
	return nil
}

func (a *app) createUser(ctx context.Context, opts docopt.Opts) error {
	username, _ := opts.String("<username>")
	p, err := a.service.CreatePerson(ctx, username, flag(opts, "--admin"))
	if err != nil {
		return err
	}
	log.Info().Str("id", p.ApID.String()).Bool("admin", p.Admin).Msg("created user")
	return nil
}
