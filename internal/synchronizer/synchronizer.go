// Package synchronizer spreads knowledge of instances and their articles across the federation. Every instance
// publishes the instances it knows of; merging the lists of the instances we follow lets the graph grow past
// direct neighbours.
package synchronizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/conversions"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/objects"
	"github.com/sidereusnuntius/fedwiki/internal/state"
	"github.com/sourcegraph/conc/pool"
)

type Synchronizer struct {
	st       *state.State
	db       db.DB
	resolver *objects.Resolver
	// workers bounds how many entries of a collection are resolved at once.
	workers int
}

func New(st *state.State, resolver *objects.Resolver, workers int) *Synchronizer {
	if workers < 1 {
		workers = 1
	}
	return &Synchronizer{
		st:       st,
		db:       st.DB,
		resolver: resolver,
		workers:  workers,
	}
}

// LinkedInstances lists every remote instance known here, with their actor documents embedded.
func (s *Synchronizer) LinkedInstances(ctx context.Context) (objects.Collection, error) {
	instances, err := s.db.ListRemoteInstances(ctx)
	if err != nil {
		return objects.Collection{}, err
	}

	items := make([]json.RawMessage, 0, len(instances))
	for _, instance := range instances {
		doc, err := conversions.InstanceToJSON(instance)
		if err == nil {
			var raw []byte
			if raw, err = json.Marshal(doc); err == nil {
				items = append(items, raw)
				continue
			}
		}
		log.Warn().Err(err).Str("instance", instance.ApID.String()).Msg("listing instance by id only")
		items = append(items, objects.IRIItems([]*url.URL{instance.ApID})...)
	}
	return objects.NewCollection(s.st.Local.ApID.JoinPath(federation.InstancesPath), false, items), nil
}

// ReceiveInstances resolves the members of a peer's linked instances. Embedded documents only name the instance:
// a peer cannot vouch for another host's key, so unknown or stale instances are fetched from their own host and
// fresh ones are served from the database. This instance is skipped, and an entry that cannot be resolved is
// logged without affecting the others. It returns how many entries were resolved.
func (s *Synchronizer) ReceiveInstances(ctx context.Context, c objects.Collection) int {
	var resolved atomic.Int64
	p := pool.New().WithMaxGoroutines(s.workers)

	for _, raw := range c.Entries() {
		iri, err := objects.IRIEntry(raw)
		if err != nil {
			log.Warn().Err(err).Str("collection", c.ID).Msg("skipping malformed entry")
			continue
		}
		if s.st.IsLocal(iri) {
			continue
		}

		p.Go(func() {
			if _, err := s.resolver.Instance(ctx, iri); err != nil {
				log.Warn().Err(err).Str("instance", iri.String()).Msg("failed to resolve linked instance")
				return
			}
			resolved.Add(1)
		})
	}

	p.Wait()
	return int(resolved.Load())
}

// SyncInstance refreshes an instance and merges the instances it links to.
func (s *Synchronizer) SyncInstance(ctx context.Context, iri *url.URL) error {
	instance, err := s.resolver.Instance(ctx, iri)
	if err != nil {
		return err
	}
	if instance.Instances == nil {
		return nil
	}

	c, err := s.resolver.FetchCollection(ctx, instance.Instances)
	if err != nil {
		return err
	}
	n := s.ReceiveInstances(ctx, c)
	log.Info().Str("instance", iri.String()).Int("entries", len(c.Entries())).Int("resolved", n).
		Msg("merged linked instances")
	return nil
}

// SyncArticles caches or refreshes every article an instance publishes. Failures are isolated per article.
func (s *Synchronizer) SyncArticles(ctx context.Context, iri *url.URL) error {
	instance, err := s.resolver.Instance(ctx, iri)
	if err != nil {
		return err
	}
	if instance.Local || instance.Articles == nil {
		return nil
	}

	c, err := s.resolver.FetchCollection(ctx, instance.Articles)
	if err != nil {
		return err
	}

	var synced atomic.Int64
	p := pool.New().WithMaxGoroutines(s.workers)
	for _, raw := range c.Entries() {
		articleIRI, err := objects.IRIEntry(raw)
		if err != nil {
			log.Warn().Err(err).Str("collection", c.ID).Msg("skipping malformed entry")
			continue
		}
		if !federation.SameHost(articleIRI, instance.ApID) {
			log.Warn().Str("article", articleIRI.String()).Str("instance", iri.String()).
				Msg("skipping article hosted elsewhere")
			continue
		}

		p.Go(func() {
			if _, err := s.resolver.RefreshArticle(ctx, articleIRI); err != nil {
				log.Warn().Err(err).Str("article", articleIRI.String()).Msg("failed to sync article")
				return
			}
			synced.Add(1)
		})
	}
	p.Wait()

	log.Info().Str("instance", iri.String()).Int("articles", len(c.Entries())).Int64("synced", synced.Load()).
		Msg("synced articles")
	return nil
}

// SyncNetwork runs SyncInstance and SyncArticles for every followed instance.
func (s *Synchronizer) SyncNetwork(ctx context.Context) error {
	followed, err := s.db.FollowedInstances(ctx)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return err
	}

	for _, instance := range followed {
		if err = s.SyncInstance(ctx, instance.ApID); err != nil {
			log.Warn().Err(err).Str("instance", instance.ApID.String()).Msg("instance sync failed")
			continue
		}
		if err = s.SyncArticles(ctx, instance.ApID); err != nil {
			log.Warn().Err(err).Str("instance", instance.ApID.String()).Msg("article sync failed")
		}
	}
	return ctx.Err()
}
