// Package objects maps articles, comments, edits and actors to and from their wire form. It dereferences remote
// objects through a read-through cache kept in the database.
package objects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedwiki/internal/conversions"
	"github.com/sidereusnuntius/fedwiki/internal/db"
	"github.com/sidereusnuntius/fedwiki/internal/domain"
	"github.com/sidereusnuntius/fedwiki/internal/edit"
	"github.com/sidereusnuntius/fedwiki/internal/federation"
	"github.com/sidereusnuntius/fedwiki/internal/state"
)

// Fetcher dereferences remote documents.
type Fetcher interface {
	Dereference(ctx context.Context, iri *url.URL) ([]byte, error)
}

type Resolver struct {
	st      *state.State
	db      db.DB
	engine  *edit.Engine
	fetcher Fetcher
	// refresh is the age after which cached actors are fetched again. Zero disables refreshing.
	refresh time.Duration
}

func New(st *state.State, engine *edit.Engine, fetcher Fetcher) *Resolver {
	return &Resolver{
		st:      st,
		db:      st.DB,
		engine:  engine,
		fetcher: fetcher,
		refresh: st.Config.RefreshInterval,
	}
}

// Actor is what the inbox needs to know about a sender or follower.
type Actor struct {
	ID          *url.URL
	Inbox       *url.URL
	SharedInbox *url.URL
	PublicKey   string
	// Instance is the actor itself for instance actors, and the owning instance for persons.
	Instance domain.Instance
	Person   *domain.Person
}

func (r *Resolver) stale(last time.Time) bool {
	return r.refresh > 0 && time.Since(last) > r.refresh
}

func (r *Resolver) fetch(ctx context.Context, iri *url.URL) ([]byte, error) {
	if r.st.IsLocal(iri) {
		return nil, fmt.Errorf("%w: refusing to fetch local IRI %s", federation.ErrNotFoundIRI, iri)
	}
	return r.fetcher.Dereference(ctx, iri)
}

// Instance returns the instance with the given id, fetching it when unknown or due for a refresh. When a refresh
// fails the cached copy is returned and marked stale.
func (r *Resolver) Instance(ctx context.Context, iri *url.URL) (domain.Instance, error) {
	if r.st.IsLocal(iri) {
		return r.db.GetLocalInstance(ctx)
	}

	cached, err := r.db.GetInstanceByApID(ctx, iri)
	found := err == nil
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return cached, err
	}
	if found && !r.stale(cached.LastRefresh) {
		return cached, nil
	}

	instance, err := r.fetchInstance(ctx, iri)
	if err != nil {
		if !found {
			return instance, err
		}
		log.Warn().Err(err).Str("instance", iri.String()).Msg("instance refresh failed, using cached copy")
		if err = r.db.MarkInstanceStale(ctx, cached.ID); err != nil {
			return cached, err
		}
		cached.Stale = true
		return cached, nil
	}
	return instance, nil
}

func (r *Resolver) fetchInstance(ctx context.Context, iri *url.URL) (domain.Instance, error) {
	data, err := r.fetch(ctx, iri)
	if err != nil {
		return domain.Instance{}, err
	}

	var props map[string]any
	if err = json.Unmarshal(data, &props); err != nil {
		return domain.Instance{}, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}
	instance, err := conversions.InstanceFromJSON(ctx, props)
	if err != nil {
		return instance, err
	}
	if err = federation.CheckDomain(instance.ApID, iri); err != nil {
		return instance, err
	}
	return r.db.UpsertInstance(ctx, instance)
}

// Person returns the person with the given id, fetching it and its instance when unknown or due for a refresh.
func (r *Resolver) Person(ctx context.Context, iri *url.URL) (domain.Person, error) {
	cached, err := r.db.GetPersonByApID(ctx, iri)
	if err == nil && (cached.Local || !r.stale(cached.LastRefresh)) {
		return cached, nil
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return cached, err
	}
	if r.st.IsLocal(iri) {
		return cached, fmt.Errorf("%w: %s", federation.ErrNotFoundIRI, iri)
	}

	data, err := r.fetch(ctx, iri)
	if err != nil {
		return cached, err
	}
	var props map[string]any
	if err = json.Unmarshal(data, &props); err != nil {
		return cached, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}
	return r.storePerson(ctx, iri, props)
}

func (r *Resolver) storePerson(ctx context.Context, iri *url.URL, props map[string]any) (domain.Person, error) {
	person, err := conversions.PersonFromJSON(ctx, props)
	if err != nil {
		return person, err
	}
	if err = federation.CheckDomain(person.ApID, iri); err != nil {
		return person, err
	}

	instance, err := r.Instance(ctx, instanceOf(person.ApID))
	if err != nil {
		return person, fmt.Errorf("resolving instance of %s: %w", person.ApID, err)
	}
	person.InstanceID = instance.ID
	return r.db.UpsertPerson(ctx, person)
}

// Author resolves the author of an edit, falling back to the ghost person when they cannot be resolved.
func (r *Resolver) Author(ctx context.Context, iri *url.URL) domain.Person {
	if iri != nil {
		p, err := r.Person(ctx, iri)
		if err == nil {
			return p
		}
		log.Warn().Err(err).Str("author", iri.String()).Msg("attributing edit to ghost")
	}

	ghost, err := r.db.GetLocalPerson(ctx, domain.GhostUsername)
	if err != nil {
		log.Error().Err(err).Msg("ghost person missing")
	}
	return ghost
}

// ResolveActor returns a person or instance actor. Cached actors are served from the database.
func (r *Resolver) ResolveActor(ctx context.Context, iri *url.URL) (Actor, error) {
	if i, err := r.db.GetInstanceByApID(ctx, iri); err == nil && (i.Local || !r.stale(i.LastRefresh)) {
		return instanceActor(i), nil
	}
	if p, err := r.db.GetPersonByApID(ctx, iri); err == nil && (p.Local || !r.stale(p.LastRefresh)) {
		return r.personActor(ctx, p)
	}
	if r.st.IsLocal(iri) {
		return Actor{}, fmt.Errorf("%w: %s", federation.ErrNotFoundIRI, iri)
	}

	data, err := r.fetch(ctx, iri)
	if err != nil {
		return Actor{}, err
	}
	typ, _, err := peek(data)
	if err != nil {
		return Actor{}, err
	}

	var props map[string]any
	if err = json.Unmarshal(data, &props); err != nil {
		return Actor{}, fmt.Errorf("%w: %w", federation.ErrUnprocessablePropValue, err)
	}

	switch typ {
	case "Person":
		p, err := r.storePerson(ctx, iri, props)
		if err != nil {
			return Actor{}, err
		}
		return r.personActor(ctx, p)
	case "Service", "Application":
		i, err := conversions.InstanceFromJSON(ctx, props)
		if err != nil {
			return Actor{}, err
		}
		if err = federation.CheckDomain(i.ApID, iri); err != nil {
			return Actor{}, err
		}
		if i, err = r.db.UpsertInstance(ctx, i); err != nil {
			return Actor{}, err
		}
		return instanceActor(i), nil
	default:
		return Actor{}, fmt.Errorf("%w: actor type %q", federation.ErrUnsupported, typ)
	}
}

// PublicKey returns the public key of the actor owning keyID.
func (r *Resolver) PublicKey(ctx context.Context, keyID *url.URL) (string, *url.URL, error) {
	owner := federation.Owner(keyID)
	actor, err := r.ResolveActor(ctx, owner)
	if err != nil {
		return "", owner, err
	}
	return actor.PublicKey, owner, nil
}

func instanceActor(i domain.Instance) Actor {
	return Actor{
		ID:          i.ApID,
		Inbox:       i.Inbox,
		SharedInbox: i.SharedInbox,
		PublicKey:   i.PublicKey,
		Instance:    i,
	}
}

func (r *Resolver) personActor(ctx context.Context, p domain.Person) (Actor, error) {
	i, err := r.db.GetInstanceByID(ctx, p.InstanceID)
	if err != nil {
		return Actor{}, err
	}
	return Actor{
		ID:          p.ApID,
		Inbox:       p.Inbox,
		SharedInbox: p.SharedInbox,
		PublicKey:   p.PublicKey,
		Instance:    i,
		Person:      &p,
	}, nil
}

// instanceOf returns the id of the instance actor an object belongs to, which is the root of its host.
func instanceOf(iri *url.URL) *url.URL {
	return &url.URL{Scheme: iri.Scheme, Host: iri.Host}
}
