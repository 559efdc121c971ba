// Package queue runs outbound delivery and collection syncs on backlite workers, so that network round-trips
// never hold up the request or edit that caused them.
package queue

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
)

type Deliverer interface {
	Deliver(ctx context.Context, body []byte, to *url.URL) error
}

type Syncer interface {
	SyncNetwork(ctx context.Context) error
	SyncArticles(ctx context.Context, instance *url.URL) error
}

type Queue struct {
	client    *backlite.Client
	deliverer Deliverer
	syncer    Syncer
	// timeout bounds a single delivery attempt.
	timeout time.Duration
}

// New registers the delivery and sync queues on client. Start must be called to run them.
func New(client *backlite.Client, deliverer Deliverer, syncer Syncer, timeout time.Duration) *Queue {
	q := &Queue{
		client:    client,
		deliverer: deliverer,
		syncer:    syncer,
		timeout:   timeout,
	}

	q.client.Register(backlite.NewQueue[DeliverJob](q.deliver))
	q.client.Register(backlite.NewQueue[SyncJob](q.sync))
	return q
}

func (q *Queue) Start(ctx context.Context) {
	q.client.Start(ctx)
	log.Info().Msg("started task queue")
}

// Deliver enqueues body for delivery to inbox.
func (q *Queue) Deliver(ctx context.Context, body []byte, inbox *url.URL) error {
	log.Debug().Str("inbox", inbox.String()).Msg("enqueuing delivery")
	_, err := q.client.Add(DeliverJob{Inbox: inbox.String(), Body: body}).Ctx(ctx).Save()
	return err
}

// SyncArticles enqueues caching the articles of instance.
func (q *Queue) SyncArticles(ctx context.Context, instance *url.URL) error {
	_, err := q.client.Add(SyncJob{Kind: SyncArticles, Instance: instance.String()}).Ctx(ctx).Save()
	return err
}

// RunSync enqueues a network sync every interval until ctx is done.
func (q *Queue) RunSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.client.Add(SyncJob{Kind: SyncNetwork}).Ctx(ctx).Save(); err != nil {
				log.Error().Err(err).Msg("failed to enqueue network sync")
			}
		}
	}
}

func (q *Queue) deliver(ctx context.Context, job DeliverJob) error {
	inbox, err := url.Parse(job.Inbox)
	if err != nil {
		// Retrying cannot fix a bad inbox.
		log.Error().Err(err).Str("inbox", job.Inbox).Msg("dropping delivery")
		return nil
	}

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	if err = q.deliverer.Deliver(ctx, job.Body, inbox); err != nil {
		log.Warn().Err(err).Str("inbox", job.Inbox).Msg("delivery failed")
		return err
	}
	log.Debug().Str("inbox", job.Inbox).Msg("delivered activity")
	return nil
}

func (q *Queue) sync(ctx context.Context, job SyncJob) error {
	switch job.Kind {
	case SyncNetwork:
		return q.syncer.SyncNetwork(ctx)
	case SyncArticles:
		instance, err := url.Parse(job.Instance)
		if err != nil {
			log.Error().Err(err).Str("instance", job.Instance).Msg("dropping article sync")
			return nil
		}
		return q.syncer.SyncArticles(ctx, instance)
	default:
		return fmt.Errorf("unknown sync kind %d", job.Kind)
	}
}
