package queue

import (
	"time"

	"github.com/mikestefanello/backlite"
)

const (
	DeliveryQueue = "Delivery"
	SyncQueue     = "Sync"
)

// DeliverJob posts a signed activity to one inbox.
type DeliverJob struct {
	Inbox string
	Body  []byte
}

func (j DeliverJob) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        DeliveryQueue,
		MaxAttempts: 5,
		Backoff:     30 * time.Second,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   12 * time.Hour,
			OnlyFailed: false,
			Data: &backlite.RetainData{
				OnlyFailed: true,
			},
		},
	}
}

type SyncKind uint8

const (
	// SyncNetwork refreshes every followed instance and merges their linked instances.
	SyncNetwork SyncKind = iota
	// SyncArticles caches the articles of one instance.
	SyncArticles
)

type SyncJob struct {
	Kind     SyncKind
	Instance string
}

func (j SyncJob) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        SyncQueue,
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   time.Hour,
			OnlyFailed: true,
		},
	}
}
