// Package cache keeps recently dereferenced remote documents, so that resolving a collection does not fetch the
// same actor once per entry.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "fedwiki:doc:"

type Cache interface {
	// Get returns the cached document for key, if any.
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, doc []byte)
	Forget(ctx context.Context, key string)
}

// Noop is used when no Redis server is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, string, []byte)        {}
func (Noop) Forget(context.Context, string)             {}

type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedis connects to the server at rawURL, e.g. redis://localhost:6379/0.
func NewRedis(ctx context.Context, rawURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return FromClient(client, ttl), nil
}

func FromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	doc, err := c.redis.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return nil, false
	}
	return doc, true
}

func (c *RedisCache) Set(ctx context.Context, key string, doc []byte) {
	if err := c.redis.Set(ctx, keyPrefix+key, doc, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *RedisCache) Forget(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
	}
}

func (c *RedisCache) Close() error {
	return c.redis.Close()
}
