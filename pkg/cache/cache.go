package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache is an explicit port called by the orchestrator and resolver at
// well-defined points. Correctness never depends on it: every error
// degrades to a miss, and writes/invalidations are best-effort.
type Cache interface {
	Get(ctx context.Context, key string, out interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string)
}

type redisCache struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string, out interface{}) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.Warnf("cache get %s failed: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logrus.Warnf("cache entry %s is not decodable, dropping: %v", key, err)
		c.client.Del(ctx, key)
		return false
	}
	return true
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		logrus.Warnf("cache set %s failed: %v", key, err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logrus.Warnf("cache invalidate failed: %v", err)
	}
}

// noop backs the degraded configuration where no cache is deployed.
type noop struct{}

func NewNoop() Cache {
	return noop{}
}

func (noop) Get(context.Context, string, interface{}) bool           { return false }
func (noop) Set(context.Context, string, interface{}, time.Duration) {}
func (noop) Invalidate(context.Context, ...string)                   {}
