package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// SnapshotCache holds actor snapshots with a fixed TTL. The cache is
// advisory: a lookup failure degrades to a store read, never to an
// authorization error, so the interface carries no error returns.
type SnapshotCache interface {
	// Get returns the cached snapshot for an actor, if present and fresh
	Get(ctx context.Context, actorID int64) (*Snapshot, bool)

	// Set stores a snapshot under the cache's TTL
	Set(ctx context.Context, actorID int64, snap *Snapshot)

	// Invalidate drops the actor's entry
	Invalidate(ctx context.Context, actorID int64)
}

// MemoryCache is an in-process LRU snapshot cache with TTL eviction
type MemoryCache struct {
	cache *lru.LRU[int64, *Snapshot]
}

// NewMemoryCache creates an in-memory snapshot cache
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		cache: lru.NewLRU[int64, *Snapshot](maxEntries, nil, ttl),
	}
}

// Get retrieves a cached snapshot
func (c *MemoryCache) Get(ctx context.Context, actorID int64) (*Snapshot, bool) {
	return c.cache.Get(actorID)
}

// Set stores a snapshot
func (c *MemoryCache) Set(ctx context.Context, actorID int64, snap *Snapshot) {
	c.cache.Add(actorID, snap)
}

// Invalidate drops the actor's entry
func (c *MemoryCache) Invalidate(ctx context.Context, actorID int64) {
	c.cache.Remove(actorID)
}

// RedisCache is a Redis-backed snapshot cache shared across instances.
// Redis errors are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewRedisCache creates a Redis-backed snapshot cache
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *observability.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.WithComponent("snapshot-cache"),
	}
}

func (c *RedisCache) key(actorID int64) string {
	return fmt.Sprintf("myscheduling:actor-snapshot:%d", actorID)
}

// Get retrieves a cached snapshot
func (c *RedisCache) Get(ctx context.Context, actorID int64) (*Snapshot, bool) {
	data, err := c.client.Get(ctx, c.key(actorID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("actor_id", actorID).Warn("snapshot cache read failed")
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.WithError(err).WithField("actor_id", actorID).Warn("snapshot cache entry corrupt")
		return nil, false
	}
	return &snap, true
}

// Set stores a snapshot under the cache TTL
func (c *RedisCache) Set(ctx context.Context, actorID int64, snap *Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.WithError(err).WithField("actor_id", actorID).Warn("snapshot cache encode failed")
		return
	}
	if err := c.client.Set(ctx, c.key(actorID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("actor_id", actorID).Warn("snapshot cache write failed")
	}
}

// Invalidate drops the actor's entry
func (c *RedisCache) Invalidate(ctx context.Context, actorID int64) {
	if err := c.client.Del(ctx, c.key(actorID)).Err(); err != nil {
		c.logger.WithError(err).WithField("actor_id", actorID).Warn("snapshot cache invalidate failed")
	}
}

// NopCache caches nothing; every lookup is a miss. Used in tests and
// when caching is disabled.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, actorID int64) (*Snapshot, bool) { return nil, false }
func (NopCache) Set(ctx context.Context, actorID int64, snap *Snapshot)   {}
func (NopCache) Invalidate(ctx context.Context, actorID int64)            {}
