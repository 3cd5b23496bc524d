package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/metrics"
	"github.com/swapfolio/swapfolio-go/pkg/interfaces"
)

// RedisResultCache stores serialized upstream results in Redis so that
// repeated evaluations of the same (chain, token, signal type) within the
// TTL window reuse the fetched facts.
type RedisResultCache struct {
	client redis.Cmdable
	prefix string
	logger *logrus.Logger
	mu     sync.Mutex
	stats  interfaces.ResultCacheStats
}

func NewRedisResultCache(client redis.Cmdable, keyPrefix string, logger *logrus.Logger) *RedisResultCache {
	if keyPrefix == "" {
		keyPrefix = "signal"
	}
	return &RedisResultCache{
		client: client,
		prefix: keyPrefix + ":",
		logger: logger,
	}
}

// Get returns the cached payload for key. A missing key is (nil, false, nil);
// the error return is reserved for Redis transport failures.
func (c *RedisResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.recordMiss()
			return nil, false, nil
		}
		c.recordError(err)
		return nil, false, err
	}

	c.recordHit()
	return val, true, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		c.recordError(err)
		return err
	}

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()
	return nil
}

func (c *RedisResultCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.recordError(err)
		return err
	}
	return nil
}

func (c *RedisResultCache) Stats() interfaces.ResultCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close is a no-op. The Redis client is owned by the caller.
func (c *RedisResultCache) Close() error {
	return nil
}

func (c *RedisResultCache) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	metrics.CacheHits.WithLabelValues("redis").Inc()
}

func (c *RedisResultCache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	metrics.CacheMisses.WithLabelValues("redis").Inc()
}

func (c *RedisResultCache) recordError(err error) {
	c.mu.Lock()
	c.stats.Errors++
	c.stats.LastError = err.Error()
	c.stats.LastErrorAt = time.Now()
	c.mu.Unlock()
	c.logger.WithError(err).Warn("Redis result cache operation failed")
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryResultCache is the in-process fallback store. Entries expire lazily
// on read; the sweep scheduler calls PruneExpired for anything never read
// again.
type MemoryResultCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	stats   interfaces.ResultCacheStats
}

func NewMemoryResultCache() *MemoryResultCache {
	return &MemoryResultCache{
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		metrics.CacheMisses.WithLabelValues("memory").Inc()
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.stats.ExpiredEntries++
		c.stats.Misses++
		metrics.CacheMisses.WithLabelValues("memory").Inc()
		return nil, false, nil
	}

	c.stats.Hits++
	metrics.CacheHits.WithLabelValues("memory").Inc()
	return entry.value, true, nil
}

func (c *MemoryResultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	c.stats.Sets++
	return nil
}

func (c *MemoryResultCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryResultCache) Stats() interfaces.ResultCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *MemoryResultCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

// PruneExpired drops entries whose TTL has passed and returns how many were
// removed.
func (c *MemoryResultCache) PruneExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			pruned++
		}
	}
	c.stats.ExpiredEntries += int64(pruned)
	return pruned
}

// Len reports the current number of entries, expired or not.
func (c *MemoryResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

