package interfaces

import (
	"context"
	"time"
)

// ResultCacheStats holds counters for cache observability endpoints.
type ResultCacheStats struct {
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	Sets           int64     `json:"sets"`
	Errors         int64     `json:"errors"`
	ExpiredEntries int64     `json:"expired_entries"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorAt    time.Time `json:"last_error_at,omitempty"`
}

// ResultCache memoizes upstream evaluation facts under string keys with a
// short TTL. Implementations must treat a missing key as (nil, false, nil),
// reserving the error return for transport failures so callers can
// distinguish "not cached" from "cache unreachable".
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Stats() ResultCacheStats
	Close() error
}
