// Package cache memoizes ZIP resolutions and district rosters.
//
// Entries are replaced whole by key and never mutated in place, so
// concurrent writers are safe and the last writer wins.
package cache

import (
	"context"
	"time"
)

// Store is a byte-oriented key/value backend with per-key TTL.
// Get returns sentinel.ErrNotFound on a miss or an expired key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
