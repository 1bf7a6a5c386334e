package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"civic/pkg/platform/sentinel"
)

// MemoryStore keeps entries in process memory. Expiry is checked on read;
// a positive cleanup interval also runs go-cache's janitor.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a memory store. A cleanupInterval <= 0 disables the
// background sweep.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.c.Get(key)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, sentinel.ErrCorrupt
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.c.Delete(key)
	return nil
}

// Len reports the number of stored items, expired ones included until swept.
func (s *MemoryStore) Len() int {
	return s.c.ItemCount()
}
