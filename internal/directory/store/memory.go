// Package store holds SnapshotStore implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"civic/internal/directory"
	"civic/pkg/domain"
	"civic/pkg/platform/sentinel"
)

// InMemoryStore keeps the current snapshot per level behind an atomic
// pointer so readers never block on a publish.
type InMemoryStore struct {
	mu     sync.Mutex // serializes publishers only
	levels map[domain.Level]*atomic.Pointer[directory.Snapshot]
}

// NewInMemoryStore has a slot for every level.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{levels: make(map[domain.Level]*atomic.Pointer[directory.Snapshot])}
	for _, l := range domain.AllLevels() {
		s.levels[l] = new(atomic.Pointer[directory.Snapshot])
	}
	return s
}

func (s *InMemoryStore) Snapshot(ctx context.Context, level domain.Level) (*directory.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slot, ok := s.levels[level]
	if !ok {
		return nil, fmt.Errorf("level %q: %w", level, sentinel.ErrNotFound)
	}
	snap := slot.Load()
	if snap == nil {
		return nil, fmt.Errorf("no %s snapshot: %w", level, sentinel.ErrNotFound)
	}
	return snap, nil
}

// LatestVersion returns the current version of a level, zero when nothing
// was published.
func (s *InMemoryStore) LatestVersion(ctx context.Context, level domain.Level) (int64, error) {
	snap, err := s.Snapshot(ctx, level)
	if errors.Is(err, sentinel.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return snap.Version, nil
}

func (s *InMemoryStore) Publish(ctx context.Context, snap *directory.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot, ok := s.levels[snap.Level]
	if !ok {
		return fmt.Errorf("unknown level %q", snap.Level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if prev := slot.Load(); prev != nil {
		current = prev.Version
	}
	if snap.Version == 0 {
		snap.Version = current + 1
	} else if snap.Version <= current {
		return fmt.Errorf("%s version %d (current %d): %w", snap.Level, snap.Version, current, directory.ErrStaleVersion)
	}
	slot.Store(snap)
	return nil
}
