package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"civic/internal/civic/models"
	"civic/pkg/domain"
)

const defaultSnapshotTTL = 30 * time.Second

// Directory is the read side used by the aggregation engine. Snapshots are
// held locally for a short TTL so a remote store is not hit per request. When
// the store is a Versioner the local copy is only reused while its version is
// still the latest, so publishes from other processes show up on the next
// read.
type Directory struct {
	store  SnapshotStore
	local  *gocache.Cache
	clock  func() time.Time
	logger *slog.Logger
}

type Option func(*Directory)

// WithSnapshotTTL sets how long a loaded snapshot is reused. Zero disables
// local caching.
func WithSnapshotTTL(d time.Duration) Option {
	return func(dir *Directory) {
		if d <= 0 {
			dir.local = nil
			return
		}
		dir.local = gocache.New(d, 2*d)
	}
}

func WithClock(clock func() time.Time) Option {
	return func(dir *Directory) {
		if clock != nil {
			dir.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(dir *Directory) {
		if logger != nil {
			dir.logger = logger
		}
	}
}

// New wraps a snapshot store.
func New(store SnapshotStore, opts ...Option) *Directory {
	d := &Directory{
		store:  store,
		local:  gocache.New(defaultSnapshotTTL, 2*defaultSnapshotTTL),
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GetByDistrict returns the current roster of a district. Unknown districts
// yield an empty slice; a level with no published snapshot is an error.
func (d *Directory) GetByDistrict(ctx context.Context, level domain.Level, districtID string) ([]models.Representative, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := d.snapshot(ctx, level)
	if err != nil {
		return nil, err
	}
	return snap.Records(districtID), nil
}

// SnapshotAge reports how old the current snapshot of a level is.
func (d *Directory) SnapshotAge(ctx context.Context, level domain.Level) (time.Duration, error) {
	snap, err := d.snapshot(ctx, level)
	if err != nil {
		return 0, err
	}
	return d.clock().Sub(snap.PublishedAt), nil
}

// IsStale reports whether a level has gone more than two cadences without a
// new snapshot.
func (d *Directory) IsStale(ctx context.Context, level domain.Level) (bool, error) {
	age, err := d.SnapshotAge(ctx, level)
	if err != nil {
		return false, err
	}
	return age > 2*Cadence(level), nil
}

// Publish validates and stores a snapshot, then drops the local copy.
func (d *Directory) Publish(ctx context.Context, snap *Snapshot) error {
	return d.PublishAll(ctx, []*Snapshot{snap})
}

// PublishAll validates every snapshot before storing any. Stores that can
// run transactions publish the batch atomically.
func (d *Directory) PublishAll(ctx context.Context, snaps []*Snapshot) error {
	for _, snap := range snaps {
		if err := snap.Validate(); err != nil {
			return fmt.Errorf("invalid %s snapshot: %w", snap.Level, err)
		}
		if snap.PublishedAt.IsZero() {
			snap.PublishedAt = d.clock()
		}
	}
	publish := func(ctx context.Context) error {
		for _, snap := range snaps {
			if err := d.store.Publish(ctx, snap); err != nil {
				return err
			}
		}
		return nil
	}
	var err error
	if tx, ok := d.store.(Transactor); ok && len(snaps) > 1 {
		err = tx.RunInTx(ctx, publish)
	} else {
		err = publish(ctx)
	}
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		if d.local != nil {
			d.local.Delete(string(snap.Level))
		}
		d.logger.InfoContext(ctx, "directory snapshot published",
			"level", snap.Level,
			"version", snap.Version,
			"districts", len(snap.Districts),
			"records", snap.Count(),
		)
	}
	return nil
}

func (d *Directory) snapshot(ctx context.Context, level domain.Level) (*Snapshot, error) {
	if d.local != nil {
		if v, ok := d.local.Get(string(level)); ok && d.current(ctx, v.(*Snapshot)) {
			return v.(*Snapshot), nil
		}
	}
	snap, err := d.store.Snapshot(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("load %s snapshot: %w", level, err)
	}
	if d.local != nil {
		d.local.SetDefault(string(level), snap)
	}
	return snap, nil
}

// current reports whether a locally held snapshot is still the published one.
// A failed version check keeps serving the local copy until its TTL ends.
func (d *Directory) current(ctx context.Context, snap *Snapshot) bool {
	v, ok := d.store.(Versioner)
	if !ok {
		return true
	}
	latest, err := v.LatestVersion(ctx, snap.Level)
	if err != nil {
		d.logger.WarnContext(ctx, "directory version check failed", "level", snap.Level, "error", err)
		return true
	}
	return latest == snap.Version
}
