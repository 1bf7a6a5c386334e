package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"civic/internal/cache/metrics"
	"civic/internal/civic/models"
	"civic/pkg/domain"
	"civic/pkg/platform/sentinel"
)

// Entry kinds, used as key prefixes and metric labels.
const (
	KindZip      = "zip"
	KindDistrict = "district"
)

const (
	DefaultZipTTL      = 24 * time.Hour
	DefaultDistrictTTL = 6 * time.Hour
)

// Entry is the serialized envelope around every cached value. Expiry is
// decided at read time from InsertedAt and TTL, whatever the backend does.
type Entry struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	InsertedAt time.Time       `json:"inserted_at"`
	TTL        time.Duration   `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at now. A zero TTL never
// expires.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.InsertedAt.Add(e.TTL))
}

func ZipKey(zip domain.ZipCode) string {
	return KindZip + ":" + zip.String()
}

func DistrictKey(level domain.Level, districtID string) string {
	return KindDistrict + ":" + level.String() + ":" + districtID
}

// ResolutionCache stores resolved jurisdictions by ZIP code and validated
// rosters by (level, district). Backend failures and undecodable entries
// degrade to misses; they never fail a resolution.
type ResolutionCache struct {
	store       Store
	zipTTL      time.Duration
	districtTTL time.Duration
	clock       func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*ResolutionCache)

func WithTTLs(zipTTL, districtTTL time.Duration) Option {
	return func(c *ResolutionCache) {
		if zipTTL > 0 {
			c.zipTTL = zipTTL
		}
		if districtTTL > 0 {
			c.districtTTL = districtTTL
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *ResolutionCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *ResolutionCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ResolutionCache) {
		c.metrics = m
	}
}

func NewResolutionCache(store Store, opts ...Option) *ResolutionCache {
	c := &ResolutionCache{
		store:       store,
		zipTTL:      DefaultZipTTL,
		districtTTL: DefaultDistrictTTL,
		clock:       time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Jurisdiction returns the cached jurisdiction, districts included, for zip.
func (c *ResolutionCache) Jurisdiction(ctx context.Context, zip domain.ZipCode) (models.Jurisdiction, bool) {
	var j models.Jurisdiction
	ok := c.load(ctx, KindZip, ZipKey(zip), &j, func() error {
		if j.ZipCode != zip {
			return fmt.Errorf("zip %q stored under %q", j.ZipCode, zip)
		}
		if j.State == "" || len(j.ApplicableLevels) == 0 {
			return errors.New("jurisdiction missing state or levels")
		}
		return nil
	})
	return j, ok
}

func (c *ResolutionCache) PutJurisdiction(ctx context.Context, j models.Jurisdiction) error {
	return c.save(ctx, KindZip, ZipKey(j.ZipCode), j, c.zipTTL)
}

// Roster returns the cached validated representatives of a district. An
// empty roster is a valid hit.
func (c *ResolutionCache) Roster(ctx context.Context, level domain.Level, districtID string) ([]models.Representative, bool) {
	var reps []models.Representative
	ok := c.load(ctx, KindDistrict, DistrictKey(level, districtID), &reps, func() error {
		for _, r := range reps {
			if r.Level != level || r.DistrictID != districtID {
				return fmt.Errorf("record %q belongs to %s/%s", r.ID, r.Level, r.DistrictID)
			}
		}
		return nil
	})
	if ok && reps == nil {
		reps = []models.Representative{}
	}
	return reps, ok
}

func (c *ResolutionCache) PutRoster(ctx context.Context, level domain.Level, districtID string, reps []models.Representative) error {
	if reps == nil {
		reps = []models.Representative{}
	}
	return c.save(ctx, KindDistrict, DistrictKey(level, districtID), reps, c.districtTTL)
}

func (c *ResolutionCache) InvalidateZip(ctx context.Context, zip domain.ZipCode) error {
	if err := c.store.Delete(ctx, ZipKey(zip)); err != nil {
		return err
	}
	c.metrics.IncrementInvalidation(KindZip)
	return nil
}

func (c *ResolutionCache) InvalidateDistrict(ctx context.Context, level domain.Level, districtID string) error {
	if err := c.store.Delete(ctx, DistrictKey(level, districtID)); err != nil {
		return err
	}
	c.metrics.IncrementInvalidation(KindDistrict)
	return nil
}

func (c *ResolutionCache) save(ctx context.Context, kind, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	raw, err := json.Marshal(Entry{
		Key:        key,
		Value:      payload,
		InsertedAt: c.clock().UTC(),
		TTL:        ttl,
	})
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		return err
	}
	c.metrics.IncrementWrite(kind)
	return nil
}

// load decodes the entry under key into out. check validates the decoded
// value; a failing check counts as corruption.
func (c *ResolutionCache) load(ctx context.Context, kind, key string, out any, check func() error) bool {
	raw, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		c.metrics.IncrementLookup(kind, "miss")
		return false
	case errors.Is(err, sentinel.ErrCorrupt):
		c.discard(ctx, kind, key, err)
		return false
	case err != nil:
		c.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		c.metrics.IncrementLookup(kind, "error")
		return false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.discard(ctx, kind, key, err)
		return false
	}
	if entry.Key != key {
		c.discard(ctx, kind, key, fmt.Errorf("envelope key %q", entry.Key))
		return false
	}
	if entry.Expired(c.clock()) {
		c.metrics.IncrementLookup(kind, "expired")
		_ = c.store.Delete(ctx, key)
		return false
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		c.discard(ctx, kind, key, err)
		return false
	}
	if check != nil {
		if err := check(); err != nil {
			c.discard(ctx, kind, key, err)
			return false
		}
	}
	c.metrics.IncrementLookup(kind, "hit")
	return true
}

func (c *ResolutionCache) discard(ctx context.Context, kind, key string, cause error) {
	err := fmt.Errorf("%w: %w", models.ErrCacheCorrupt, cause)
	c.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", key, "error", err)
	c.metrics.IncrementLookup(kind, "corrupt")
	if delErr := c.store.Delete(ctx, key); delErr != nil {
		c.logger.WarnContext(ctx, "failed to delete corrupt cache entry", "key", key, "error", delErr)
	}
}
