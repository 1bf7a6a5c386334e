package cache_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"civic/internal/cache"
	"civic/internal/cache/metrics"
	"civic/internal/civic/models"
	"civic/internal/platform/logger"
	"civic/pkg/domain"
	"civic/pkg/platform/sentinel"
)

type ResolutionCacheSuite struct {
	suite.Suite
	store   *cache.MemoryStore
	metrics *metrics.Metrics
	cache   *cache.ResolutionCache
	now     time.Time
}

func TestResolutionCacheSuite(t *testing.T) {
	suite.Run(t, new(ResolutionCacheSuite))
}

func (s *ResolutionCacheSuite) SetupTest() {
	s.now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	s.store = cache.NewMemoryStore(0)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.cache = cache.NewResolutionCache(s.store,
		cache.WithTTLs(time.Hour, 10*time.Minute),
		cache.WithClock(func() time.Time { return s.now }),
		cache.WithLogger(logger.Discard()),
		cache.WithMetrics(s.metrics),
	)
}

func sacramento() models.Jurisdiction {
	j, err := models.NewJurisdiction(models.JurisdictionParams{
		ZipCode:             "95814",
		PlaceName:           "Sacramento",
		County:              "Sacramento County",
		State:               "CA",
		IncorporationStatus: models.StatusIncorporatedCity,
		Confidence:          0.95,
		Source:              "google",
		ProviderID:          "google",
		ResolvedAt:          time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		panic(err)
	}
	return j.WithDistricts([]models.DistrictAssignment{
		{Level: domain.LevelFederal, Chamber: domain.ChamberHouse, DistrictID: "CA-07", Confidence: 0.95, Source: "zip-crosswalk"},
	})
}

func (s *ResolutionCacheSuite) lookups(kind, result string) float64 {
	return promtest.ToFloat64(s.metrics.Lookups.WithLabelValues(kind, result))
}

// =============================================================================
// Jurisdictions
// =============================================================================

func (s *ResolutionCacheSuite) TestJurisdictionRoundTrip() {
	ctx := context.Background()
	want := sacramento()
	s.Require().NoError(s.cache.PutJurisdiction(ctx, want))

	got, ok := s.cache.Jurisdiction(ctx, "95814")
	s.Require().True(ok)
	s.Equal(want, got)

	wantJSON, err := json.Marshal(want)
	s.Require().NoError(err)
	gotJSON, err := json.Marshal(got)
	s.Require().NoError(err)
	s.Equal(string(wantJSON), string(gotJSON), "cached value serializes identically")
	s.Equal(1.0, s.lookups(cache.KindZip, "hit"))
}

func (s *ResolutionCacheSuite) TestJurisdictionMiss() {
	_, ok := s.cache.Jurisdiction(context.Background(), "10001")
	s.False(ok)
	s.Equal(1.0, s.lookups(cache.KindZip, "miss"))
}

func (s *ResolutionCacheSuite) TestEntryExpiresAtReadTime() {
	ctx := context.Background()
	s.Require().NoError(s.cache.PutJurisdiction(ctx, sacramento()))

	s.now = s.now.Add(time.Hour)
	_, ok := s.cache.Jurisdiction(ctx, "95814")
	s.False(ok)
	s.Equal(1.0, s.lookups(cache.KindZip, "expired"))
	s.Equal(0, s.store.Len(), "expired entry is removed")
}

func (s *ResolutionCacheSuite) TestInvalidateZip() {
	ctx := context.Background()
	s.Require().NoError(s.cache.PutJurisdiction(ctx, sacramento()))
	s.Require().NoError(s.cache.InvalidateZip(ctx, "95814"))

	_, ok := s.cache.Jurisdiction(ctx, "95814")
	s.False(ok)
}

// =============================================================================
// Corrupt entries
// =============================================================================

func (s *ResolutionCacheSuite) TestUndecodableEntryIsMissAndDeleted() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, cache.ZipKey("95814"), []byte("{not json"), time.Hour))

	_, ok := s.cache.Jurisdiction(ctx, "95814")
	s.False(ok)
	s.Equal(1.0, s.lookups(cache.KindZip, "corrupt"))

	_, err := s.store.Get(ctx, cache.ZipKey("95814"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ResolutionCacheSuite) TestEnvelopeKeyMismatchIsCorrupt() {
	ctx := context.Background()
	payload, _ := json.Marshal(sacramento())
	raw, _ := json.Marshal(cache.Entry{Key: cache.ZipKey("95816"), Value: payload, InsertedAt: s.now, TTL: time.Hour})
	s.Require().NoError(s.store.Set(ctx, cache.ZipKey("95814"), raw, time.Hour))

	_, ok := s.cache.Jurisdiction(ctx, "95814")
	s.False(ok)
	s.Equal(1.0, s.lookups(cache.KindZip, "corrupt"))
}

func (s *ResolutionCacheSuite) TestEmptyJurisdictionIsCorrupt() {
	ctx := context.Background()
	raw, _ := json.Marshal(cache.Entry{Key: cache.ZipKey("95814"), Value: json.RawMessage(`{}`), InsertedAt: s.now, TTL: time.Hour})
	s.Require().NoError(s.store.Set(ctx, cache.ZipKey("95814"), raw, time.Hour))

	_, ok := s.cache.Jurisdiction(ctx, "95814")
	s.False(ok)
	s.Equal(1.0, s.lookups(cache.KindZip, "corrupt"))
}

func (s *ResolutionCacheSuite) TestRosterForOtherDistrictIsCorrupt() {
	ctx := context.Background()
	reps := []models.Representative{{ID: "x", Name: "Doris Matsui", Level: domain.LevelFederal, DistrictID: "CA-06"}}
	payload, _ := json.Marshal(reps)
	key := cache.DistrictKey(domain.LevelFederal, "CA-07")
	raw, _ := json.Marshal(cache.Entry{Key: key, Value: payload, InsertedAt: s.now, TTL: time.Hour})
	s.Require().NoError(s.store.Set(ctx, key, raw, time.Hour))

	_, ok := s.cache.Roster(ctx, domain.LevelFederal, "CA-07")
	s.False(ok)
	s.Equal(1.0, s.lookups(cache.KindDistrict, "corrupt"))
}

// =============================================================================
// Rosters
// =============================================================================

func (s *ResolutionCacheSuite) TestRosterRoundTrip() {
	ctx := context.Background()
	reps := []models.Representative{{
		ID: "ca-07-matsui", Name: "Doris Matsui", Level: domain.LevelFederal,
		Chamber: domain.ChamberHouse, DistrictID: "CA-07",
		Committees:     []string{"Energy and Commerce", "Rules"},
		LastVerifiedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}}
	s.Require().NoError(s.cache.PutRoster(ctx, domain.LevelFederal, "CA-07", reps))

	got, ok := s.cache.Roster(ctx, domain.LevelFederal, "CA-07")
	s.Require().True(ok)
	s.Equal(reps, got)
}

func (s *ResolutionCacheSuite) TestEmptyRosterIsHit() {
	ctx := context.Background()
	s.Require().NoError(s.cache.PutRoster(ctx, domain.LevelCounty, "travis-county-pct-4", nil))

	got, ok := s.cache.Roster(ctx, domain.LevelCounty, "travis-county-pct-4")
	s.True(ok)
	s.NotNil(got)
	s.Empty(got)
}

func (s *ResolutionCacheSuite) TestInvalidateDistrict() {
	ctx := context.Background()
	s.Require().NoError(s.cache.PutRoster(ctx, domain.LevelState, "CA-SD-08", nil))
	s.Require().NoError(s.cache.InvalidateDistrict(ctx, domain.LevelState, "CA-SD-08"))

	_, ok := s.cache.Roster(ctx, domain.LevelState, "CA-SD-08")
	s.False(ok)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Invalidations.WithLabelValues(cache.KindDistrict)))
}

func (s *ResolutionCacheSuite) TestConcurrentWritersLastWins() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reps := []models.Representative{{ID: fmt.Sprintf("r%d", i), Level: domain.LevelState, DistrictID: "CA-AD-07"}}
			s.NoError(s.cache.PutRoster(ctx, domain.LevelState, "CA-AD-07", reps))
		}(i)
	}
	wg.Wait()

	got, ok := s.cache.Roster(ctx, domain.LevelState, "CA-AD-07")
	s.Require().True(ok)
	s.Len(got, 1, "entries are replaced whole, never merged")
}

// =============================================================================
// Backend failures
// =============================================================================

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("dial: %w", sentinel.ErrUnavailable)
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return sentinel.ErrUnavailable
}
func (failingStore) Delete(context.Context, string) error { return sentinel.ErrUnavailable }

func TestResolutionCache_BackendDownIsMiss(t *testing.T) {
	c := cache.NewResolutionCache(failingStore{}, cache.WithLogger(logger.Discard()))

	_, ok := c.Jurisdiction(context.Background(), "95814")
	assert.False(t, ok)
	assert.ErrorIs(t, c.PutJurisdiction(context.Background(), sacramento()), sentinel.ErrUnavailable)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "zip:95814", cache.ZipKey("95814"))
	assert.Equal(t, "district:state:CA-SD-08", cache.DistrictKey(domain.LevelState, "CA-SD-08"))
}

func TestEntryExpired(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := cache.Entry{InsertedAt: at, TTL: time.Minute}
	assert.False(t, e.Expired(at.Add(59*time.Second)))
	assert.True(t, e.Expired(at.Add(time.Minute)))
	assert.False(t, cache.Entry{InsertedAt: at}.Expired(at.Add(24*time.Hour)), "zero TTL never expires")
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := cache.NewMemoryStore(0)
	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryStore_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.NewMemoryStore(0).Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
