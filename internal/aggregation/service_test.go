package aggregation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"civic/internal/aggregation"
	"civic/internal/aggregation/metrics"
	"civic/internal/cache"
	"civic/internal/civic/models"
	"civic/internal/districts"
	"civic/internal/geo/providers"
	providermocks "civic/internal/geo/providers/mocks"
	"civic/internal/jurisdiction/classifier"
	"civic/internal/jurisdiction/reference"
	"civic/internal/platform/logger"
	"civic/internal/quality"
	"civic/pkg/domain"
	dErrors "civic/pkg/domain-errors"
	"civic/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	geo       *fakeGeo
	resolver  aggregation.GeoResolver
	directory *fakeDirectory
	publisher *recordingPublisher
	gate      *quality.Gate
	cache     *cache.ResolutionCache
	metrics   *metrics.Metrics

	mu     sync.Mutex
	stages map[domain.ZipCode][][]aggregation.Stage
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.geo = &fakeGeo{candidates: map[domain.ZipCode]models.PlaceCandidate{
		"95814": candidate("95814", "Sacramento", "Sacramento County", "CA"),
		"95608": candidate("95608", "Carmichael", "Sacramento County", "CA"),
		"95630": candidate("95630", "Folsom Area", "", "CA"),
	}}
	s.resolver = s.geo
	s.directory = newFakeDirectory()
	s.directory.add(sacramentoRoster()...)
	s.publisher = &recordingPublisher{}
	s.cache = cache.NewResolutionCache(cache.NewMemoryStore(time.Minute),
		cache.WithClock(func() time.Time { return now }),
		cache.WithLogger(logger.Discard()),
	)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.stages = make(map[domain.ZipCode][][]aggregation.Stage)
}

func (s *ServiceSuite) service(opts ...aggregation.Option) *aggregation.Service {
	tables, err := reference.Default()
	s.Require().NoError(err)
	mapper, err := districts.NewDefaultMapper(districts.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	gate, err := quality.NewGate(quality.DefaultRules(),
		quality.WithLogger(logger.Discard()),
		quality.WithReviewPublisher(s.publisher),
	)
	s.Require().NoError(err)
	s.gate = gate

	base := []aggregation.Option{
		aggregation.WithClock(func() time.Time { return now }),
		aggregation.WithLogger(logger.Discard()),
		aggregation.WithMetrics(s.metrics),
		aggregation.WithStageObserver(s.observe),
	}
	svc, err := aggregation.New(aggregation.Deps{
		Geo:        s.resolver,
		Classifier: classifier.New(tables),
		Mapper:     mapper,
		Directory:  s.directory,
		Gate:       gate,
		Cache:      s.cache,
	}, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

// observe groups stage transitions into one path per request; every request
// starts with StageStart.
func (s *ServiceSuite) observe(zip domain.ZipCode, stage aggregation.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage == aggregation.StageStart {
		s.stages[zip] = append(s.stages[zip], nil)
	}
	paths := s.stages[zip]
	paths[len(paths)-1] = append(paths[len(paths)-1], stage)
}

func (s *ServiceSuite) lastPath(zip domain.ZipCode) []aggregation.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := s.stages[zip]
	if len(paths) == 0 {
		return nil
	}
	return paths[len(paths)-1]
}

func (s *ServiceSuite) resolve(svc *aggregation.Service, zip string) *models.Bundle {
	bundle, err := svc.Resolve(context.Background(), zip, 0)
	s.Require().NoError(err)
	return bundle
}

// =============================================================================
// Resolution
// =============================================================================

func (s *ServiceSuite) TestIncorporatedCityIsComplete() {
	bundle := s.resolve(s.service(), "95814")

	s.Equal(models.StatusIncorporatedCity, bundle.Jurisdiction.IncorporationStatus)
	s.Equal("Sacramento County", bundle.Jurisdiction.County)
	s.Equal(models.OutcomeComplete, bundle.Outcome)
	s.False(bundle.CacheHit)
	s.Equal(now, bundle.ResolvedAt)

	s.Require().Len(bundle.RepresentativesByLevel, 4)
	for _, level := range domain.AllLevels() {
		s.Equal(models.LevelOK, bundle.RepresentativesByLevel[level].Status, "level %s", level)
	}
	s.ElementsMatch([]string{"fed-ca-07-matsui", "fed-ca-sen-padilla", "fed-ca-sen-schiff"},
		ids(bundle.RepresentativesByLevel[domain.LevelFederal].Records))
	s.ElementsMatch([]string{"mun-sac-mayor", "mun-sac-d4-valenzuela", "mun-sac-d1-kaplan"},
		ids(bundle.RepresentativesByLevel[domain.LevelMunicipal].Records),
		"the straddled council seat lists the alternate district too")

	s.Equal([]aggregation.Stage{
		aggregation.StageStart,
		aggregation.StageCacheCheck,
		aggregation.StageResolveGeo,
		aggregation.StageClassify,
		aggregation.StageMapDistricts,
		aggregation.StageFetchReps,
		aggregation.StageValidate,
		aggregation.StageCacheWrite,
		aggregation.StageDone,
	}, s.lastPath("95814"))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Resolutions.WithLabelValues("complete")))
}

func (s *ServiceSuite) TestCensusDesignatedPlaceHasNoMunicipalLevel() {
	bundle := s.resolve(s.service(), "95608")

	s.Equal(models.StatusCensusDesignatedPlace, bundle.Jurisdiction.IncorporationStatus)
	s.NotContains(bundle.Jurisdiction.ApplicableLevels, domain.LevelMunicipal)

	municipal := bundle.RepresentativesByLevel[domain.LevelMunicipal]
	s.Equal(models.LevelEmpty, municipal.Status)
	s.Equal(models.ReasonNotApplicable, municipal.Reason)
	s.Empty(municipal.Records)
	s.Equal(models.OutcomeComplete, bundle.Outcome, "a level that does not apply never makes the bundle partial")
	for _, r := range bundle.Records() {
		s.NotEqual(domain.LevelMunicipal, r.Level)
	}
}

func (s *ServiceSuite) TestStraddledZipReturnsEveryPlausibleDistrict() {
	bundle := s.resolve(s.service(), "95608")

	federal := bundle.RepresentativesByLevel[domain.LevelFederal]
	s.Equal(models.LevelOK, federal.Status)
	s.ElementsMatch([]string{"fed-ca-06-bera", "fed-ca-07-matsui", "fed-ca-sen-padilla", "fed-ca-sen-schiff"}, ids(federal.Records))
}

func (s *ServiceSuite) TestMisfiledMunicipalRecordNeverReachesCensusDesignatedPlace() {
	intruder := rep("mun-carmichael-council", "Carmichael Council Member", domain.LevelMunicipal,
		domain.ChamberCouncil, "sacramento-county-d3", "(916) 874-5400")
	s.directory.addTo(domain.LevelCounty, "sacramento-county-d3", intruder)

	bundle := s.resolve(s.service(), "95608")

	county := bundle.RepresentativesByLevel[domain.LevelCounty]
	s.Equal(models.LevelUnavailable, county.Status)
	s.Equal(models.ReasonQualityRejected, county.Reason)
	s.Equal(1, county.Rejected)
	s.Equal([]string{"cty-sac-d3-desmond"}, ids(county.Records), "accepted records of the level are kept")
	s.NotContains(ids(bundle.Records()), "mun-carmichael-council")
	s.Equal(models.OutcomePartial, bundle.Outcome)

	rejs := s.publisher.rejections()
	s.Require().Len(rejs, 1)
	s.Equal(quality.KindRepresentative, rejs[0].Kind)
	s.Equal("mun-carmichael-council", rejs[0].RecordID)
	s.Equal("95608", rejs[0].ZipCode)

	_, cached := s.cache.Roster(context.Background(), domain.LevelCounty, "sacramento-county-d3")
	s.False(cached, "a roster with a rejected record is not cached")
}

func (s *ServiceSuite) TestPlaceholderSenatorIsDropped() {
	placeholder := rep("st-ca-sd-08-placeholder", "Senator District 8", domain.LevelState,
		domain.ChamberUpper, "CA-SD-08", "(916) 651-4000")
	s.directory.add(placeholder)

	bundle := s.resolve(s.service(), "95814")

	state := bundle.RepresentativesByLevel[domain.LevelState]
	s.Equal(models.LevelUnavailable, state.Status)
	s.Equal(models.ReasonQualityRejected, state.Reason)
	s.NotContains(ids(state.Records), "st-ca-sd-08-placeholder")
	s.Contains(ids(state.Records), "st-ca-sd-08-ashby")

	rejs := s.publisher.rejections()
	s.Require().Len(rejs, 1)
	s.Equal(quality.RulePlaceholderName, rejs[0].Violations[0].Rule)
}

func (s *ServiceSuite) TestGenericPlaceIsUnresolved() {
	_, err := s.service().Resolve(context.Background(), "95630", 0)

	s.Require().Error(err)
	s.ErrorIs(err, models.ErrJurisdictionUnresolved)
	s.ErrorIs(err, models.ErrQualityRejected)
	s.Equal(dErrors.CodeUnresolved, dErrors.CodeOf(err))

	_, cached := s.cache.Jurisdiction(context.Background(), "95630")
	s.False(cached)
	rejs := s.publisher.rejections()
	s.Require().Len(rejs, 1)
	s.Equal(quality.KindJurisdiction, rejs[0].Kind)
	s.Zero(s.directory.callsFor(domain.LevelFederal, "CA"), "nothing is fetched for a rejected jurisdiction")
}

func (s *ServiceSuite) TestUnknownZipIsUnresolved() {
	_, err := s.service().Resolve(context.Background(), "59901", 0)

	s.ErrorIs(err, models.ErrJurisdictionUnresolved)
	s.Equal(int32(1), s.geo.calls.Load())
}

func (s *ServiceSuite) TestReservedZipSkipsProviders() {
	_, err := s.service().Resolve(context.Background(), "00000", 0)

	s.ErrorIs(err, models.ErrJurisdictionUnresolved)
	s.Zero(s.geo.calls.Load())
}

func (s *ServiceSuite) TestMalformedZipIsInvalidInput() {
	for _, zip := range []string{"", "9581", "abcde", "958140"} {
		_, err := s.service().Resolve(context.Background(), zip, 0)
		s.Require().Error(err, zip)
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err), zip)
	}
	s.Zero(s.geo.calls.Load())
}

func (s *ServiceSuite) TestZipPlusFourIsAccepted() {
	bundle := s.resolve(s.service(), "95814-1234")
	s.Equal(domain.ZipCode("95814"), bundle.Jurisdiction.ZipCode)
}

// =============================================================================
// Levels
// =============================================================================

func (s *ServiceSuite) TestSlowLevelOnlyAffectsItself() {
	s.directory.set(domain.LevelMunicipal, levelBehaviour{delay: 500 * time.Millisecond})
	svc := s.service(aggregation.WithLevelTimeout(50 * time.Millisecond))

	start := time.Now()
	bundle := s.resolve(svc, "95814")

	s.Less(time.Since(start), 400*time.Millisecond)
	municipal := bundle.RepresentativesByLevel[domain.LevelMunicipal]
	s.Equal(models.LevelUnavailable, municipal.Status)
	s.Equal(models.ReasonTimeout, municipal.Reason)
	s.Empty(municipal.Records)
	for _, level := range []domain.Level{domain.LevelFederal, domain.LevelState, domain.LevelCounty} {
		s.Equal(models.LevelOK, bundle.RepresentativesByLevel[level].Status, "level %s", level)
	}
	s.Equal(models.OutcomePartial, bundle.Outcome)
}

func (s *ServiceSuite) TestDirectoryIgnoringCancellationStillTimesOut() {
	s.directory.set(domain.LevelCounty, levelBehaviour{delay: 400 * time.Millisecond, ignoreCtx: true})
	svc := s.service(aggregation.WithLevelTimeout(50 * time.Millisecond))

	start := time.Now()
	bundle := s.resolve(svc, "95814")

	s.Less(time.Since(start), 300*time.Millisecond)
	s.Equal(models.ReasonTimeout, bundle.RepresentativesByLevel[domain.LevelCounty].Reason)
}

func (s *ServiceSuite) TestDeadlineReturnsWhatIsReady() {
	s.directory.set(domain.LevelState, levelBehaviour{delay: time.Second})
	svc := s.service(aggregation.WithLevelTimeout(5 * time.Second))

	start := time.Now()
	bundle, err := svc.Resolve(context.Background(), "95814", 100*time.Millisecond)

	s.Require().NoError(err)
	s.Less(time.Since(start), 600*time.Millisecond)
	s.Equal(models.LevelUnavailable, bundle.RepresentativesByLevel[domain.LevelState].Status)
	s.Equal(models.ReasonTimeout, bundle.RepresentativesByLevel[domain.LevelState].Reason)
	s.Equal(models.LevelOK, bundle.RepresentativesByLevel[domain.LevelFederal].Status)
	s.Equal(models.OutcomePartial, bundle.Outcome)
}

func (s *ServiceSuite) TestFailingLevelIsUnavailable() {
	s.directory.set(domain.LevelCounty, levelBehaviour{err: errors.New("roster backend down")})

	bundle := s.resolve(s.service(), "95814")

	county := bundle.RepresentativesByLevel[domain.LevelCounty]
	s.Equal(models.LevelUnavailable, county.Status)
	s.Equal(models.ReasonFetchFailed, county.Reason)
	s.Equal(models.OutcomePartial, bundle.Outcome)

	_, cached := s.cache.Roster(context.Background(), domain.LevelCounty, "sacramento-county-d1")
	s.False(cached)
}

func (s *ServiceSuite) TestEmptyDistrictIsEmptyNotUnavailable() {
	s.directory = newFakeDirectory()
	for _, r := range sacramentoRoster() {
		if r.Level != domain.LevelCounty {
			s.directory.add(r)
		}
	}

	bundle := s.resolve(s.service(), "95814")

	s.Equal(models.LevelEmpty, bundle.RepresentativesByLevel[domain.LevelCounty].Status)
	s.Equal(models.OutcomePartial, bundle.Outcome)
}

// =============================================================================
// Below-floor candidates
// =============================================================================

// chainReturning puts a real provider chain in front of the service whose
// only provider answers 95814 with the given confidence.
func (s *ServiceSuite) chainReturning(confidence float64) {
	ctrl := gomock.NewController(s.T())
	provider := providermocks.NewMockProvider(ctrl)
	provider.EXPECT().ID().Return("zippopotam").AnyTimes()
	provider.EXPECT().Lookup(gomock.Any(), domain.ZipCode("95814")).Return([]models.PlaceCandidate{
		{City: "Sacramento", County: "Sacramento County", State: "CA", Confidence: confidence},
	}, nil).AnyTimes()

	registry := providers.NewProviderRegistry()
	s.Require().NoError(registry.Register(provider))
	s.resolver = providers.NewChain(registry, providers.WithLogger(logger.Discard()))
}

func (s *ServiceSuite) TestBelowFloorCandidatePassingFallbackRulesIsReleased() {
	s.chainReturning(0.4)

	bundle := s.resolve(s.service(), "95814")

	s.Equal(models.SourceFallback, bundle.Jurisdiction.Source)
	s.True(bundle.Jurisdiction.IsFallback())
	s.InDelta(0.4, bundle.Jurisdiction.Confidence, 0.001)
	s.Equal(models.StatusIncorporatedCity, bundle.Jurisdiction.IncorporationStatus)
	s.Equal(models.OutcomeComplete, bundle.Outcome)
}

func (s *ServiceSuite) TestBelowFloorCandidateFailingFallbackRulesIsUnresolved() {
	s.chainReturning(0.2)

	_, err := s.service().Resolve(context.Background(), "95814", 0)

	s.ErrorIs(err, models.ErrJurisdictionUnresolved)
	s.ErrorIs(err, models.ErrQualityRejected)
	rejected := s.publisher.rejections()
	s.Require().Len(rejected, 1)
	s.Equal(quality.KindJurisdiction, rejected[0].Kind)
	_, ok := s.cache.Jurisdiction(context.Background(), "95814")
	s.False(ok, "rejected jurisdictions are never cached")
}

// =============================================================================
// Cache
// =============================================================================

func (s *ServiceSuite) TestRepeatResolutionIsServedFromCache() {
	svc := s.service()
	first := s.resolve(svc, "95814")
	directoryCalls := s.directory.totalCalls()

	second := s.resolve(svc, "95814")

	s.True(second.CacheHit)
	s.Equal(int32(1), s.geo.calls.Load(), "providers are not consulted again")
	s.Equal(directoryCalls, s.directory.totalCalls(), "directory is not consulted again")
	s.Equal([]aggregation.Stage{
		aggregation.StageStart,
		aggregation.StageCacheCheck,
		aggregation.StageValidate,
		aggregation.StageDone,
	}, s.lastPath("95814"))

	firstJSON, err := json.Marshal(first.Jurisdiction)
	s.Require().NoError(err)
	secondJSON, err := json.Marshal(second.Jurisdiction)
	s.Require().NoError(err)
	s.Equal(string(firstJSON), string(secondJSON))

	firstReps, err := json.Marshal(first.RepresentativesByLevel)
	s.Require().NoError(err)
	secondReps, err := json.Marshal(second.RepresentativesByLevel)
	s.Require().NoError(err)
	s.Equal(string(firstReps), string(secondReps))
	s.Equal(first.Outcome, second.Outcome)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.CacheChecks.WithLabelValues("full_hit")))
}

func (s *ServiceSuite) TestCacheHitIsCheckedAgainstSwappedRules() {
	svc := s.service()
	first := s.resolve(svc, "95814")
	s.Require().Contains(ids(first.Records()), "fed-ca-07-matsui")

	rules := quality.DefaultRules()
	rules.PlaceholderNames = append(rules.PlaceholderNames, "^doris matsui$")
	s.Require().NoError(s.gate.Swap(rules))
	second := s.resolve(svc, "95814")

	s.True(second.CacheHit)
	federal := second.RepresentativesByLevel[domain.LevelFederal]
	s.Equal(models.LevelUnavailable, federal.Status)
	s.Equal(models.ReasonQualityRejected, federal.Reason)
	s.NotContains(ids(second.Records()), "fed-ca-07-matsui")
	s.Equal(1, s.directory.callsFor(domain.LevelFederal, "CA-07"), "served from cache")

	_, ok := s.cache.Roster(context.Background(), domain.LevelFederal, "CA-07")
	s.False(ok, "the rejected roster is evicted")
	_, ok = s.cache.Roster(context.Background(), domain.LevelFederal, "CA")
	s.True(ok, "clean rosters stay cached")
	s.Contains(s.lastPath("95814"), aggregation.StageCacheWrite)

	rejected := s.publisher.rejections()
	s.Require().NotEmpty(rejected)
	s.Equal("fed-ca-07-matsui", rejected[len(rejected)-1].RecordID)
}

func (s *ServiceSuite) TestCachedJurisdictionRejectedByNewRulesIsDropped() {
	svc := s.service()
	s.resolve(svc, "95814")

	rules := quality.DefaultRules()
	rules.GenericPlaces = append(rules.GenericPlaces, "^sacramento$")
	s.Require().NoError(s.gate.Swap(rules))
	_, err := svc.Resolve(context.Background(), "95814", 0)

	s.ErrorIs(err, models.ErrJurisdictionUnresolved)
	s.ErrorIs(err, models.ErrQualityRejected)
	_, ok := s.cache.Jurisdiction(context.Background(), "95814")
	s.False(ok)
}

func (s *ServiceSuite) TestCacheHitKeepsWarnings() {
	s.directory = newFakeDirectory()
	for _, r := range sacramentoRoster() {
		if r.ID == "fed-ca-07-matsui" {
			r.LastVerifiedAt = now.Add(-60 * 24 * time.Hour)
		}
		s.directory.add(r)
	}
	svc := s.service()

	first := s.resolve(svc, "95814")
	second := s.resolve(svc, "95814")

	s.Require().True(second.CacheHit)
	s.NotEmpty(first.RepresentativesByLevel[domain.LevelFederal].Warnings)
	firstReps, err := json.Marshal(first.RepresentativesByLevel)
	s.Require().NoError(err)
	secondReps, err := json.Marshal(second.RepresentativesByLevel)
	s.Require().NoError(err)
	s.Equal(string(firstReps), string(secondReps))
}

func (s *ServiceSuite) TestInvalidatedDistrictIsRefetchedAlone() {
	svc := s.service()
	s.resolve(svc, "95814")
	s.Require().Equal(1, s.directory.callsFor(domain.LevelFederal, "CA-07"))

	s.Require().NoError(svc.InvalidateDistrict(context.Background(), domain.LevelFederal, "CA-07"))
	bundle := s.resolve(svc, "95814")

	s.False(bundle.CacheHit)
	s.Equal(2, s.directory.callsFor(domain.LevelFederal, "CA-07"))
	s.Equal(1, s.directory.callsFor(domain.LevelFederal, "CA"), "cached rosters are reused")
	s.Equal(int32(1), s.geo.calls.Load(), "the cached jurisdiction is reused")
	s.Equal(models.OutcomeComplete, bundle.Outcome)
	s.NotContains(s.lastPath("95814"), aggregation.StageResolveGeo)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.CacheChecks.WithLabelValues("partial_hit")))
}

func (s *ServiceSuite) TestInvalidatedZipIsResolvedAgain() {
	svc := s.service()
	s.resolve(svc, "95814")

	s.Require().NoError(svc.Invalidate(context.Background(), "95814"))
	bundle := s.resolve(svc, "95814")

	s.False(bundle.CacheHit)
	s.Equal(int32(2), s.geo.calls.Load())
	s.Equal(1, s.directory.callsFor(domain.LevelFederal, "CA-07"), "district rosters outlive the zip entry")
}

func (s *ServiceSuite) TestInvalidateRejectsMalformedZip() {
	err := s.service().Invalidate(context.Background(), "nope")
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestCachedRosterIsRevalidated() {
	svc := s.service()
	ctx := context.Background()
	s.Require().NoError(s.cache.PutRoster(ctx, domain.LevelState, "CA-SD-08", []models.Representative{
		rep("st-ca-sd-08-placeholder", "Senator District 8", domain.LevelState, domain.ChamberUpper, "CA-SD-08", "(916) 651-4000"),
	}))

	bundle := s.resolve(svc, "95814")

	s.Equal(models.ReasonQualityRejected, bundle.RepresentativesByLevel[domain.LevelState].Reason)
	s.Zero(s.directory.callsFor(domain.LevelState, "CA-SD-08"), "the cached roster was used")
	s.NotContains(ids(bundle.Records()), "st-ca-sd-08-placeholder")
	_, ok := s.cache.Roster(ctx, domain.LevelState, "CA-SD-08")
	s.False(ok, "the rejected roster is evicted")
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *ServiceSuite) TestConcurrentMissesShareOneProviderCall() {
	s.geo.gate = make(chan struct{})
	svc := s.service()

	const callers = 8
	var wg sync.WaitGroup
	bundles := make([]*models.Bundle, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundles[i], errs[i] = svc.Resolve(context.Background(), "95814", 2*time.Second)
		}()
	}

	s.Eventually(func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		n := 0
		for _, path := range s.stages["95814"] {
			for _, st := range path {
				if st == aggregation.StageResolveGeo {
					n++
				}
			}
		}
		return n == callers
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(s.geo.gate)
	wg.Wait()

	s.Equal(int32(1), s.geo.calls.Load())
	for i := range callers {
		s.Require().NoError(errs[i])
		s.Equal(bundles[0].Jurisdiction.PlaceName, bundles[i].Jurisdiction.PlaceName)
	}
}

func (s *ServiceSuite) TestCallerGivesUpOnSlowProviders() {
	s.geo.gate = make(chan struct{})
	defer close(s.geo.gate)
	svc := s.service()

	_, err := svc.Resolve(context.Background(), "95814", 50*time.Millisecond)

	s.ErrorIs(err, models.ErrJurisdictionUnresolved)
	s.ErrorIs(err, models.ErrProviderTimeout)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Eventually(func() bool { return s.geo.abandoned.Load() == 1 }, 500*time.Millisecond, 5*time.Millisecond,
		"the provider lookup ends with the caller's deadline")
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiresEveryDependency(t *testing.T) {
	_, err := aggregation.New(aggregation.Deps{})
	assert.Error(t, err)
}

func TestScenario_RepeatedLookupIsIdempotent(t *testing.T) {
	s := new(ServiceSuite)
	s.SetT(t)
	s.SetupTest()
	svc := s.service()

	testutil.Given(t, "a ZIP code that was resolved once", func(t *testing.T) {
		first, err := svc.Resolve(context.Background(), "95814", 0)
		require.NoError(t, err)

		testutil.When(t, "it is resolved again", func(t *testing.T) {
			second, err := svc.Resolve(context.Background(), "95814", 0)
			require.NoError(t, err)

			testutil.Then(t, "the answer is the same and comes from cache", func(t *testing.T) {
				assert.True(t, second.CacheHit)
				assert.Equal(t, first.Jurisdiction.ZipCode, second.Jurisdiction.ZipCode)
				assert.Equal(t, ids(first.Records()), ids(second.Records()))
				assert.Equal(t, int32(1), s.geo.calls.Load())
			})
		})
	})
}
