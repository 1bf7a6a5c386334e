// Package aggregation is the single entry point of the engine: ZIP code in,
// jurisdiction plus representatives by level out.
//
// Each request walks a fixed state machine:
//
//	START → CACHE_CHECK → RESOLVE_GEO → CLASSIFY → MAP_DISTRICTS →
//	FETCH_REPS → VALIDATE → CACHE_WRITE → DONE
//
// A full cache hit skips from CACHE_CHECK to VALIDATE. The only terminal
// error is models.ErrJurisdictionUnresolved; anything short of that is a
// bundle with explicit per-level status.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"civic/internal/aggregation/metrics"
	"civic/internal/civic/models"
	"civic/pkg/domain"
	"civic/pkg/requestcontext"
)

const (
	defaultDeadline     = 3 * time.Second
	defaultMaxDeadline  = 10 * time.Second
	defaultLevelTimeout = time.Second
	cacheWriteTimeout   = 500 * time.Millisecond
)

// Stage names a state of the resolution state machine.
type Stage string

const (
	StageStart        Stage = "start"
	StageCacheCheck   Stage = "cache_check"
	StageResolveGeo   Stage = "resolve_geo"
	StageClassify     Stage = "classify"
	StageMapDistricts Stage = "map_districts"
	StageFetchReps    Stage = "fetch_reps"
	StageValidate     Stage = "validate"
	StageCacheWrite   Stage = "cache_write"
	StageDone         Stage = "done"
)

// Deps are the collaborators the facade orchestrates.
type Deps struct {
	Geo        GeoResolver
	Classifier Classifier
	Mapper     DistrictMapper
	Directory  Directory
	Gate       Gate
	Cache      Cache
}

// Service resolves ZIP codes. It holds no per-request state; concurrent
// resolutions only share the cache.
type Service struct {
	deps            Deps
	defaultDeadline time.Duration
	maxDeadline     time.Duration
	levelTimeout    time.Duration
	clock           func() time.Time
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	observer        func(zip domain.ZipCode, stage Stage)
	flights         singleflight.Group
}

type Option func(*Service)

// WithDeadlines sets the deadline used when the caller gives none and the cap
// applied to caller deadlines.
func WithDeadlines(defaultDeadline, maxDeadline time.Duration) Option {
	return func(s *Service) {
		if defaultDeadline > 0 {
			s.defaultDeadline = defaultDeadline
		}
		if maxDeadline > 0 {
			s.maxDeadline = maxDeadline
		}
	}
}

// WithLevelTimeout bounds each level's representative fetch.
func WithLevelTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.levelTimeout = d
		}
	}
}

// WithClock overrides the request clock. By default the request time from
// requestcontext is used.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithStageObserver is called on every state transition of a request.
func WithStageObserver(fn func(zip domain.ZipCode, stage Stage)) Option {
	return func(s *Service) {
		s.observer = fn
	}
}

// New wires the facade. Every dependency is required.
func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Geo == nil:
		return nil, errors.New("aggregation: geo resolver is required")
	case deps.Classifier == nil:
		return nil, errors.New("aggregation: classifier is required")
	case deps.Mapper == nil:
		return nil, errors.New("aggregation: district mapper is required")
	case deps.Directory == nil:
		return nil, errors.New("aggregation: directory is required")
	case deps.Gate == nil:
		return nil, errors.New("aggregation: quality gate is required")
	case deps.Cache == nil:
		return nil, errors.New("aggregation: cache is required")
	}
	s := &Service{
		deps:            deps,
		defaultDeadline: defaultDeadline,
		maxDeadline:     defaultMaxDeadline,
		levelTimeout:    defaultLevelTimeout,
		logger:          slog.Default(),
		tracer:          otel.Tracer("civic/aggregation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// run carries one request through the state machine.
type run struct {
	zip  domain.ZipCode
	now  time.Time
	path []Stage
}

// Resolve returns the bundle for rawZip. deadline <= 0 uses the default
// deadline. When the deadline expires while representatives are being
// fetched, the levels still outstanding are reported unavailable and the
// rest of the bundle is returned.
func (s *Service) Resolve(ctx context.Context, rawZip string, deadline time.Duration) (*models.Bundle, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "civic.resolve")
	defer span.End()

	zip, err := domain.ParseZipCode(rawZip)
	if err != nil {
		s.metrics.IncrementResolution("invalid")
		span.SetStatus(codes.Error, "invalid zip code")
		return nil, err
	}
	span.SetAttributes(attribute.String("civic.zip", zip.String()))

	ctx, cancel := context.WithTimeout(ctx, s.effectiveDeadline(deadline))
	defer cancel()

	r := &run{zip: zip, now: s.now(ctx)}
	s.enter(r, StageStart)

	bundle, err := s.resolve(ctx, r)
	s.metrics.ObserveResolve(time.Since(start))
	if err != nil {
		s.metrics.IncrementResolution("unresolved")
		span.RecordError(err)
		span.SetStatus(codes.Error, "jurisdiction unresolved")
		s.logger.InfoContext(ctx, "jurisdiction unresolved",
			"zip", zip,
			"stages", r.path,
			"error", err,
		)
		return nil, err
	}
	s.enter(r, StageDone)

	for level, res := range bundle.RepresentativesByLevel {
		s.metrics.IncrementLevelStatus(level.String(), string(res.Status))
	}
	s.metrics.IncrementResolution(string(bundle.Outcome))
	span.SetAttributes(
		attribute.String("civic.outcome", string(bundle.Outcome)),
		attribute.Bool("civic.cache_hit", bundle.CacheHit),
	)
	s.logger.InfoContext(ctx, "zip resolved",
		"zip", zip,
		"place", bundle.Jurisdiction.PlaceName,
		"status", bundle.Jurisdiction.IncorporationStatus,
		"outcome", bundle.Outcome,
		"cache_hit", bundle.CacheHit,
		"stages", r.path,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return bundle, nil
}

func (s *Service) resolve(ctx context.Context, r *run) (*models.Bundle, error) {
	if !r.zip.IsAssignable() {
		return nil, models.Unresolved(fmt.Errorf("zip code %s is not assignable", r.zip))
	}

	s.enter(r, StageCacheCheck)
	j, cached := s.deps.Cache.Jurisdiction(ctx, r.zip)
	var (
		hits    rosterSet
		fullHit bool
	)
	if cached {
		hits, fullHit = s.cachedRosters(ctx, j)
		if fullHit {
			s.metrics.IncrementCacheCheck("full_hit")
		} else {
			s.metrics.IncrementCacheCheck("partial_hit")
		}
	} else {
		s.metrics.IncrementCacheCheck("miss")
		var err error
		if j, err = s.resolveJurisdiction(ctx, r); err != nil {
			return nil, err
		}
		hits, _ = s.cachedRosters(ctx, j)
	}

	var fetches map[domain.Level]levelFetch
	if fullHit {
		fetches = s.fetchesFromCache(j, hits)
	} else {
		s.enter(r, StageFetchReps)
		fctx, end := s.stage(ctx, StageFetchReps)
		fetches = s.fetchReps(fctx, j, hits)
		end(nil)
	}

	// Cached entries are validated against the current rules like fresh ones.
	s.enter(r, StageValidate)
	vctx, end := s.stage(ctx, StageValidate)
	if res := s.deps.Gate.ValidateJurisdiction(j, r.now); !res.Accepted {
		err := fmt.Errorf("%w: %v", models.ErrQualityRejected, res.Rules())
		end(err)
		s.reportJurisdiction(vctx, j, res)
		if cached {
			_ = s.deps.Cache.InvalidateZip(context.WithoutCancel(ctx), r.zip)
		}
		return nil, models.Unresolved(err)
	}
	bundle := s.assemble(vctx, r, j, fetches)
	bundle.CacheHit = fullHit
	end(nil)

	if !cached || pendingWrites(fetches) {
		s.enter(r, StageCacheWrite)
		s.write(ctx, j, !cached, fetches)
	}
	return bundle, nil
}

// resolveJurisdiction runs RESOLVE_GEO, CLASSIFY and MAP_DISTRICTS once per
// ZIP code no matter how many callers ask concurrently. The shared work is
// detached from the cancellation of the caller that started it but bounded by
// that caller's remaining deadline; each caller still gives up at its own.
func (s *Service) resolveJurisdiction(ctx context.Context, r *run) (models.Jurisdiction, error) {
	s.enter(r, StageResolveGeo)
	timeout := s.maxDeadline
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	ch := s.flights.DoChan(r.zip.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return s.lookupJurisdiction(fctx, r.zip, r.now)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.Jurisdiction{}, res.Err
		}
		s.enter(r, StageClassify)
		s.enter(r, StageMapDistricts)
		return res.Val.(models.Jurisdiction), nil
	case <-ctx.Done():
		return models.Jurisdiction{}, models.Unresolved(fmt.Errorf("%w: %w", models.ErrProviderTimeout, ctx.Err()))
	}
}

func (s *Service) lookupJurisdiction(ctx context.Context, zip domain.ZipCode, now time.Time) (models.Jurisdiction, error) {
	gctx, end := s.stage(ctx, StageResolveGeo)
	res, err := s.deps.Geo.Resolve(gctx, zip)
	end(err)
	if err != nil {
		if !errors.Is(err, models.ErrJurisdictionUnresolved) {
			err = models.Unresolved(err)
		}
		return models.Jurisdiction{}, err
	}

	_, end = s.stage(ctx, StageClassify)
	j, err := s.deps.Classifier.Classify(res.Candidate, zip, now)
	end(err)
	if err != nil {
		return models.Jurisdiction{}, models.Unresolved(err)
	}

	mctx, end := s.stage(ctx, StageMapDistricts)
	assignments, err := s.deps.Mapper.Map(mctx, j)
	end(err)
	if err != nil {
		s.logger.WarnContext(ctx, "district mapping failed", "zip", zip, "error", err)
		assignments = nil
	}
	return j.WithDistricts(assignments), nil
}

// Invalidate drops the cached jurisdiction of a ZIP code.
func (s *Service) Invalidate(ctx context.Context, rawZip string) error {
	zip, err := domain.ParseZipCode(rawZip)
	if err != nil {
		return err
	}
	if err := s.deps.Cache.InvalidateZip(ctx, zip); err != nil {
		return fmt.Errorf("invalidate zip %s: %w", zip, err)
	}
	s.logger.InfoContext(ctx, "zip cache invalidated", "zip", zip)
	return nil
}

// InvalidateDistrict drops the cached roster of one district.
func (s *Service) InvalidateDistrict(ctx context.Context, level domain.Level, districtID string) error {
	if err := s.deps.Cache.InvalidateDistrict(ctx, level, districtID); err != nil {
		return fmt.Errorf("invalidate district %s/%s: %w", level, districtID, err)
	}
	s.logger.InfoContext(ctx, "district cache invalidated", "level", level, "district_id", districtID)
	return nil
}

func (s *Service) write(ctx context.Context, j models.Jurisdiction, jurisdiction bool, fetches map[domain.Level]levelFetch) {
	ctx, end := s.stage(context.WithoutCancel(ctx), StageCacheWrite)
	ctx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()
	defer end(nil)

	if jurisdiction {
		if err := s.deps.Cache.PutJurisdiction(ctx, j); err != nil {
			s.logger.WarnContext(ctx, "failed to cache jurisdiction", "zip", j.ZipCode, "error", err)
		}
	}
	for level, f := range fetches {
		for _, d := range f.districts {
			switch {
			case d.evict:
				if err := s.deps.Cache.InvalidateDistrict(ctx, level, d.id); err != nil {
					s.logger.WarnContext(ctx, "failed to evict roster", "level", level, "district_id", d.id, "error", err)
				}
			case d.cacheable:
				if err := s.deps.Cache.PutRoster(ctx, level, d.id, d.reps); err != nil {
					s.logger.WarnContext(ctx, "failed to cache roster", "level", level, "district_id", d.id, "error", err)
				}
			}
		}
	}
}

// pendingWrites reports whether any roster has to be stored or evicted.
func pendingWrites(fetches map[domain.Level]levelFetch) bool {
	for _, f := range fetches {
		for _, d := range f.districts {
			if d.evict || d.cacheable {
				return true
			}
		}
	}
	return false
}

func (s *Service) effectiveDeadline(d time.Duration) time.Duration {
	if d <= 0 {
		return s.defaultDeadline
	}
	return min(d, s.maxDeadline)
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

func (s *Service) enter(r *run, stage Stage) {
	r.path = append(r.path, stage)
	if s.observer != nil {
		s.observer(r.zip, stage)
	}
}

// stage opens a span for one stage and returns a func that closes it and
// records the stage latency.
func (s *Service) stage(ctx context.Context, st Stage) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "civic."+string(st))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.ObserveStage(string(st), time.Since(start))
	}
}
