// Package app wires the engine from configuration. The server and the CLI
// build the same object graph through it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"civic/internal/aggregation"
	aggmetrics "civic/internal/aggregation/metrics"
	"civic/internal/cache"
	cachemetrics "civic/internal/cache/metrics"
	"civic/internal/directory"
	"civic/internal/directory/store"
	"civic/internal/districts"
	geometrics "civic/internal/geo/metrics"
	"civic/internal/geo/providers"
	"civic/internal/geo/providers/googlegeo"
	"civic/internal/geo/providers/static"
	"civic/internal/geo/providers/zippopotam"
	"civic/internal/jurisdiction/classifier"
	"civic/internal/jurisdiction/reference"
	"civic/internal/platform/config"
	"civic/internal/platform/kafka"
	"civic/internal/platform/postgres"
	redisclient "civic/internal/platform/redis"
	"civic/internal/quality"
	qualitymetrics "civic/internal/quality/metrics"
	"civic/internal/quality/review"
	"civic/pkg/platform/circuit"
)

// App is the assembled engine plus the resources it owns.
type App struct {
	Config    config.Config
	Service   *aggregation.Service
	Gate      *quality.Gate
	Directory *directory.Directory
	Cache     *cache.ResolutionCache
	// Checks are the dependency probes served on /healthz.
	Checks map[string]func(ctx context.Context) error

	logger  *slog.Logger
	review  *review.AsyncPublisher
	closers []func() error
}

// Option tunes Build.
type Option func(*buildOptions)

type buildOptions struct {
	withMetrics bool
}

// WithMetrics registers Prometheus collectors on the default registry. Only
// one App per process may use it.
func WithMetrics() Option {
	return func(o *buildOptions) {
		o.withMetrics = true
	}
}

// Build wires every component. On error, anything already opened is closed.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	a := &App{
		Config: cfg,
		Checks: make(map[string]func(ctx context.Context) error),
		logger: logger,
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var (
		aggM   *aggmetrics.Metrics
		cacheM *cachemetrics.Metrics
		geoM   *geometrics.Metrics
		gateM  *qualitymetrics.Metrics
	)
	if bo.withMetrics {
		aggM, cacheM, geoM, gateM = aggmetrics.New(), cachemetrics.New(), geometrics.New(), qualitymetrics.New()
	}

	resolutionStore, err := a.buildCacheStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Cache = cache.NewResolutionCache(resolutionStore,
		cache.WithTTLs(cfg.Cache.ZipTTL, cfg.Cache.DistrictTTL),
		cache.WithLogger(logger),
		cache.WithMetrics(cacheM),
	)

	if a.Directory, err = a.buildDirectory(ctx); err != nil {
		return nil, err
	}

	chain, err := a.buildChain(geoM)
	if err != nil {
		return nil, err
	}

	tables, err := reference.Default()
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	mapper, err := districts.NewDefaultMapper(districts.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("load district crosswalk: %w", err)
	}

	if a.Gate, err = a.buildGate(ctx, gateM); err != nil {
		return nil, err
	}

	a.Service, err = aggregation.New(aggregation.Deps{
		Geo:        chain,
		Classifier: classifier.New(tables),
		Mapper:     mapper,
		Directory:  a.Directory,
		Gate:       a.Gate,
		Cache:      a.Cache,
	},
		aggregation.WithDeadlines(cfg.Server.DefaultDeadline, cfg.Server.MaxDeadline),
		aggregation.WithLevelTimeout(cfg.Fetch.LevelTimeout),
		aggregation.WithLogger(logger),
		aggregation.WithMetrics(aggM),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) buildCacheStore(ctx context.Context) (cache.Store, error) {
	if a.Config.Cache.Backend != "redis" {
		return cache.NewMemoryStore(a.Config.Cache.CleanupInterval), nil
	}
	rc, err := redisclient.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rc.Close)
	a.Checks["redis"] = rc.Health
	return cache.NewRedisStore(rc.Client), nil
}

func (a *App) buildDirectory(ctx context.Context) (*directory.Directory, error) {
	var snapshots directory.SnapshotStore
	if a.Config.Directory.Backend == "postgres" {
		db, err := postgres.Open(ctx, a.Config.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.Checks["postgres"] = pingCheck(db)
		pg := store.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		snapshots = pg
	} else {
		snapshots = store.NewInMemoryStore()
	}

	dir := directory.New(snapshots, directory.WithLogger(a.logger))
	if a.Config.Directory.SeedDir == "" {
		return dir, nil
	}
	seeds, err := directory.LoadSeedDir(a.Config.Directory.SeedDir)
	if err != nil {
		return nil, fmt.Errorf("load directory seeds: %w", err)
	}
	if err := dir.PublishAll(ctx, seeds); err != nil {
		return nil, fmt.Errorf("publish directory seeds: %w", err)
	}
	return dir, nil
}

func pingCheck(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

func (a *App) buildChain(m *geometrics.Metrics) (*providers.Chain, error) {
	geo := a.Config.Geo
	registry := providers.NewProviderRegistry()
	for _, id := range geo.Providers {
		var p providers.Provider
		switch id {
		case "google":
			if geo.GoogleAPIKey == "" {
				a.logger.Warn("google geocoding provider skipped: no api key configured")
				continue
			}
			p = googlegeo.New(geo.GoogleBaseURL, geo.GoogleAPIKey, geo.ProviderTimeout)
		case "zippopotam":
			p = zippopotam.New(geo.ZippopotamURL, geo.ProviderTimeout)
		case "static":
			sp, err := static.New()
			if err != nil {
				return nil, fmt.Errorf("load static provider: %w", err)
			}
			p = sp
		default:
			return nil, fmt.Errorf("unknown geo provider %q", id)
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	if registry.Len() == 0 {
		return nil, errors.New("no geo provider could be configured")
	}

	return providers.NewChain(registry,
		providers.WithConfidenceFloor(geo.ConfidenceFloor),
		providers.WithProviderTimeout(geo.ProviderTimeout),
		providers.WithBreakerOptions(
			circuit.WithFailureThreshold(geo.FailureThreshold),
			circuit.WithSuccessThreshold(geo.SuccessThreshold),
			circuit.WithCooldown(geo.BreakerCooldown),
		),
		providers.WithLogger(a.logger),
		providers.WithMetrics(m),
	), nil
}

func (a *App) buildGate(ctx context.Context, m *qualitymetrics.Metrics) (*quality.Gate, error) {
	qc := a.Config.Quality
	rules := quality.DefaultRules()
	if qc.RulesFile != "" {
		loaded, err := quality.LoadRules(qc.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	publisher, err := a.buildReviewPublisher(ctx)
	if err != nil {
		return nil, err
	}
	gate, err := quality.NewGate(rules,
		quality.WithLogger(a.logger),
		quality.WithMetrics(m),
		quality.WithReviewPublisher(publisher),
	)
	if err != nil {
		return nil, err
	}

	if qc.RulesFile != "" && qc.HotReload {
		stop, err := gate.WatchFile(qc.RulesFile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, stop)
	}
	return gate, nil
}

func (a *App) buildReviewPublisher(ctx context.Context) (quality.ReviewPublisher, error) {
	kc := a.Config.Kafka
	client, err := kafka.NewProducer(kc, kgo.ClientID("civic-quality"))
	if err != nil {
		return nil, err
	}
	if client == nil {
		return quality.NewLogPublisher(a.logger), nil
	}
	a.closers = append(a.closers, func() error {
		client.Close()
		return nil
	})
	if err := kafka.EnsureTopic(ctx, client, kc.ReviewTopic, kc.Partitions, kc.Replication); err != nil {
		return nil, err
	}
	a.Checks["kafka"] = client.Ping
	a.review = review.NewAsyncPublisher(review.NewKafkaPublisher(client, kc.ReviewTopic),
		review.WithLogger(a.logger),
	)
	return a.review, nil
}

// Run drives background work until ctx is done. Without a review queue it
// just waits.
func (a *App) Run(ctx context.Context) error {
	if a.review == nil {
		<-ctx.Done()
		return nil
	}
	if err := a.review.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases every resource Build opened, most recent first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
