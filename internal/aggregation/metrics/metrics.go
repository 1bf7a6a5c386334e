package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the aggregation facade.
type Metrics struct {
	// Stage latencies: resolve_geo, classify, map_districts, fetch_reps, validate, cache_write
	StageLatency *prometheus.HistogramVec

	// Per-level fetch latency
	LevelLatency *prometheus.HistogramVec

	// Resolutions by outcome: complete, partial, unresolved, invalid
	Resolutions *prometheus.CounterVec

	// Level statuses by level and status (ok, unavailable, empty)
	LevelStatus *prometheus.CounterVec

	// Cache check results: full_hit, partial_hit, miss
	CacheChecks *prometheus.CounterVec

	// Overall resolve latency
	ResolveLatency prometheus.Histogram
}

// New registers the aggregation metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civic_resolve_stage_duration_seconds",
			Help:    "Duration of each resolution stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"stage"}),

		LevelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civic_resolve_level_fetch_duration_seconds",
			Help:    "Duration of representative fetches by level",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"level"}),

		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_resolutions_total",
			Help: "ZIP code resolutions by outcome",
		}, []string{"outcome"}),

		LevelStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_resolve_level_status_total",
			Help: "Representative level statuses returned to callers",
		}, []string{"level", "status"}),

		CacheChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_resolve_cache_checks_total",
			Help: "Cache check results per resolution",
		}, []string{"result"}),

		ResolveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "civic_resolve_duration_seconds",
			Help:    "Duration of a full ZIP code resolution",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveLevel(level string, d time.Duration) {
	if m != nil {
		m.LevelLatency.WithLabelValues(level).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementResolution(outcome string) {
	if m != nil {
		m.Resolutions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementLevelStatus(level, status string) {
	if m != nil {
		m.LevelStatus.WithLabelValues(level, status).Inc()
	}
}

func (m *Metrics) IncrementCacheCheck(result string) {
	if m != nil {
		m.CacheChecks.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveResolve(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}
