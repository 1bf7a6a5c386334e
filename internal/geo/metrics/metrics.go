package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the geo provider chain.
type Metrics struct {
	// Lookup latency by provider
	ProviderLatency *prometheus.HistogramVec

	// Lookup outcomes by provider: accepted, below_floor, empty, error, circuit_open
	ProviderOutcome *prometheus.CounterVec

	// Chain results: accepted, fallback, unresolved
	ChainResult *prometheus.CounterVec

	BreakerTransitions *prometheus.CounterVec
}

// New registers the geo metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the geo metrics on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civic_geo_provider_duration_seconds",
			Help:    "Duration of geo provider lookups by provider",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"provider"}),

		ProviderOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_geo_provider_outcomes_total",
			Help: "Geo provider lookup outcomes by provider",
		}, []string{"provider", "outcome"}),

		ChainResult: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_geo_chain_results_total",
			Help: "Final result of a provider chain resolution",
		}, []string{"result"}),

		BreakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_geo_breaker_transitions_total",
			Help: "Circuit breaker state transitions by provider",
		}, []string{"provider", "state"}),
	}
}

func (m *Metrics) ObserveProvider(provider, outcome string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
		m.ProviderOutcome.WithLabelValues(provider, outcome).Inc()
	}
}

func (m *Metrics) IncrementChainResult(result string) {
	if m != nil {
		m.ChainResult.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementBreakerTransition(provider, state string) {
	if m != nil {
		m.BreakerTransitions.WithLabelValues(provider, state).Inc()
	}
}
