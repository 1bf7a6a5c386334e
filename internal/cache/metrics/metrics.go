package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks resolution cache effectiveness.
type Metrics struct {
	// Lookups by kind (zip, district) and result (hit, miss, expired, corrupt)
	Lookups *prometheus.CounterVec

	Writes *prometheus.CounterVec

	Invalidations *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_cache_lookups_total",
			Help: "Resolution cache lookups by entry kind and result",
		}, []string{"kind", "result"}),
		Writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_cache_writes_total",
			Help: "Resolution cache writes by entry kind",
		}, []string{"kind"}),
		Invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_cache_invalidations_total",
			Help: "Explicit cache invalidations by entry kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementLookup(kind, result string) {
	if m != nil {
		m.Lookups.WithLabelValues(kind, result).Inc()
	}
}

func (m *Metrics) IncrementWrite(kind string) {
	if m != nil {
		m.Writes.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncrementInvalidation(kind string) {
	if m != nil {
		m.Invalidations.WithLabelValues(kind).Inc()
	}
}
