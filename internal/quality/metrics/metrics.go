package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the data quality gate.
type Metrics struct {
	// Validations by kind (jurisdiction, representative) and result
	Validations *prometheus.CounterVec

	// Violations by rule, warnings included
	Violations *prometheus.CounterVec

	// Rule reloads by result: ok, error
	RuleReloads *prometheus.CounterVec

	// Rejections forwarded to the review queue by result: ok, error, dropped
	ReviewPublished *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_quality_validations_total",
			Help: "Quality gate validations by record kind and result",
		}, []string{"kind", "result"}),
		Violations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_quality_violations_total",
			Help: "Quality rule violations by rule",
		}, []string{"rule"}),
		RuleReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_quality_rule_reloads_total",
			Help: "Quality ruleset reloads by result",
		}, []string{"result"}),
		ReviewPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_quality_review_published_total",
			Help: "Rejections forwarded to the review queue by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementValidation(kind, result string) {
	if m != nil {
		m.Validations.WithLabelValues(kind, result).Inc()
	}
}

func (m *Metrics) IncrementViolation(rule string) {
	if m != nil {
		m.Violations.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) IncrementReload(result string) {
	if m != nil {
		m.RuleReloads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementReviewPublish(result string) {
	if m != nil {
		m.ReviewPublished.WithLabelValues(result).Inc()
	}
}
