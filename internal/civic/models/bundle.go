package models

import (
	"time"

	"civic/pkg/domain"
)

// LevelStatus is the per-level outcome reported to callers.
type LevelStatus string

const (
	LevelOK          LevelStatus = "ok"
	LevelUnavailable LevelStatus = "unavailable"
	LevelEmpty       LevelStatus = "empty"
)

// Reasons attached to unavailable levels.
const (
	ReasonTimeout         = "timeout"
	ReasonFetchFailed     = "fetch_failed"
	ReasonQualityRejected = "quality_rejected"
	ReasonNoDistrict      = "no_district"
	ReasonNotApplicable   = "not_applicable"
)

// Outcome summarizes a bundle.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomePartial  Outcome = "partial"
)

// LevelResult is what one representation tier contributed to a bundle.
// Records only ever holds representatives that passed the quality gate.
type LevelResult struct {
	Status   LevelStatus      `json:"status"`
	Records  []Representative `json:"records"`
	Reason   string           `json:"reason,omitempty"`
	Rejected int              `json:"rejected,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Bundle is the engine's answer for a ZIP code.
type Bundle struct {
	Jurisdiction           Jurisdiction                 `json:"jurisdiction"`
	RepresentativesByLevel map[domain.Level]LevelResult `json:"representatives_by_level"`
	Outcome                Outcome                      `json:"outcome"`
	CacheHit               bool                         `json:"cache_hit"`
	ResolvedAt             time.Time                    `json:"resolved_at"`
}

// ComputeOutcome marks the bundle partial when any applicable level is not ok.
func (b *Bundle) ComputeOutcome() {
	b.Outcome = OutcomeComplete
	for _, level := range b.Jurisdiction.ApplicableLevels {
		res, ok := b.RepresentativesByLevel[level]
		if !ok || res.Status != LevelOK {
			b.Outcome = OutcomePartial
			return
		}
	}
}

// Records flattens every returned representative in canonical level order.
func (b *Bundle) Records() []Representative {
	var out []Representative
	for _, level := range domain.AllLevels() {
		out = append(out, b.RepresentativesByLevel[level].Records...)
	}
	return out
}
