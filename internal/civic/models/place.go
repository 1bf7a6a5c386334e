package models

import (
	"strings"

	"civic/pkg/domain"
)

// SourceFallback tags a value that was accepted below the confidence floor
// because nothing better existed. Such values go through the stricter
// fallback ruleset of the quality gate.
const SourceFallback = "fallback"

// Coordinates is an optional point attached to a candidate or jurisdiction.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PlaceCandidate is one provider's normalized answer for a ZIP code.
type PlaceCandidate struct {
	ZipCode    domain.ZipCode `json:"zip_code"`
	City       string         `json:"city"`
	County     string         `json:"county,omitempty"`
	State      string         `json:"state"`
	Location   *Coordinates   `json:"location,omitempty"`
	ProviderID string         `json:"provider_id"`
	// Priority is the provider's position in the fallback chain; lower wins ties.
	Priority   int     `json:"priority"`
	Confidence float64 `json:"confidence"`
	// Source is the provider ID, or SourceFallback once re-tagged by the chain.
	Source string `json:"source"`
}

// Completeness counts the populated identity fields (city, county, state,
// location) so equally confident candidates can be ranked.
func (c PlaceCandidate) Completeness() int {
	n := 0
	if strings.TrimSpace(c.City) != "" {
		n++
	}
	if strings.TrimSpace(c.County) != "" {
		n++
	}
	if strings.TrimSpace(c.State) != "" {
		n++
	}
	if c.Location != nil {
		n++
	}
	return n
}

// IsFallback reports whether the candidate was accepted below the floor.
func (c PlaceCandidate) IsFallback() bool {
	return c.Source == SourceFallback
}

// ClampConfidence bounds a score to [0,1].
func ClampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
