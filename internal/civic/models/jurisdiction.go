package models

import (
	"fmt"
	"sort"
	"time"

	"civic/pkg/domain"
)

// IncorporationStatus classifies a place's local-government standing.
type IncorporationStatus string

const (
	StatusIncorporatedCity      IncorporationStatus = "incorporated_city"
	StatusCensusDesignatedPlace IncorporationStatus = "census_designated_place"
	StatusUnincorporatedArea    IncorporationStatus = "unincorporated_area"
	StatusUnknown               IncorporationStatus = "unknown"
)

// ApplicableLevelsFor derives the representation tiers for a status.
// Federal, state and county always apply; municipal applies only to
// incorporated cities.
func ApplicableLevelsFor(status IncorporationStatus) []domain.Level {
	levels := []domain.Level{domain.LevelFederal, domain.LevelState, domain.LevelCounty}
	if status == StatusIncorporatedCity {
		levels = append(levels, domain.LevelMunicipal)
	}
	return levels
}

// DistrictAssignment ties a jurisdiction to one district per (level, chamber).
// When a ZIP code straddles boundaries the other plausible districts are kept
// in Alternates instead of being discarded.
type DistrictAssignment struct {
	Level      domain.Level        `json:"level"`
	Chamber    domain.Chamber      `json:"chamber,omitempty"`
	DistrictID string              `json:"district_id"`
	Confidence float64             `json:"confidence"`
	Source     string              `json:"source"`
	Alternates []AlternateDistrict `json:"alternates,omitempty"`
}

// AlternateDistrict is a less likely district for the same (level, chamber).
type AlternateDistrict struct {
	DistrictID string  `json:"district_id"`
	Confidence float64 `json:"confidence"`
}

// DistrictIDs lists the primary district followed by every alternate.
func (d DistrictAssignment) DistrictIDs() []string {
	ids := make([]string, 0, 1+len(d.Alternates))
	ids = append(ids, d.DistrictID)
	for _, alt := range d.Alternates {
		ids = append(ids, alt.DistrictID)
	}
	return ids
}

// Jurisdiction is the canonical civic identity for a ZIP code. It is
// immutable once built; re-resolution produces a new value.
type Jurisdiction struct {
	ZipCode             domain.ZipCode       `json:"zip_code"`
	PlaceName           string               `json:"place_name"`
	County              string               `json:"county"`
	State               string               `json:"state"`
	IncorporationStatus IncorporationStatus  `json:"incorporation_status"`
	ApplicableLevels    []domain.Level       `json:"applicable_levels"`
	Confidence          float64              `json:"confidence"`
	Source              string               `json:"source"`
	ProviderID          string               `json:"provider_id"`
	ResolvedAt          time.Time            `json:"resolved_at"`
	Location            *Coordinates         `json:"location,omitempty"`
	Districts           []DistrictAssignment `json:"districts,omitempty"`
}

// JurisdictionParams carries the inputs of NewJurisdiction.
type JurisdictionParams struct {
	ZipCode             domain.ZipCode
	PlaceName           string
	County              string
	State               string
	IncorporationStatus IncorporationStatus
	Confidence          float64
	Source              string
	ProviderID          string
	ResolvedAt          time.Time
	Location            *Coordinates
}

// NewJurisdiction builds a Jurisdiction whose applicable levels follow from
// its incorporation status.
func NewJurisdiction(p JurisdictionParams) (Jurisdiction, error) {
	if p.ZipCode == "" {
		return Jurisdiction{}, fmt.Errorf("jurisdiction requires a zip code")
	}
	if p.State == "" {
		return Jurisdiction{}, fmt.Errorf("jurisdiction requires a state")
	}
	switch p.IncorporationStatus {
	case StatusIncorporatedCity, StatusCensusDesignatedPlace, StatusUnincorporatedArea, StatusUnknown:
	default:
		return Jurisdiction{}, fmt.Errorf("unknown incorporation status %q", p.IncorporationStatus)
	}
	return Jurisdiction{
		ZipCode:             p.ZipCode,
		PlaceName:           p.PlaceName,
		County:              p.County,
		State:               p.State,
		IncorporationStatus: p.IncorporationStatus,
		ApplicableLevels:    ApplicableLevelsFor(p.IncorporationStatus),
		Confidence:          ClampConfidence(p.Confidence),
		Source:              p.Source,
		ProviderID:          p.ProviderID,
		ResolvedAt:          p.ResolvedAt,
		Location:            p.Location,
	}, nil
}

// WithDistricts returns a copy carrying the given assignments in canonical
// (level, chamber) order.
func (j Jurisdiction) WithDistricts(assignments []DistrictAssignment) Jurisdiction {
	out := make([]DistrictAssignment, len(assignments))
	copy(out, assignments)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Level != out[b].Level {
			return out[a].Level.Before(out[b].Level)
		}
		return out[a].Chamber < out[b].Chamber
	})
	j.Districts = out
	return j
}

// Applies reports whether the level is in ApplicableLevels.
func (j Jurisdiction) Applies(level domain.Level) bool {
	for _, l := range j.ApplicableLevels {
		if l == level {
			return true
		}
	}
	return false
}

// DistrictsFor returns the assignments for one level.
func (j Jurisdiction) DistrictsFor(level domain.Level) []DistrictAssignment {
	var out []DistrictAssignment
	for _, d := range j.Districts {
		if d.Level == level {
			out = append(out, d)
		}
	}
	return out
}

// IsFallback reports whether the identity came from a below-floor candidate.
func (j Jurisdiction) IsFallback() bool {
	return j.Source == SourceFallback
}
