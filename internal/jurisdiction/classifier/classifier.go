// Package classifier turns an accepted place candidate into a Jurisdiction by
// matching it against the reference tables. It performs no I/O.
package classifier

import (
	"fmt"
	"strings"
	"time"

	"civic/internal/civic/models"
	"civic/internal/jurisdiction/reference"
	"civic/pkg/domain"
)

// Match certainties; the jurisdiction confidence is min(candidate, certainty).
const (
	CertaintyExact          = 1.0
	CertaintyFuzzy          = 0.85
	CertaintyUnincorporated = 0.7
	CertaintyUnknown        = 0.5
	// A provider county that disagrees with the table row.
	CertaintyCountyConflict = 0.6
)

// Classifier is safe for concurrent use; the tables are read-only.
type Classifier struct {
	tables *reference.Tables
}

// New builds a classifier over tables.
func New(tables *reference.Tables) *Classifier {
	return &Classifier{tables: tables}
}

// Classify derives incorporation status, canonical county and applicable
// levels for the candidate. A candidate without a place name or state is
// rejected: nothing is invented to fill the gap.
func (c *Classifier) Classify(candidate models.PlaceCandidate, zip domain.ZipCode, now time.Time) (models.Jurisdiction, error) {
	if candidate.ZipCode != "" && candidate.ZipCode != zip {
		return models.Jurisdiction{}, fmt.Errorf("candidate is for zip %s, not %s", candidate.ZipCode, zip)
	}
	place := strings.TrimSpace(candidate.City)
	if place == "" || strings.TrimSpace(candidate.State) == "" {
		return models.Jurisdiction{}, fmt.Errorf("candidate for %s lacks place name or state", zip)
	}

	state := strings.ToUpper(strings.TrimSpace(candidate.State))
	county := strings.TrimSpace(candidate.County)
	status := models.StatusUnknown
	certainty := CertaintyUnknown

	if code, ok := c.tables.StateCode(state); ok {
		state = code
		table, _ := c.tables.State(code)
		row, kind := table.Match(place)
		switch kind {
		case reference.ExactMatch, reference.FuzzyMatch:
			status = row.Status
			certainty = CertaintyExact
			if kind == reference.FuzzyMatch {
				certainty = CertaintyFuzzy
			}
			place = row.Name
			if county != "" && !sameCounty(county, row.County) {
				certainty = min(certainty, CertaintyCountyConflict)
			}
			county = row.County
		default:
			status = models.StatusUnincorporatedArea
			certainty = CertaintyUnincorporated
		}
	}

	return models.NewJurisdiction(models.JurisdictionParams{
		ZipCode:             zip,
		PlaceName:           place,
		County:              county,
		State:               state,
		IncorporationStatus: status,
		Confidence:          min(candidate.Confidence, certainty),
		Source:              candidate.Source,
		ProviderID:          candidate.ProviderID,
		ResolvedAt:          now,
		Location:            candidate.Location,
	})
}

// sameCounty compares county names ignoring case and the usual suffixes.
func sameCounty(a, b string) bool {
	return countyKey(a) == countyKey(b)
}

func countyKey(s string) string {
	k := reference.ExactKey(s)
	for _, suffix := range []string{" county", " parish", " borough", " census area", " municipality"} {
		k = strings.TrimSuffix(k, suffix)
	}
	return k
}
