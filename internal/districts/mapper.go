// Package districts assigns a classified jurisdiction to every legislative
// and local district it plausibly falls in.
package districts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"civic/internal/civic/models"
	"civic/pkg/domain"
)

// Sources for assignments that do not come from a boundary source.
const (
	SourceStatewide = "statewide"
	SourcePlacewide = "placewide"
)

// Mapper consults boundary sources in order and derives the statewide and
// place-wide seats itself.
type Mapper struct {
	sources []BoundarySource
	logger  *slog.Logger
}

type Option func(*Mapper)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMapper builds a mapper over sources, highest precedence first.
func NewMapper(sources []BoundarySource, opts ...Option) *Mapper {
	m := &Mapper{sources: sources, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewDefaultMapper uses the embedded crosswalk: ZIP rows first, geohash cells
// when the ZIP is missing.
func NewDefaultMapper(opts ...Option) (*Mapper, error) {
	cw, err := DefaultCrosswalk()
	if err != nil {
		return nil, err
	}
	return NewMapper([]BoundarySource{NewZipSource(cw), NewGeohashSource(cw)}, opts...), nil
}

// Map returns one assignment per (level, chamber), each carrying every other
// plausible district as an alternate. Levels the jurisdiction does not
// participate in are never assigned. An empty result is not an error.
func (m *Mapper) Map(ctx context.Context, j models.Jurisdiction) ([]models.DistrictAssignment, error) {
	var (
		shares []Share
		source string
	)
	for _, src := range m.sources {
		rows, found, err := src.Lookup(ctx, j)
		if err != nil {
			return nil, fmt.Errorf("district source %s: %w", src.Name(), err)
		}
		if found {
			shares, source = rows, src.Name()
			break
		}
	}
	if source == "" {
		m.logger.InfoContext(ctx, "no boundary source covers jurisdiction",
			"zip", j.ZipCode,
			"place", j.PlaceName,
			"state", j.State,
		)
	}

	assignments := group(shares, source, j)

	if j.Applies(domain.LevelFederal) && j.State != "" {
		assignments = append(assignments, models.DistrictAssignment{
			Level:      domain.LevelFederal,
			Chamber:    domain.ChamberSenate,
			DistrictID: SenateDistrictID(j.State),
			Confidence: 1,
			Source:     SourceStatewide,
		})
	}
	if j.Applies(domain.LevelMunicipal) && j.PlaceName != "" {
		assignments = append(assignments, models.DistrictAssignment{
			Level:      domain.LevelMunicipal,
			Chamber:    domain.ChamberExecutive,
			DistrictID: PlaceDistrictID(j.PlaceName, j.State),
			Confidence: j.Confidence,
			Source:     SourcePlacewide,
		})
	}
	return assignments, nil
}

type seatKey struct {
	level   domain.Level
	chamber domain.Chamber
}

func group(shares []Share, source string, j models.Jurisdiction) []models.DistrictAssignment {
	bySeat := make(map[seatKey][]Share)
	var order []seatKey
	for _, s := range shares {
		if !j.Applies(s.Level) {
			continue
		}
		k := seatKey{s.Level, s.Chamber}
		if _, seen := bySeat[k]; !seen {
			order = append(order, k)
		}
		bySeat[k] = append(bySeat[k], s)
	}

	out := make([]models.DistrictAssignment, 0, len(order))
	for _, k := range order {
		rows := bySeat[k]
		sort.SliceStable(rows, func(a, b int) bool {
			if rows[a].Share != rows[b].Share {
				return rows[a].Share > rows[b].Share
			}
			return rows[a].District < rows[b].District
		})
		a := models.DistrictAssignment{
			Level:      k.level,
			Chamber:    k.chamber,
			DistrictID: rows[0].District,
			Confidence: models.ClampConfidence(rows[0].Share),
			Source:     source,
		}
		for _, alt := range rows[1:] {
			if alt.District == a.DistrictID {
				continue
			}
			a.Alternates = append(a.Alternates, models.AlternateDistrict{
				DistrictID: alt.District,
				Confidence: models.ClampConfidence(alt.Share),
			})
		}
		out = append(out, a)
	}
	return out
}

// SenateDistrictID is the statewide district key for U.S. senators.
func SenateDistrictID(state string) string {
	return strings.ToUpper(state)
}

// PlaceDistrictID is the place-wide key for a city's executive, e.g. "sacramento-ca".
func PlaceDistrictID(place, state string) string {
	return Slug(place) + "-" + strings.ToLower(state)
}

// Slug lowercases s and joins alphanumeric runs with single hyphens.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
