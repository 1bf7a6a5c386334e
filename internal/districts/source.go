package districts

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"gopkg.in/yaml.v3"

	"civic/internal/civic/models"
	"civic/pkg/domain"
)

//go:embed crosswalk.yaml
var embeddedCrosswalk []byte

// Share is a district a jurisdiction overlaps and by how much.
type Share struct {
	Level    domain.Level   `yaml:"level"`
	Chamber  domain.Chamber `yaml:"chamber"`
	District string         `yaml:"district"`
	Share    float64        `yaml:"share"`
}

// BoundarySource proposes district shares for a jurisdiction. found is false
// when the source has no data for it, which lets the mapper try the next one.
type BoundarySource interface {
	Name() string
	Lookup(ctx context.Context, j models.Jurisdiction) (shares []Share, found bool, err error)
}

// Crosswalk is the parsed crosswalk document.
type Crosswalk struct {
	Version string             `yaml:"version"`
	Zips    map[string][]Share `yaml:"zips"`
	Cells   map[string][]Share `yaml:"cells"`
}

// DefaultCrosswalk parses the embedded crosswalk.
func DefaultCrosswalk() (*Crosswalk, error) {
	return ParseCrosswalk(embeddedCrosswalk)
}

// LoadCrosswalk reads a crosswalk file with the embedded layout.
func LoadCrosswalk(path string) (*Crosswalk, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crosswalk: %w", err)
	}
	return ParseCrosswalk(b)
}

// ParseCrosswalk validates every row.
func ParseCrosswalk(b []byte) (*Crosswalk, error) {
	var cw Crosswalk
	if err := yaml.Unmarshal(b, &cw); err != nil {
		return nil, fmt.Errorf("decode crosswalk: %w", err)
	}
	for key, rows := range cw.Zips {
		if _, err := domain.ParseZipCode(key); err != nil {
			return nil, fmt.Errorf("crosswalk zip %q: %w", key, err)
		}
		if err := validateShares(key, rows); err != nil {
			return nil, err
		}
	}
	for key, rows := range cw.Cells {
		if err := validateShares(key, rows); err != nil {
			return nil, err
		}
	}
	return &cw, nil
}

func validateShares(key string, rows []Share) error {
	for i, r := range rows {
		if _, err := domain.ParseLevel(string(r.Level)); err != nil {
			return fmt.Errorf("crosswalk %s row %d: %w", key, i, err)
		}
		if r.District == "" {
			return fmt.Errorf("crosswalk %s row %d: district is required", key, i)
		}
		if r.Share <= 0 || r.Share > 1 {
			return fmt.Errorf("crosswalk %s row %d: share %v outside (0,1]", key, i, r.Share)
		}
	}
	return nil
}

// ZipSource answers from the ZIP section of a crosswalk.
type ZipSource struct {
	cw *Crosswalk
}

func NewZipSource(cw *Crosswalk) *ZipSource {
	return &ZipSource{cw: cw}
}

func (s *ZipSource) Name() string {
	return "zip-crosswalk"
}

func (s *ZipSource) Lookup(ctx context.Context, j models.Jurisdiction) ([]Share, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	rows, ok := s.cw.Zips[j.ZipCode.String()]
	return rows, ok, nil
}

// minCellPrecision stops the prefix walk before cells grow wider than a county.
const minCellPrecision = 4

// cellConfidence discounts cell shares: a cell only approximates the ZIP.
const cellConfidence = 0.8

// GeohashSource answers from geohash cells using the jurisdiction location,
// matching the longest cell prefix present in the crosswalk.
type GeohashSource struct {
	cw *Crosswalk
}

func NewGeohashSource(cw *Crosswalk) *GeohashSource {
	return &GeohashSource{cw: cw}
}

func (s *GeohashSource) Name() string {
	return "geohash-cells"
}

func (s *GeohashSource) Lookup(ctx context.Context, j models.Jurisdiction) ([]Share, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if j.Location == nil {
		return nil, false, nil
	}
	gh := strings.ToLower(geohash.Encode(j.Location.Latitude, j.Location.Longitude))
	for p := len(gh); p >= minCellPrecision; p-- {
		rows, ok := s.cw.Cells[gh[:p]]
		if !ok {
			continue
		}
		out := make([]Share, len(rows))
		for i, r := range rows {
			r.Share *= cellConfidence
			out[i] = r
		}
		return out, true, nil
	}
	return nil, false, nil
}
