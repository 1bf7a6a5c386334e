// Package static serves ZIP lookups from an embedded table. It is the last
// link of the default chain and the only provider available offline.
package static

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"civic/internal/civic/models"
	"civic/internal/geo/providers"
	"civic/pkg/domain"
)

const DefaultID = "static"

//go:embed places.yaml
var embeddedPlaces []byte

type row struct {
	Zip        string  `yaml:"zip"`
	City       string  `yaml:"city"`
	County     string  `yaml:"county"`
	State      string  `yaml:"state"`
	Lat        float64 `yaml:"lat"`
	Lng        float64 `yaml:"lng"`
	Confidence float64 `yaml:"confidence"`
}

type table struct {
	Version string `yaml:"version"`
	Places  []row  `yaml:"places"`
}

// Provider answers from an in-memory index built once at construction.
type Provider struct {
	id      string
	version string
	byZip   map[domain.ZipCode][]models.PlaceCandidate
}

// New loads the embedded table.
func New() (*Provider, error) {
	return parse(embeddedPlaces)
}

// FromFile loads a table with the same layout as the embedded one.
func FromFile(path string) (*Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open static places %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read static places %s: %w", path, err)
	}
	return parse(b)
}

func parse(b []byte) (*Provider, error) {
	var t table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode static places: %w", err)
	}
	p := &Provider{
		id:      DefaultID,
		version: t.Version,
		byZip:   make(map[domain.ZipCode][]models.PlaceCandidate, len(t.Places)),
	}
	for i, r := range t.Places {
		zip, err := domain.ParseZipCode(r.Zip)
		if err != nil {
			return nil, fmt.Errorf("static places row %d: %w", i, err)
		}
		if strings.TrimSpace(r.City) == "" || strings.TrimSpace(r.State) == "" {
			return nil, fmt.Errorf("static places row %d: city and state are required", i)
		}
		c := models.PlaceCandidate{
			ZipCode:    zip,
			City:       r.City,
			County:     r.County,
			State:      r.State,
			Confidence: r.Confidence,
		}
		if r.Lat != 0 || r.Lng != 0 {
			c.Location = &models.Coordinates{Latitude: r.Lat, Longitude: r.Lng}
		}
		p.byZip[zip] = append(p.byZip[zip], c)
	}
	return p, nil
}

func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Protocol:      providers.ProtocolOffline,
		Version:       p.version,
		Fields:        []string{providers.FieldCity, providers.FieldCounty, providers.FieldState, providers.FieldLocation},
		MaxConfidence: 1,
	}
}

func (p *Provider) Lookup(ctx context.Context, zip domain.ZipCode) ([]models.PlaceCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, providers.NewProviderError(providers.ErrorTimeout, p.id, "context done", err)
	}
	rows := p.byZip[zip]
	out := make([]models.PlaceCandidate, len(rows))
	copy(out, rows)
	return out, nil
}

func (p *Provider) Health(context.Context) error {
	return nil
}
