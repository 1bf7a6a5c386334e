package directory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"civic/internal/civic/models"
	"civic/pkg/domain"
)

// rosterFile is the YAML layout refresh jobs and the CLI publish from.
type rosterFile struct {
	Level           domain.Level            `yaml:"level"`
	Source          string                  `yaml:"source"`
	PublishedAt     time.Time               `yaml:"published_at"`
	Representatives []models.Representative `yaml:"representatives"`
}

// DecodeRoster reads a roster document into an unpublished snapshot.
// Records missing a level inherit the document's.
func DecodeRoster(r io.Reader) (*Snapshot, error) {
	var doc rosterFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	level, err := domain.ParseLevel(string(doc.Level))
	if err != nil {
		return nil, fmt.Errorf("roster level: %w", err)
	}
	snap := &Snapshot{
		Level:       level,
		PublishedAt: doc.PublishedAt,
		Source:      doc.Source,
		Districts:   make(map[string][]models.Representative),
	}
	for i, rep := range doc.Representatives {
		if rep.DistrictID == "" {
			return nil, fmt.Errorf("roster record %d (%s): district_id is required", i, rep.ID)
		}
		if rep.Level == "" {
			rep.Level = level
		}
		snap.Districts[rep.DistrictID] = append(snap.Districts[rep.DistrictID], rep)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadRosterFile opens and decodes one roster file.
func LoadRosterFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster %s: %w", path, err)
	}
	defer f.Close()
	snap, err := DecodeRoster(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// LoadSeedDir loads <level>.yaml for every level present in dir. Missing
// files are skipped.
func LoadSeedDir(dir string) ([]*Snapshot, error) {
	var out []*Snapshot
	for _, level := range domain.AllLevels() {
		path := filepath.Join(dir, string(level)+".yaml")
		snap, err := LoadRosterFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if snap.Level != level {
			return nil, fmt.Errorf("%s declares level %s", path, snap.Level)
		}
		out = append(out, snap)
	}
	return out, nil
}
