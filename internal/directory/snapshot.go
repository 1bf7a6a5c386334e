// Package directory serves representative rosters from immutable per-level
// snapshots. Refresh jobs publish new snapshots; the engine only reads.
package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"civic/internal/civic/models"
	"civic/pkg/domain"
)

// ErrStaleVersion is returned when publishing a version that is not newer
// than the current one.
var ErrStaleVersion = errors.New("snapshot version is not newer than the published one")

// Snapshot is a complete roster for one level. It must not be modified after
// Publish.
type Snapshot struct {
	Level       domain.Level                       `json:"level"`
	Version     int64                              `json:"version"`
	PublishedAt time.Time                          `json:"published_at"`
	Source      string                             `json:"source"`
	Districts   map[string][]models.Representative `json:"districts"`
}

// Validate checks that every record sits under its own district and level.
func (s *Snapshot) Validate() error {
	if _, err := domain.ParseLevel(string(s.Level)); err != nil {
		return err
	}
	for districtID, reps := range s.Districts {
		for i, r := range reps {
			if r.DistrictID != districtID {
				return fmt.Errorf("district %s record %d: district_id %q does not match", districtID, i, r.DistrictID)
			}
			if r.Level != s.Level {
				return fmt.Errorf("district %s record %d: level %q in %s snapshot", districtID, i, r.Level, s.Level)
			}
		}
	}
	return nil
}

// Records returns a copy of the roster for one district.
func (s *Snapshot) Records(districtID string) []models.Representative {
	reps := s.Districts[districtID]
	out := make([]models.Representative, len(reps))
	for i, r := range reps {
		r.Committees = slices.Clone(r.Committees)
		out[i] = r
	}
	return out
}

// Count returns the number of records across all districts.
func (s *Snapshot) Count() int {
	n := 0
	for _, reps := range s.Districts {
		n += len(reps)
	}
	return n
}

// SnapshotStore is the persistence port. Snapshot returns an error wrapping
// sentinel.ErrNotFound when nothing was published for the level. Publish
// assigns the next version when snap.Version is zero.
type SnapshotStore interface {
	Snapshot(ctx context.Context, level domain.Level) (*Snapshot, error)
	Publish(ctx context.Context, snap *Snapshot) error
}

// Versioner is implemented by stores that can report the current version of
// a level without loading it. Stores shared with other processes should
// implement it; the directory then never serves a superseded snapshot.
type Versioner interface {
	LatestVersion(ctx context.Context, level domain.Level) (int64, error)
}

// Transactor is implemented by stores that can group publishes into one
// transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// cadence is how often each level's source is expected to change.
var cadence = map[domain.Level]time.Duration{
	domain.LevelFederal:   7 * 24 * time.Hour,
	domain.LevelState:     14 * 24 * time.Hour,
	domain.LevelCounty:    30 * 24 * time.Hour,
	domain.LevelMunicipal: 14 * 24 * time.Hour,
}

// Cadence returns the expected refresh interval for a level.
func Cadence(level domain.Level) time.Duration {
	return cadence[level]
}
