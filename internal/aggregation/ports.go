package aggregation

import (
	"context"
	"time"

	"civic/internal/civic/models"
	"civic/internal/geo/providers"
	"civic/internal/quality"
	"civic/pkg/domain"
)

// GeoResolver turns a ZIP code into the best available place candidate.
type GeoResolver interface {
	Resolve(ctx context.Context, zip domain.ZipCode) (providers.Resolution, error)
}

type Classifier interface {
	Classify(candidate models.PlaceCandidate, zip domain.ZipCode, now time.Time) (models.Jurisdiction, error)
}

type DistrictMapper interface {
	Map(ctx context.Context, j models.Jurisdiction) ([]models.DistrictAssignment, error)
}

// Directory is the read-only representative lookup.
type Directory interface {
	GetByDistrict(ctx context.Context, level domain.Level, districtID string) ([]models.Representative, error)
}

type Gate interface {
	ValidateJurisdiction(j models.Jurisdiction, now time.Time) quality.Result
	ValidateRepresentative(rep models.Representative, j models.Jurisdiction, now time.Time) quality.Result
	Report(ctx context.Context, rej quality.Rejection)
}

type Cache interface {
	Jurisdiction(ctx context.Context, zip domain.ZipCode) (models.Jurisdiction, bool)
	PutJurisdiction(ctx context.Context, j models.Jurisdiction) error
	Roster(ctx context.Context, level domain.Level, districtID string) ([]models.Representative, bool)
	PutRoster(ctx context.Context, level domain.Level, districtID string, reps []models.Representative) error
	InvalidateZip(ctx context.Context, zip domain.ZipCode) error
	InvalidateDistrict(ctx context.Context, level domain.Level, districtID string) error
}
