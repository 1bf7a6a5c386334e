package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"civic/internal/civic/models"
	"civic/internal/quality"
	"civic/pkg/domain"
)

type rosterKey struct {
	level      domain.Level
	districtID string
}

// rosterSet holds the district rosters served from cache for one request.
type rosterSet map[rosterKey][]models.Representative

type districtRoster struct {
	id     string
	reps   []models.Representative
	cached bool
	// cacheable is set during validation when the roster was fetched fresh
	// and every record in it was accepted. evict is set when a cached roster
	// no longer passes.
	cacheable bool
	evict     bool
}

// levelFetch is one level's FETCH_REPS result.
type levelFetch struct {
	level      domain.Level
	districts  []districtRoster
	noDistrict bool
	err        error
}

// districtIDs lists every district of a level, primaries first, alternates
// after, without duplicates.
func districtIDs(j models.Jurisdiction, level domain.Level) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, a := range j.DistrictsFor(level) {
		for _, id := range a.DistrictIDs() {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// cachedRosters looks up every district roster of the jurisdiction and
// reports whether all of them were cached.
func (s *Service) cachedRosters(ctx context.Context, j models.Jurisdiction) (rosterSet, bool) {
	hits := make(rosterSet)
	complete := true
	for _, level := range j.ApplicableLevels {
		ids := districtIDs(j, level)
		if len(ids) == 0 {
			// nothing to fetch, so nothing can be missing
			continue
		}
		for _, id := range ids {
			reps, ok := s.deps.Cache.Roster(ctx, level, id)
			if !ok {
				complete = false
				continue
			}
			hits[rosterKey{level, id}] = reps
		}
	}
	return hits, complete
}

func (s *Service) fetchesFromCache(j models.Jurisdiction, hits rosterSet) map[domain.Level]levelFetch {
	out := make(map[domain.Level]levelFetch, len(j.ApplicableLevels))
	for _, level := range j.ApplicableLevels {
		ids := districtIDs(j, level)
		f := levelFetch{level: level, noDistrict: len(ids) == 0}
		for _, id := range ids {
			f.districts = append(f.districts, districtRoster{id: id, reps: hits[rosterKey{level, id}], cached: true})
		}
		out[level] = f
	}
	return out
}

// fetchReps fetches every applicable level in parallel. Levels do not share
// cancellation: one slow or failing level never cuts another short.
func (s *Service) fetchReps(ctx context.Context, j models.Jurisdiction, hits rosterSet) map[domain.Level]levelFetch {
	results := make([]levelFetch, len(j.ApplicableLevels))
	var g errgroup.Group
	for i, level := range j.ApplicableLevels {
		ids := districtIDs(j, level)
		if len(ids) == 0 {
			results[i] = levelFetch{level: level, noDistrict: true}
			continue
		}
		g.Go(func() error {
			results[i] = s.fetchLevel(ctx, level, ids, hits)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[domain.Level]levelFetch, len(results))
	for _, f := range results {
		out[f.level] = f
	}
	return out
}

func (s *Service) fetchLevel(ctx context.Context, level domain.Level, ids []string, hits rosterSet) levelFetch {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "civic.fetch_level", trace.WithAttributes(attribute.String("civic.level", level.String())))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.levelTimeout)
	defer cancel()

	done := make(chan levelFetch, 1)
	go func() {
		out := levelFetch{level: level}
		for _, id := range ids {
			if reps, ok := hits[rosterKey{level, id}]; ok {
				out.districts = append(out.districts, districtRoster{id: id, reps: reps, cached: true})
				continue
			}
			reps, err := s.deps.Directory.GetByDistrict(ctx, level, id)
			if err != nil {
				out.err = fmt.Errorf("district %s: %w", id, err)
				break
			}
			out.districts = append(out.districts, districtRoster{id: id, reps: reps})
		}
		done <- out
	}()

	var out levelFetch
	select {
	case out = <-done:
	case <-ctx.Done():
		// the directory ignored cancellation; its late answer is dropped
		out = levelFetch{level: level, err: ctx.Err()}
	}
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, unavailableReason(out.err))
	}
	s.metrics.ObserveLevel(level.String(), time.Since(start))
	return out
}

func unavailableReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ReasonTimeout
	}
	return models.ReasonFetchFailed
}

// assemble turns level fetches into a bundle. Every record passes the gate;
// rejected ones are reported and left out.
func (s *Service) assemble(ctx context.Context, r *run, j models.Jurisdiction, fetches map[domain.Level]levelFetch) *models.Bundle {
	bundle := &models.Bundle{
		Jurisdiction:           j,
		RepresentativesByLevel: make(map[domain.Level]models.LevelResult, len(domain.AllLevels())),
		ResolvedAt:             r.now,
	}
	for _, level := range domain.AllLevels() {
		if !j.Applies(level) {
			bundle.RepresentativesByLevel[level] = models.LevelResult{
				Status:  models.LevelEmpty,
				Records: []models.Representative{},
				Reason:  models.ReasonNotApplicable,
			}
			continue
		}
		f := fetches[level]
		switch {
		case f.noDistrict:
			bundle.RepresentativesByLevel[level] = unavailable(models.ReasonNoDistrict)
		case f.err != nil:
			reason := unavailableReason(f.err)
			s.logger.WarnContext(ctx, "representative level unavailable",
				"zip", r.zip,
				"level", level,
				"reason", reason,
				"error", f.err,
			)
			bundle.RepresentativesByLevel[level] = unavailable(reason)
		default:
			bundle.RepresentativesByLevel[level] = s.levelResult(ctx, r, j, &f)
			fetches[level] = f
		}
	}
	bundle.ComputeOutcome()
	return bundle
}

func unavailable(reason string) models.LevelResult {
	return models.LevelResult{
		Status:  models.LevelUnavailable,
		Records: []models.Representative{},
		Reason:  reason,
	}
}

func (s *Service) levelResult(ctx context.Context, r *run, j models.Jurisdiction, f *levelFetch) models.LevelResult {
	res := models.LevelResult{Records: []models.Representative{}}
	seen := make(map[string]struct{})
	for i := range f.districts {
		d := &f.districts[i]
		clean := true
		for _, rep := range d.reps {
			verdict := s.deps.Gate.ValidateRepresentative(rep, j, r.now)
			if !verdict.Accepted {
				clean = false
				res.Rejected++
				s.deps.Gate.Report(ctx, quality.Rejection{
					Kind:       quality.KindRepresentative,
					ZipCode:    r.zip.String(),
					Level:      f.level.String(),
					RecordID:   rep.ID,
					Observed:   rep.Name,
					Violations: verdict.Violations,
				})
				continue
			}
			for _, w := range verdict.WarningStrings() {
				res.Warnings = append(res.Warnings, rep.ID+": "+w)
			}
			if _, dup := seen[rep.ID]; dup {
				continue
			}
			seen[rep.ID] = struct{}{}
			res.Records = append(res.Records, rep)
		}
		d.cacheable = clean && !d.cached
		d.evict = !clean && d.cached
	}

	switch {
	case res.Rejected > 0:
		res.Status = models.LevelUnavailable
		res.Reason = models.ReasonQualityRejected
	case len(res.Records) == 0:
		res.Status = models.LevelEmpty
	default:
		res.Status = models.LevelOK
	}
	return res
}

func (s *Service) reportJurisdiction(ctx context.Context, j models.Jurisdiction, res quality.Result) {
	s.deps.Gate.Report(ctx, quality.Rejection{
		Kind:       quality.KindJurisdiction,
		ZipCode:    j.ZipCode.String(),
		Observed:   j.PlaceName,
		Violations: res.Violations,
	})
}
