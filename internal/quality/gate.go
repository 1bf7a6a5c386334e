// Package quality is the last check before records leave the engine. Every
// jurisdiction and representative passes through Gate; anything that looks
// invented or contradicts its jurisdiction is dropped.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"civic/internal/civic/models"
	"civic/internal/quality/metrics"
	"civic/pkg/domain"
	"civic/pkg/requestcontext"
)

// Gate validates outbound records against the current ruleset. Rules can be
// swapped at runtime; each validation call sees one consistent ruleset.
type Gate struct {
	rules     atomic.Pointer[compiledRules]
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher ReviewPublisher
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithReviewPublisher forwards rejections to the correction queue.
func WithReviewPublisher(p ReviewPublisher) Option {
	return func(g *Gate) {
		if p != nil {
			g.publisher = p
		}
	}
}

// NewGate compiles rules and returns a ready gate.
func NewGate(rules Rules, opts ...Option) (*Gate, error) {
	g := &Gate{logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	if g.publisher == nil {
		g.publisher = NewLogPublisher(g.logger)
	}
	if err := g.Swap(rules); err != nil {
		return nil, err
	}
	return g, nil
}

// Swap atomically replaces the ruleset. Invalid rules leave the current
// ruleset in place.
func (g *Gate) Swap(rules Rules) error {
	compiled, err := rules.compile()
	if err != nil {
		return fmt.Errorf("compile quality rules: %w", err)
	}
	g.rules.Store(compiled)
	return nil
}

// Rules returns the ruleset currently in force.
func (g *Gate) Rules() Rules {
	return g.rules.Load().source
}

// ValidateRecord runs the checks that need nothing but the record itself.
func (g *Gate) ValidateRecord(rep models.Representative, now time.Time) Result {
	var col collector
	g.checkRecord(g.rules.Load(), &col, rep, now)
	res := col.result()
	g.observe("representative", res)
	return res
}

// ValidateRepresentative checks a record and its fit with the jurisdiction it
// is about to be attached to.
func (g *Gate) ValidateRepresentative(rep models.Representative, j models.Jurisdiction, now time.Time) Result {
	var col collector
	g.checkRecord(g.rules.Load(), &col, rep, now)

	if !j.Applies(rep.Level) {
		col.reject("level", RuleInconsistentLevel,
			fmt.Sprintf("%s not in %s", rep.Level, joinLevels(j.ApplicableLevels)))
	} else if assigned := j.DistrictsFor(rep.Level); len(assigned) > 0 && !inDistricts(assigned, rep.DistrictID) {
		col.reject("district_id", RuleForeignDistrict, rep.DistrictID)
	}

	res := col.result()
	g.observe("representative", res)
	return res
}

// ValidateJurisdiction checks a resolved identity. Fallback jurisdictions are
// held to the stricter fallback ruleset.
func (g *Gate) ValidateJurisdiction(j models.Jurisdiction, now time.Time) Result {
	rules := g.rules.Load()
	var col collector

	if j.ZipCode == "" {
		col.reject("zip_code", RuleRequiredField, "")
	}
	if strings.TrimSpace(j.State) == "" {
		col.reject("state", RuleRequiredField, "")
	}
	if strings.TrimSpace(j.PlaceName) == "" {
		col.reject("place_name", RuleRequiredField, "")
	} else {
		if rules.isGenericPlace(j.PlaceName) {
			col.reject("place_name", RuleGenericPlace, j.PlaceName)
		}
		if tok, ok := rules.placeholderToken(j.PlaceName); ok {
			col.reject("place_name", RulePlaceholderToken, tok)
		}
	}

	switch {
	case strings.TrimSpace(j.County) == "":
		col.warn("county", RuleMissingCounty, "")
	case rules.isGenericPlace(j.County):
		col.reject("county", RuleGenericPlace, j.County)
	case !rules.hasCountySuffix(j.State, j.County):
		col.reject("county", RuleCountySuffix, j.County)
	}
	if tok, ok := rules.placeholderToken(j.County); ok {
		col.reject("county", RulePlaceholderToken, tok)
	}

	if !sameLevels(j.ApplicableLevels, models.ApplicableLevelsFor(j.IncorporationStatus)) {
		col.reject("applicable_levels", RuleInconsistentLevels,
			fmt.Sprintf("%s for %s", joinLevels(j.ApplicableLevels), j.IncorporationStatus))
	}
	if j.Source == "" || j.ProviderID == "" {
		col.reject("source", RuleMissingProvenance, j.Source)
	}
	if !j.ResolvedAt.IsZero() && j.ResolvedAt.After(now.Add(time.Minute)) {
		col.reject("resolved_at", RuleMalformedValue, j.ResolvedAt.Format(time.RFC3339))
	}

	if j.IsFallback() {
		if j.Confidence < rules.source.Fallback.MinConfidence {
			col.reject("confidence", RuleFallbackLowConfidence, fmt.Sprintf("%.2f", j.Confidence))
		}
		if j.IncorporationStatus == models.StatusUnknown {
			col.reject("incorporation_status", RuleFallbackUnknownStatus, string(j.IncorporationStatus))
		}
		if strings.TrimSpace(j.County) == "" {
			col.reject("county", RuleFallbackMissingCounty, "")
		}
		name := strings.TrimSpace(j.PlaceName)
		if name != "" && (strings.EqualFold(name, strings.TrimSpace(j.County)) ||
			strings.EqualFold(name, strings.TrimSpace(j.State)) || len(name) <= 2) {
			col.reject("place_name", RuleFallbackGenericPlace, j.PlaceName)
		}
	}

	res := col.result()
	g.observe("jurisdiction", res)
	return res
}

// Report logs a rejection, counts it and forwards it for human review.
// Forwarding failures are logged and otherwise ignored.
func (g *Gate) Report(ctx context.Context, rej Rejection) {
	if rej.ID == "" {
		rej.ID = uuid.NewString()
	}
	if rej.RequestID == "" {
		rej.RequestID = requestcontext.RequestID(ctx)
	}
	if rej.RejectedAt.IsZero() {
		rej.RejectedAt = requestcontext.Now(ctx)
	}
	if rej.RulesVersion == "" {
		rej.RulesVersion = g.rules.Load().source.Version
	}
	g.logger.WarnContext(ctx, "quality gate rejected record",
		"kind", rej.Kind,
		"zip", rej.ZipCode,
		"level", rej.Level,
		"record_id", rej.RecordID,
		"violations", rej.Violations,
	)
	if err := g.publisher.Publish(ctx, rej); err != nil {
		g.metrics.IncrementReviewPublish("error")
		g.logger.ErrorContext(ctx, "failed to forward rejection for review", "record_id", rej.RecordID, "error", err)
		return
	}
	g.metrics.IncrementReviewPublish("ok")
}

func (g *Gate) checkRecord(rules *compiledRules, col *collector, rep models.Representative, now time.Time) {
	if strings.TrimSpace(rep.ID) == "" {
		col.reject("id", RuleRequiredField, "")
	}
	if strings.TrimSpace(rep.DistrictID) == "" {
		col.reject("district_id", RuleRequiredField, "")
	}
	if _, err := domain.ParseLevel(string(rep.Level)); err != nil {
		col.reject("level", RuleRequiredField, string(rep.Level))
	}
	if strings.TrimSpace(rep.Name) == "" {
		col.reject("name", RuleRequiredField, "")
	} else if rules.isPlaceholderName(rep.Name) {
		col.reject("name", RulePlaceholderName, rep.Name)
	}

	text := map[string]string{
		"name":                   rep.Name,
		"party":                  rep.Party,
		"contact.office_address": rep.Contact.OfficeAddress,
	}
	for i, committee := range rep.Committees {
		text[fmt.Sprintf("committees[%d]", i)] = committee
	}
	for _, field := range slices.Sorted(maps.Keys(text)) {
		if tok, ok := rules.placeholderToken(text[field]); ok {
			col.reject(field, RulePlaceholderToken, tok)
		}
	}

	if rep.Contact.Phone != "" {
		rules.checkPhone(col, "contact.phone", rep.Contact.Phone)
	}
	if rep.Contact.Email != "" {
		rules.checkEmail(col, "contact.email", rep.Contact.Email)
	}
	if rep.Contact.Website != "" {
		rules.checkWebsite(col, "contact.website", rep.Contact.Website)
	}

	if strings.TrimSpace(rep.Provenance.Source) == "" {
		col.reject("provenance.source", RuleMissingProvenance, "")
	} else if rep.Provenance.Confidence < rules.source.MinProvenanceConfidence {
		col.reject("provenance.confidence", RuleLowProvenance, fmt.Sprintf("%.2f", rep.Provenance.Confidence))
	}

	if rep.TermStart != nil && rep.TermEnd != nil && rep.TermEnd.Before(*rep.TermStart) {
		col.reject("term_end", RuleInvalidTerm, rep.TermEnd.Format("2006-01-02"))
	}
	if rep.TermEnd != nil && rep.TermEnd.Before(now) {
		col.reject("term_end", RuleTermEnded, rep.TermEnd.Format("2006-01-02"))
	}

	if limit, ok := rules.staleAfter[rep.Level]; ok {
		if rep.LastVerifiedAt.IsZero() || now.Sub(rep.LastVerifiedAt) > limit {
			observed := "never"
			if !rep.LastVerifiedAt.IsZero() {
				observed = rep.LastVerifiedAt.Format(time.RFC3339)
			}
			if rep.Contact.Phone == "" && rep.Contact.Email == "" && rep.Contact.Website == "" {
				col.reject("last_verified_at", RuleStaleMissingContact, observed)
			} else {
				col.warn("last_verified_at", RuleStale, observed)
			}
		}
	}
}

func (g *Gate) observe(kind string, res Result) {
	if res.Accepted {
		g.metrics.IncrementValidation(kind, "accepted")
	} else {
		g.metrics.IncrementValidation(kind, "rejected")
	}
	for _, v := range res.Violations {
		g.metrics.IncrementViolation(v.Rule)
	}
	for _, w := range res.Warnings {
		g.metrics.IncrementViolation(w.Rule)
	}
}

func inDistricts(assigned []models.DistrictAssignment, id string) bool {
	for _, a := range assigned {
		for _, candidate := range a.DistrictIDs() {
			if candidate == id {
				return true
			}
		}
	}
	return false
}

func sameLevels(a, b []domain.Level) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[domain.Level]bool, len(a))
	for _, l := range a {
		seen[l] = true
	}
	for _, l := range b {
		if !seen[l] {
			return false
		}
	}
	return len(seen) == len(b)
}

func joinLevels(levels []domain.Level) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = l.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
