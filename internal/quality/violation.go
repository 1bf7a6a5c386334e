package quality

import "fmt"

// Severity decides whether a violation blocks a record.
type Severity string

const (
	SeverityReject Severity = "reject"
	SeverityWarn   Severity = "warn"
)

// Rule identifiers, "<family>: <rule>".
const (
	RulePlaceholderName    = "forbidden-value: placeholder-name"
	RulePlaceholderToken   = "forbidden-value: placeholder-token"
	RulePlaceholderPhone   = "forbidden-value: placeholder-phone"
	RulePlaceholderEmail   = "forbidden-value: placeholder-email"
	RulePlaceholderWebsite = "forbidden-value: placeholder-website"
	RuleGenericPlace       = "forbidden-value: generic-place"
	RuleCountySuffix       = "forbidden-value: county-suffix"

	RuleInconsistentLevel  = "consistency: inconsistent-level"
	RuleInconsistentLevels = "consistency: inconsistent-levels"
	RuleForeignDistrict    = "consistency: foreign-district"
	RuleRequiredField      = "consistency: required-field"
	RuleMalformedValue     = "consistency: malformed-value"
	RuleInvalidTerm        = "consistency: invalid-term"
	RuleMissingProvenance  = "consistency: missing-provenance"
	RuleLowProvenance      = "consistency: low-provenance-confidence"
	RuleMissingCounty      = "consistency: missing-county"

	RuleStale               = "freshness: stale"
	RuleStaleMissingContact = "freshness: stale-missing-contact"
	RuleTermEnded           = "freshness: term-ended"

	RuleFallbackLowConfidence = "fallback: low-confidence"
	RuleFallbackUnknownStatus = "fallback: unknown-status"
	RuleFallbackMissingCounty = "fallback: missing-county"
	RuleFallbackGenericPlace  = "fallback: generic-place"
)

// Violation is one failed rule. It lives only for the duration of a
// validation call and is never persisted, only logged or forwarded.
type Violation struct {
	Field    string   `json:"field"`
	Rule     string   `json:"rule"`
	Observed string   `json:"observed"`
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s (%s=%q)", v.Rule, v.Field, v.Observed)
}

// Result is the gate's verdict on one record.
type Result struct {
	Accepted   bool        `json:"accepted"`
	Violations []Violation `json:"violations,omitempty"`
	Warnings   []Violation `json:"warnings,omitempty"`
}

// HasRule reports whether a rejecting violation of rule was recorded.
func (r Result) HasRule(rule string) bool {
	for _, v := range r.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// Rules lists the rejecting rules in order of detection.
func (r Result) Rules() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Rule)
	}
	return out
}

// WarningStrings renders warnings for transport.
func (r Result) WarningStrings() []string {
	if len(r.Warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.String())
	}
	return out
}

type collector struct {
	violations []Violation
	warnings   []Violation
}

func (c *collector) reject(field, rule, observed string) {
	c.violations = append(c.violations, Violation{Field: field, Rule: rule, Observed: observed, Severity: SeverityReject})
}

func (c *collector) warn(field, rule, observed string) {
	c.warnings = append(c.warnings, Violation{Field: field, Rule: rule, Observed: observed, Severity: SeverityWarn})
}

func (c *collector) result() Result {
	return Result{
		Accepted:   len(c.violations) == 0,
		Violations: c.violations,
		Warnings:   c.warnings,
	}
}
