package types

import (
	"slices"
	"time"
)

// CompatibilityType is the verdict of a rule or of a whole check.
type CompatibilityType string

// Compatibility types, from most to least permissive.
const (
	CompatibilityFull    CompatibilityType = "full"
	CompatibilityPartial CompatibilityType = "partial"
	CompatibilityNone    CompatibilityType = "none"
)

// restrictiveness ranks verdicts; higher dominates.
var restrictiveness = map[CompatibilityType]int{
	CompatibilityFull:    1,
	CompatibilityPartial: 2,
	CompatibilityNone:    3,
}

// Valid reports whether t is full, partial or none.
func (t CompatibilityType) Valid() bool {
	return restrictiveness[t] > 0
}

// MostRestrictive returns whichever of a and b dominates. An empty value
// loses to anything.
func MostRestrictive(a, b CompatibilityType) CompatibilityType {
	if restrictiveness[b] > restrictiveness[a] {
		return b
	}
	return a
}

// CompatibilityRule relates a field of one category to a field of another
// through a condition over the bound values source and target.
type CompatibilityRule struct {
	RuleID            string            `json:"rule_id"`
	SourceCategoryID  string            `json:"source_category_id"`
	TargetCategoryID  string            `json:"target_category_id"`
	SourceField       string            `json:"source_field"`
	TargetField       string            `json:"target_field"`
	Condition         string            `json:"condition"`
	CompatibilityType CompatibilityType `json:"compatibility_type"`
	Message           string            `json:"message,omitempty"`
	Limitations       []string          `json:"limitations,omitempty"`
	Recommendations   []string          `json:"recommendations,omitempty"`
	// Stale is set when a migration removed a field the rule reads.
	Stale       bool      `json:"stale,omitempty"`
	StaleReason string    `json:"stale_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the rule shape. Field existence is checked against the
// schemas by the compatibility engine.
func (r *CompatibilityRule) Validate() error {
	if r.SourceCategoryID == "" || r.TargetCategoryID == "" {
		return Validationf(CodeInvalidRule, "rule must name source and target categories")
	}
	if !ValidFieldName(r.SourceField) || !ValidFieldName(r.TargetField) {
		return Validationf(CodeInvalidRule, "rule fields %q and %q must be valid field names", r.SourceField, r.TargetField)
	}
	if r.Condition == "" {
		return Validationf(CodeInvalidRule, "rule condition must not be empty")
	}
	if !r.CompatibilityType.Valid() {
		return Validationf(CodeInvalidRule, "unknown compatibility type %q", r.CompatibilityType)
	}
	return nil
}

// References reports whether the rule reads field of category.
func (r *CompatibilityRule) References(category, field string) bool {
	return (r.SourceCategoryID == category && r.SourceField == field) ||
		(r.TargetCategoryID == category && r.TargetField == field)
}

// Clone returns a deep copy of the rule.
func (r *CompatibilityRule) Clone() *CompatibilityRule {
	cp := *r
	cp.Limitations = slices.Clone(r.Limitations)
	cp.Recommendations = slices.Clone(r.Recommendations)
	return &cp
}

// Rule evaluation outcomes.
const (
	OutcomeEvaluated        = "evaluated"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeError            = "error"
)

// RuleEvaluation records what happened to one rule during a check.
type RuleEvaluation struct {
	RuleID   string `json:"rule_id"`
	Matched  bool   `json:"matched"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
	Reversed bool   `json:"reversed,omitempty"` // rule declared for the opposite direction
	Stale    bool   `json:"stale,omitempty"`
}

// CompatibilityResult is the verdict for one device pair.
type CompatibilityResult struct {
	SourceDeviceID    string            `json:"source_device_id"`
	TargetDeviceID    string            `json:"target_device_id"`
	CompatibilityType CompatibilityType `json:"compatibility_type"`
	Message           string            `json:"message"`
	Limitations       []string          `json:"limitations"`
	Recommendations   []string          `json:"recommendations"`
	EvaluatedRules    []RuleEvaluation  `json:"evaluated_rules"`
}
