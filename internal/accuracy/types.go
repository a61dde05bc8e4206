// Package accuracy executes labeled question suites through the ask
// pipeline, compares produced answers to expected values, diagnoses
// failure patterns and proposes optimizations.
package accuracy

import (
	"time"

	"github.com/surisearch/suri-search/internal/retrieval"
	"github.com/surisearch/suri-search/internal/vector"
)

// Priority orders tests within a suite.
type Priority string

// Test priorities, highest first.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// rank returns the sort rank, lower is more urgent.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// DefaultValueTolerance is the relative tolerance for numeric comparisons
// unless a field overrides it.
const DefaultValueTolerance = 0.02

// Expectation is one expected field value with its comparison mode.
type Expectation struct {
	// Type selects the matcher: exact, numeric_range, contains, regex,
	// boolean_check.
	Type string `json:"type"`

	Value string `json:"value"`

	// Tolerance overrides the test's value tolerance (numeric_range only).
	Tolerance *float64 `json:"tolerance,omitempty"`
}

// Test is one labeled accuracy test. Immutable once created except the
// IsActive toggle.
type Test struct {
	ID         string `json:"id"`
	SchemaSlug string `json:"schema_slug"`
	Query      string `json:"query"`

	// TargetEntity carries keyed context (employee_id, period).
	TargetEntity map[string]string `json:"target_entity,omitempty"`

	ExpectedValues map[string]Expectation `json:"expected_values"`

	// ValueTolerance is the default numeric tolerance for this test.
	ValueTolerance float64 `json:"value_tolerance,omitempty"`

	Priority Priority `json:"priority"`
	Category string   `json:"category,omitempty"`
	IsActive bool     `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// Discrepancy types.
const (
	DiscrepancyMissingField = "missing_field"
	DiscrepancyValue        = "value_mismatch"
	DiscrepancyError        = "execution_error"
)

// Discrepancy severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Discrepancy is one field-level mismatch.
type Discrepancy struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
}

// Result is one test execution. Append-only history, never mutated.
type Result struct {
	TestID   string  `json:"test_id"`
	Passed   bool    `json:"passed"`
	Accuracy float64 `json:"accuracy"`

	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`

	// Retrieval diagnostics.
	TopScore   float32           `json:"top_score"`
	Partitions []string          `json:"partitions,omitempty"`
	Filter     *vector.Filter    `json:"filter,omitempty"`
	Timings    retrieval.Timings `json:"timings"`

	// Priority and Index reconstruct report ordering independent of
	// completion order.
	Priority Priority `json:"priority"`
	Index    int      `json:"index"`

	ExecutedAt time.Time `json:"executed_at"`
}

// SuiteReport summarizes one suite run.
type SuiteReport struct {
	SchemaSlug  string    `json:"schema_slug"`
	TestsRun    int       `json:"tests_run"`
	TestsPassed int       `json:"tests_passed"`
	TestsFailed int       `json:"tests_failed"`
	Accuracy    float64   `json:"accuracy"`
	Results     []Result  `json:"results"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// FailurePattern buckets failed results.
type FailurePattern struct {
	// Type is low_relevance, filter_mismatch, missing_field or
	// value_mismatch.
	Type string `json:"type"`

	Occurrences int `json:"occurrences"`

	// Field is set for per-field pattern types.
	Field string `json:"field,omitempty"`

	// AverageScore is a running average of top scores (low_relevance).
	AverageScore float64 `json:"average_score,omitempty"`
}

// Suggestion is one ranked optimization proposal.
type Suggestion struct {
	// ActionType is embedding_improvement, filter_fix, schema_field_add
	// or alias_add.
	ActionType string `json:"action_type"`

	// Target is the schema slug or field the action applies to.
	Target string `json:"target"`

	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`

	Confidence           float64 `json:"confidence"`
	EstimatedImprovement float64 `json:"estimated_improvement"`

	AffectedTests []string `json:"affected_tests,omitempty"`
}

// Action is an immutable audit record of one optimization attempt.
type Action struct {
	ID         string `json:"id"`
	ActionType string `json:"action_type"`
	Target     string `json:"target"`
	Field      string `json:"field,omitempty"`

	// Change is the applied payload (alias, anchor phrases, field spec).
	Change map[string]string `json:"change,omitempty"`

	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	Affected   []string `json:"affected_tests,omitempty"`

	Applied bool   `json:"applied"`
	Success bool   `json:"success"`
	DryRun  bool   `json:"dry_run,omitempty"`
	Error   string `json:"error,omitempty"`

	ExecutedAt time.Time `json:"executed_at"`
}
