package accuracy

import (
	"fmt"
	"sort"
)

// lowRelevanceThreshold marks a failed test whose best hit scored too low
// to have retrieved the right chunk.
const lowRelevanceThreshold = 0.7

// Diagnosis is the outcome of analyzing one suite report's failures.
type Diagnosis struct {
	Patterns       []FailurePattern `json:"patterns"`
	CriticalIssues []string         `json:"critical_issues,omitempty"`
	Suggestions    []Suggestion     `json:"suggestions,omitempty"`
}

// Analyze buckets a report's failed results into patterns and derives
// ranked optimization suggestions. tests maps test ID to its definition so
// entity scoping can be checked.
func Analyze(report *SuiteReport, tests map[string]Test) *Diagnosis {
	diag := &Diagnosis{}

	var lowRelevance []string
	var lowRelevanceSum float64
	var filterMismatch []string
	missingByField := make(map[string][]string)
	mismatchByField := make(map[string][]string)

	for _, result := range report.Results {
		if result.Passed {
			continue
		}

		if float64(result.TopScore) < lowRelevanceThreshold {
			lowRelevance = append(lowRelevance, result.TestID)
			lowRelevanceSum += float64(result.TopScore)
		}

		test, ok := tests[result.TestID]
		if ok && len(test.TargetEntity) > 0 && (result.Filter == nil || result.Filter.IsZero()) {
			filterMismatch = append(filterMismatch, result.TestID)
		}

		for _, d := range result.Discrepancies {
			switch d.Type {
			case DiscrepancyMissingField:
				missingByField[d.Field] = append(missingByField[d.Field], result.TestID)
			case DiscrepancyValue:
				mismatchByField[d.Field] = append(mismatchByField[d.Field], result.TestID)
			}
		}
	}

	if len(lowRelevance) > 0 {
		diag.Patterns = append(diag.Patterns, FailurePattern{
			Type:         "low_relevance",
			Occurrences:  len(lowRelevance),
			AverageScore: lowRelevanceSum / float64(len(lowRelevance)),
		})
		diag.Suggestions = append(diag.Suggestions, Suggestion{
			ActionType:           "embedding_improvement",
			Target:               report.SchemaSlug,
			Reason:               fmt.Sprintf("%d failed tests retrieved nothing above score %.1f", len(lowRelevance), lowRelevanceThreshold),
			Confidence:           0.8,
			EstimatedImprovement: 0.15,
			AffectedTests:        lowRelevance,
		})
	}

	if len(filterMismatch) > 0 {
		diag.Patterns = append(diag.Patterns, FailurePattern{
			Type:        "filter_mismatch",
			Occurrences: len(filterMismatch),
		})
		diag.Suggestions = append(diag.Suggestions, Suggestion{
			ActionType:           "filter_fix",
			Target:               report.SchemaSlug,
			Reason:               fmt.Sprintf("%d entity-scoped tests searched with no filter", len(filterMismatch)),
			Confidence:           0.9,
			EstimatedImprovement: 0.2,
			AffectedTests:        filterMismatch,
		})
	}

	for _, field := range sortedKeys(missingByField) {
		affected := missingByField[field]
		diag.Patterns = append(diag.Patterns, FailurePattern{
			Type:        "missing_field",
			Occurrences: len(affected),
			Field:       field,
		})
		if isCriticalField(field) {
			diag.CriticalIssues = append(diag.CriticalIssues,
				fmt.Sprintf("critical field %q missing from %d answers", field, len(affected)))
		}
		diag.Suggestions = append(diag.Suggestions, Suggestion{
			ActionType:           "schema_field_add",
			Target:               report.SchemaSlug,
			Field:                field,
			Reason:               fmt.Sprintf("field %q absent from %d answers", field, len(affected)),
			Confidence:           0.7,
			EstimatedImprovement: 0.1,
			AffectedTests:        affected,
		})
	}

	for _, field := range sortedKeys(mismatchByField) {
		affected := mismatchByField[field]
		diag.Patterns = append(diag.Patterns, FailurePattern{
			Type:        "value_mismatch",
			Occurrences: len(affected),
			Field:       field,
		})
		diag.Suggestions = append(diag.Suggestions, Suggestion{
			ActionType:           "alias_add",
			Target:               report.SchemaSlug,
			Field:                field,
			Reason:               fmt.Sprintf("field %q answered with wrong values in %d tests", field, len(affected)),
			Confidence:           0.6,
			EstimatedImprovement: 0.05,
			AffectedTests:        affected,
		})
	}

	// Highest expected payoff first.
	sort.SliceStable(diag.Suggestions, func(i, j int) bool {
		a := diag.Suggestions[i].Confidence * diag.Suggestions[i].EstimatedImprovement
		b := diag.Suggestions[j].Confidence * diag.Suggestions[j].EstimatedImprovement
		return a > b
	})

	return diag
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
