package accuracy

import "strings"

// criticalFieldKeywords flags fields whose failures hurt most: money the
// caller is owed or charged.
var criticalFieldKeywords = []string{
	"commission", "income", "수수료", "지급", "소득", "환수",
}

func isCriticalField(field string) bool {
	lower := strings.ToLower(field)
	for _, kw := range criticalFieldKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// passThreshold is the minimum per-field match ratio for a pass.
const passThreshold = 0.8

// compareValues checks every expected field against the extracted values
// and returns the discrepancies plus the match ratio.
func compareValues(test Test, extracted map[string]string) ([]Discrepancy, float64, error) {
	tolerance := test.ValueTolerance
	if tolerance == 0 {
		tolerance = DefaultValueTolerance
	}

	total := len(test.ExpectedValues)
	if total == 0 {
		return nil, 1.0, nil
	}

	var discrepancies []Discrepancy
	matched := 0

	for field, exp := range test.ExpectedValues {
		matcher, err := matcherFor(exp, tolerance)
		if err != nil {
			return nil, 0, err
		}

		actual, ok := extracted[field]
		if !ok {
			severity := SeverityLow
			if isCriticalField(field) {
				severity = SeverityCritical
			}
			discrepancies = append(discrepancies, Discrepancy{
				Field:    field,
				Expected: exp.Value,
				Type:     DiscrepancyMissingField,
				Severity: severity,
			})
			continue
		}

		if !matcher.Match(actual) {
			severity := SeverityMedium
			if isCriticalField(field) {
				severity = SeverityHigh
			}
			discrepancies = append(discrepancies, Discrepancy{
				Field:    field,
				Expected: exp.Value,
				Actual:   actual,
				Type:     DiscrepancyValue,
				Severity: severity,
			})
			continue
		}

		matched++
	}

	return discrepancies, float64(matched) / float64(total), nil
}

// passes reports whether a result passes: zero critical or high
// discrepancies and match ratio at or above the threshold.
func passes(discrepancies []Discrepancy, ratio float64) bool {
	for _, d := range discrepancies {
		if d.Severity == SeverityCritical || d.Severity == SeverityHigh {
			return false
		}
	}
	return ratio >= passThreshold
}
