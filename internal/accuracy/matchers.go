package accuracy

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
)

// Matcher compares an actual answer value against an expectation. The
// concrete types below form the closed set of comparison modes; matcherFor
// is the only constructor.
type Matcher interface {
	Match(actual string) bool
}

// matcherFor builds the matcher for an expectation. Invalid tolerance or
// regex configuration is a ComparisonError, rejected before execution.
func matcherFor(exp Expectation, defaultTolerance float64) (Matcher, error) {
	switch exp.Type {
	case "exact":
		return exactMatcher{expected: exp.Value}, nil

	case "numeric_range":
		tolerance := defaultTolerance
		if exp.Tolerance != nil {
			tolerance = *exp.Tolerance
		}
		if tolerance < 0 {
			return nil, apperrors.ComparisonError(fmt.Sprintf("negative tolerance %v", tolerance))
		}
		expected, ok := parseNumber(exp.Value)
		if !ok {
			return nil, apperrors.ComparisonError(fmt.Sprintf("expected value %q is not numeric", exp.Value))
		}
		return numericRangeMatcher{expected: expected, tolerance: tolerance}, nil

	case "contains":
		return containsMatcher{expected: exp.Value}, nil

	case "regex":
		re, err := regexp.Compile(exp.Value)
		if err != nil {
			return nil, apperrors.ComparisonError(fmt.Sprintf("invalid regex %q: %v", exp.Value, err))
		}
		return regexMatcher{re: re}, nil

	case "boolean_check":
		expected, ok := parseBool(exp.Value)
		if !ok {
			return nil, apperrors.ComparisonError(fmt.Sprintf("expected value %q is not boolean", exp.Value))
		}
		return booleanMatcher{expected: expected}, nil

	default:
		return nil, apperrors.ComparisonError(fmt.Sprintf("unknown matcher type %q", exp.Type))
	}
}

// exactMatcher passes on literal or trimmed-string equality.
type exactMatcher struct {
	expected string
}

func (m exactMatcher) Match(actual string) bool {
	return actual == m.expected || strings.TrimSpace(actual) == strings.TrimSpace(m.expected)
}

// numericRangeMatcher passes iff |actual-expected|/|expected| <= tolerance,
// boundary inclusive. When expected is 0 the comparison is absolute.
type numericRangeMatcher struct {
	expected  float64
	tolerance float64
}

func (m numericRangeMatcher) Match(actual string) bool {
	value, ok := parseNumber(actual)
	if !ok {
		return false
	}

	diff := math.Abs(value - m.expected)
	if m.expected == 0 {
		return diff <= m.tolerance
	}
	return diff/math.Abs(m.expected) <= m.tolerance
}

// containsMatcher passes on case-insensitive substring match.
type containsMatcher struct {
	expected string
}

func (m containsMatcher) Match(actual string) bool {
	return strings.Contains(strings.ToLower(actual), strings.ToLower(m.expected))
}

// regexMatcher passes when the compiled pattern matches.
type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) Match(actual string) bool {
	return m.re.MatchString(actual)
}

// booleanMatcher normalizes truthy tokens across languages before
// comparing.
type booleanMatcher struct {
	expected bool
}

func (m booleanMatcher) Match(actual string) bool {
	value, ok := parseBool(actual)
	return ok && value == m.expected
}

var truthyTokens = map[string]bool{
	"true": true, "yes": true, "y": true, "1": true, "o": true,
	"예": true, "네": true, "맞음": true, "여": true, "유": true, "있음": true,
	"false": false, "no": false, "n": false, "0": false, "x": false,
	"아니오": false, "아니요": false, "아님": false, "부": false, "무": false, "없음": false,
}

func parseBool(s string) (bool, bool) {
	v, ok := truthyTokens[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// parseNumber parses a number tolerating grouping commas and currency or
// percent decorations.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₩")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSuffix(s, "원")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
