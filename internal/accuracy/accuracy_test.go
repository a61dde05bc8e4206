package accuracy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/surisearch/suri-search/internal/ask"
	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/vector"
)

func TestNumericRangeMatcherBoundary(t *testing.T) {
	tol := 0.02
	matcher, err := matcherFor(Expectation{Type: "numeric_range", Value: "1000000", Tolerance: &tol}, 0)
	if err != nil {
		t.Fatalf("matcherFor: %v", err)
	}

	// 2.0% off is exactly on the boundary and counts as a match.
	if !matcher.Match("1,020,000") {
		t.Error("1,020,000 should match within 2% of 1,000,000")
	}
	if matcher.Match("1,021,000") {
		t.Error("1,021,000 should not match within 2% of 1,000,000")
	}
	if !matcher.Match("₩980,000") {
		t.Error("980,000 should match on the lower boundary")
	}
}

func TestNumericRangeMatcherZeroExpected(t *testing.T) {
	matcher, err := matcherFor(Expectation{Type: "numeric_range", Value: "0"}, 0.02)
	if err != nil {
		t.Fatalf("matcherFor: %v", err)
	}

	if !matcher.Match("0.01") {
		t.Error("absolute comparison should accept 0.01 against expected 0")
	}
	if matcher.Match("1") {
		t.Error("absolute comparison should reject 1 against expected 0")
	}
}

func TestMatcherForInvalidConfig(t *testing.T) {
	negative := -0.1
	tests := []struct {
		name string
		exp  Expectation
	}{
		{"negative tolerance", Expectation{Type: "numeric_range", Value: "100", Tolerance: &negative}},
		{"non numeric expected", Expectation{Type: "numeric_range", Value: "abc"}},
		{"bad regex", Expectation{Type: "regex", Value: "(["}},
		{"non boolean expected", Expectation{Type: "boolean_check", Value: "maybe"}},
		{"unknown type", Expectation{Type: "fuzzy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := matcherFor(tt.exp, 0.02); err == nil {
				t.Fatal("expected a comparison error")
			} else if appErr, ok := err.(*apperrors.AppError); !ok || appErr.Code != apperrors.CodeComparison {
				t.Errorf("error = %v, want comparison error", err)
			}
		})
	}
}

func TestBooleanMatcherMultilingual(t *testing.T) {
	matcher, err := matcherFor(Expectation{Type: "boolean_check", Value: "예"}, 0)
	if err != nil {
		t.Fatalf("matcherFor: %v", err)
	}

	for _, truthy := range []string{"true", "YES", "1", "네", "여", "있음"} {
		if !matcher.Match(truthy) {
			t.Errorf("%q should match truthy expectation", truthy)
		}
	}
	for _, falsy := range []string{"false", "아니오", "무", "없음", "x"} {
		if matcher.Match(falsy) {
			t.Errorf("%q should not match truthy expectation", falsy)
		}
	}
}

func TestCompareValuesSeverity(t *testing.T) {
	test := Test{
		ExpectedValues: map[string]Expectation{
			"commission": {Type: "numeric_range", Value: "1000000"},
			"department": {Type: "exact", Value: "영업1팀"},
		},
	}

	// Missing commission is critical; wrong department is medium.
	discrepancies, ratio, err := compareValues(test, map[string]string{"department": "영업2팀"})
	if err != nil {
		t.Fatalf("compareValues: %v", err)
	}
	if ratio != 0 {
		t.Errorf("ratio = %v, want 0", ratio)
	}

	severities := make(map[string]string)
	for _, d := range discrepancies {
		severities[d.Field] = d.Severity
	}
	if severities["commission"] != SeverityCritical {
		t.Errorf("missing commission severity = %q, want critical", severities["commission"])
	}
	if severities["department"] != SeverityMedium {
		t.Errorf("wrong department severity = %q, want medium", severities["department"])
	}
	if passes(discrepancies, ratio) {
		t.Error("critical discrepancy must fail the test")
	}
}

func TestPassesRatioThreshold(t *testing.T) {
	low := []Discrepancy{{Field: "note", Type: DiscrepancyValue, Severity: SeverityLow}}

	if passes(low, 0.79) {
		t.Error("ratio below 0.8 should fail")
	}
	if !passes(low, 0.8) {
		t.Error("ratio of exactly 0.8 with only low discrepancies should pass")
	}
}

func suiteTest(id string, priority Priority, expected map[string]Expectation) Test {
	return Test{
		ID:             id,
		SchemaSlug:     "인별명세",
		Query:          "수수료 얼마야?",
		TargetEntity:   map[string]string{"employee_id": "A11111"},
		ExpectedValues: expected,
		Priority:       priority,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestRunSuiteContainsExecutorFailure(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	expected := map[string]Expectation{"commission": {Type: "exact", Value: "1250000"}}
	for i := 1; i <= 5; i++ {
		if err := storage.PutTest(ctx, suiteTest(fmt.Sprintf("t%d", i), PriorityMedium, expected)); err != nil {
			t.Fatal(err)
		}
	}

	executor := func(_ context.Context, _ string, _ map[string]string) (*ask.Outcome, error) {
		return &ask.Outcome{ExtractedValues: map[string]string{"commission": "1250000"}}, nil
	}
	failing := func(ctx context.Context, query string, target map[string]string) (*ask.Outcome, error) {
		return nil, errors.New("provider unavailable")
	}

	calls := 0
	runner := NewRunner(storage, func(ctx context.Context, query string, target map[string]string) (*ask.Outcome, error) {
		calls++
		if calls == 2 {
			return failing(ctx, query, target)
		}
		return executor(ctx, query, target)
	}, logger.Default())

	report, err := runner.RunSuite(ctx, "인별명세", RunOptions{})
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}

	if report.TestsRun != 5 {
		t.Errorf("TestsRun = %d, want 5 (one failure must not abort the suite)", report.TestsRun)
	}
	if report.TestsFailed != 1 {
		t.Errorf("TestsFailed = %d, want 1", report.TestsFailed)
	}
	if report.TestsPassed != 4 {
		t.Errorf("TestsPassed = %d, want 4", report.TestsPassed)
	}

	var failed *Result
	for i := range report.Results {
		if !report.Results[i].Passed {
			failed = &report.Results[i]
		}
	}
	if failed == nil {
		t.Fatal("no failed result recorded")
	}
	if len(failed.Discrepancies) != 1 || failed.Discrepancies[0].Field != "_error" {
		t.Fatalf("Discrepancies = %+v, want single _error entry", failed.Discrepancies)
	}
	if failed.Discrepancies[0].Severity != SeverityCritical || failed.Discrepancies[0].Type != DiscrepancyError {
		t.Errorf("error discrepancy = %+v, want critical execution_error", failed.Discrepancies[0])
	}

	// Every execution lands in the append-only history.
	history, err := storage.ListResults(ctx, "t1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("history for t1 = %d entries, want 1", len(history))
	}
}

func TestRunSuitePriorityOrder(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	expected := map[string]Expectation{"commission": {Type: "exact", Value: "1"}}
	for _, tc := range []struct {
		id       string
		priority Priority
	}{
		{"low1", PriorityLow},
		{"crit1", PriorityCritical},
		{"med1", PriorityMedium},
		{"high1", PriorityHigh},
	} {
		if err := storage.PutTest(ctx, suiteTest(tc.id, tc.priority, expected)); err != nil {
			t.Fatal(err)
		}
	}

	var order []string
	runner := NewRunner(storage, func(_ context.Context, _ string, _ map[string]string) (*ask.Outcome, error) {
		return &ask.Outcome{ExtractedValues: map[string]string{"commission": "1"}}, nil
	}, logger.Default())
	report, err := runner.RunSuite(ctx, "인별명세", RunOptions{})
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	for _, r := range report.Results {
		order = append(order, r.TestID)
	}

	want := []string{"crit1", "high1", "med1", "low1"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestAnalyzeMissingCriticalField(t *testing.T) {
	report := &SuiteReport{SchemaSlug: "인별명세"}
	tests := make(map[string]Test)

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("t%d", i)
		tests[id] = suiteTest(id, PriorityHigh, nil)
		report.Results = append(report.Results, Result{
			TestID:   id,
			Passed:   false,
			TopScore: 0.85,
			Filter:   nonZeroFilter(),
			Discrepancies: []Discrepancy{{
				Field:    "commission",
				Type:     DiscrepancyMissingField,
				Severity: SeverityCritical,
			}},
		})
	}

	diag := Analyze(report, tests)

	var missing *FailurePattern
	for i := range diag.Patterns {
		if diag.Patterns[i].Type == "missing_field" && diag.Patterns[i].Field == "commission" {
			missing = &diag.Patterns[i]
		}
	}
	if missing == nil {
		t.Fatalf("patterns = %+v, want missing_field for commission", diag.Patterns)
	}
	if missing.Occurrences != 3 {
		t.Errorf("Occurrences = %d, want 3", missing.Occurrences)
	}

	if len(diag.CriticalIssues) == 0 {
		t.Fatal("missing commission should raise a critical issue")
	}

	if len(diag.Suggestions) == 0 || diag.Suggestions[0].ActionType != "schema_field_add" {
		t.Errorf("suggestions = %+v, want schema_field_add first", diag.Suggestions)
	}
}

func TestAnalyzeLowRelevanceAndFilterMismatch(t *testing.T) {
	report := &SuiteReport{SchemaSlug: "인별명세"}
	tests := map[string]Test{
		"t1": suiteTest("t1", PriorityHigh, nil),
		"t2": suiteTest("t2", PriorityHigh, nil),
	}
	report.Results = []Result{
		{TestID: "t1", Passed: false, TopScore: 0.4},
		{TestID: "t2", Passed: false, TopScore: 0.6},
	}

	diag := Analyze(report, tests)

	byType := make(map[string]FailurePattern)
	for _, p := range diag.Patterns {
		byType[p.Type] = p
	}

	lr, ok := byType["low_relevance"]
	if !ok || lr.Occurrences != 2 {
		t.Fatalf("low_relevance pattern = %+v", byType)
	}
	if lr.AverageScore < 0.49 || lr.AverageScore > 0.51 {
		t.Errorf("AverageScore = %v, want ~0.5", lr.AverageScore)
	}

	// Both tests are entity-scoped but searched unfiltered.
	fm, ok := byType["filter_mismatch"]
	if !ok || fm.Occurrences != 2 {
		t.Fatalf("filter_mismatch pattern = %+v", byType)
	}

	// filter_fix (0.9*0.2) outranks embedding_improvement (0.8*0.15).
	if len(diag.Suggestions) < 2 || diag.Suggestions[0].ActionType != "filter_fix" {
		t.Errorf("suggestions = %+v, want filter_fix ranked first", diag.Suggestions)
	}
}

func TestRunSuiteSkipsInactiveTests(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	expected := map[string]Expectation{"commission": {Type: "exact", Value: "1"}}
	if err := storage.PutTest(ctx, suiteTest("active", PriorityMedium, expected)); err != nil {
		t.Fatal(err)
	}
	inactive := suiteTest("inactive", PriorityMedium, expected)
	inactive.IsActive = false
	if err := storage.PutTest(ctx, inactive); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(storage, func(_ context.Context, _ string, _ map[string]string) (*ask.Outcome, error) {
		return &ask.Outcome{ExtractedValues: map[string]string{"commission": "1"}}, nil
	}, logger.Default())

	report, err := runner.RunSuite(ctx, "인별명세", RunOptions{})
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	if report.TestsRun != 1 {
		t.Errorf("TestsRun = %d, want 1 (inactive tests excluded)", report.TestsRun)
	}
}

func nonZeroFilter() *vector.Filter {
	return &vector.Filter{EmployeeID: "A11111"}
}
