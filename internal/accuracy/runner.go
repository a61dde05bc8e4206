package accuracy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/surisearch/suri-search/internal/ask"
	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/logger"
)

// Executor runs one test query through the answer pipeline. In production
// this is the ask service; tests substitute fakes.
type Executor func(ctx context.Context, query string, target map[string]string) (*ask.Outcome, error)

// ExecutorRate caps test executions per second so suite runs do not starve
// live traffic of provider quota.
const ExecutorRate = 2

// RunOptions filters which tests a suite run executes.
type RunOptions struct {
	// Category restricts the run to tests of one category.
	Category string

	// Priority restricts the run to one priority level.
	Priority Priority
}

// Runner executes accuracy suites sequentially, in priority order, and
// appends every result to the execution history.
type Runner struct {
	storage  Storage
	executor Executor
	limiter  *rate.Limiter
	log      *logger.Logger
}

// NewRunner creates a suite runner.
func NewRunner(storage Storage, executor Executor, log *logger.Logger) *Runner {
	return &Runner{
		storage:  storage,
		executor: executor,
		limiter:  rate.NewLimiter(rate.Limit(ExecutorRate), 1),
		log:      log,
	}
}

// RunSuite executes every active test for the schema. A single failing or
// panicking test never aborts the remainder of the suite.
func (r *Runner) RunSuite(ctx context.Context, schemaSlug string, opts RunOptions) (*SuiteReport, error) {
	tests, err := r.storage.ListTests(ctx, schemaSlug)
	if err != nil {
		return nil, err
	}

	selected := make([]Test, 0, len(tests))
	for _, test := range tests {
		if !test.IsActive {
			continue
		}
		if opts.Category != "" && test.Category != opts.Category {
			continue
		}
		if opts.Priority != "" && test.Priority != opts.Priority {
			continue
		}
		selected = append(selected, test)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority.rank() < selected[j].Priority.rank()
	})

	report := &SuiteReport{
		SchemaSlug: schemaSlug,
		ExecutedAt: time.Now().UTC(),
		Results:    make([]Result, 0, len(selected)),
	}

	for i, test := range selected {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, apperrors.TimeoutError("accuracy suite")
		}

		result := r.runOne(ctx, test)
		result.Index = i

		report.TestsRun++
		if result.Passed {
			report.TestsPassed++
		} else {
			report.TestsFailed++
		}
		report.Results = append(report.Results, result)

		if err := r.storage.AppendResult(ctx, result); err != nil {
			r.log.WithError(err).Warn("recording accuracy result", "test", test.ID)
		}
	}

	if report.TestsRun > 0 {
		report.Accuracy = float64(report.TestsPassed) / float64(report.TestsRun)
	}

	r.log.Info("accuracy suite finished",
		"schema", schemaSlug,
		"run", report.TestsRun,
		"passed", report.TestsPassed,
		"failed", report.TestsFailed)
	return report, nil
}

// runOne executes a single test with panic and error containment.
func (r *Runner) runOne(ctx context.Context, test Test) (result Result) {
	result = Result{
		TestID:     test.ID,
		Priority:   test.Priority,
		ExecutedAt: time.Now().UTC(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("accuracy executor panic", "test", test.ID, "panic", rec)
			result = errorResult(test, fmt.Sprintf("panic: %v", rec))
		}
	}()

	outcome, err := r.executor(ctx, test.Query, test.TargetEntity)
	if err != nil {
		r.log.WithError(err).Warn("accuracy executor failed", "test", test.ID)
		return errorResult(test, err.Error())
	}

	discrepancies, ratio, err := compareValues(test, outcome.ExtractedValues)
	if err != nil {
		// An invalid expectation is a defect in the test itself.
		return errorResult(test, err.Error())
	}

	result.Passed = passes(discrepancies, ratio)
	result.Accuracy = ratio
	result.Discrepancies = discrepancies
	result.Partitions = outcome.Partitions
	result.Filter = outcome.Filter
	result.Timings = outcome.Timings
	if len(outcome.SearchResults) > 0 {
		result.TopScore = outcome.SearchResults[0].Score
	}
	return result
}

// errorResult is the synthetic failed result for a test whose execution
// broke before any comparison could run.
func errorResult(test Test, message string) Result {
	return Result{
		TestID:   test.ID,
		Passed:   false,
		Accuracy: 0,
		Discrepancies: []Discrepancy{{
			Field:    "_error",
			Actual:   message,
			Type:     DiscrepancyError,
			Severity: SeverityCritical,
		}},
		Priority:   test.Priority,
		ExecutedAt: time.Now().UTC(),
	}
}
