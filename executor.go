package percolator

import (
	"context"
	"log/slog"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/runner"
)

// TestExecutor is responsible for running tests.
type TestExecutor interface {
	RunTests(ctx context.Context) (*results.Aggregate, error)
}

// DefaultTestExecutor implements the TestExecutor interface.
type DefaultTestExecutor struct {
	runner runner.TestRunner
	logger *slog.Logger
}

// NewDefaultTestExecutor creates a new DefaultTestExecutor.
func NewDefaultTestExecutor(runner runner.TestRunner, logger *slog.Logger) *DefaultTestExecutor {
	return &DefaultTestExecutor{
		runner: runner,
		logger: logger,
	}
}

// RunTests runs all tests and returns the merged aggregate.
func (e *DefaultTestExecutor) RunTests(ctx context.Context) (*results.Aggregate, error) {
	e.logger.Info("Running all tests...")
	agg, err := e.runner.RunAll(ctx)
	if err != nil {
		e.logger.Error("Error running tests", "error", err)
		return nil, err
	}
	e.logger.Info("Test run completed", "status", agg.Status(), "testsRun", agg.TestsRun)
	return agg, nil
}
