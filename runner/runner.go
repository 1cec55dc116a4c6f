package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/percolator-ci/percolator/registry"
	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/suite"
	"github.com/percolator-ci/percolator/types"
)

// MaxReasonableWorkers caps the worker counts we accept silently; higher
// values work but draw a warning.
const MaxReasonableWorkers = 32

// ErrInterrupted reports a run cut short by context cancellation before
// every batch completed.
var ErrInterrupted = errors.New("test run interrupted")

// TestRunner defines the interface for executing resolved test batches.
type TestRunner interface {
	RunAll(ctx context.Context) (*results.Aggregate, error)
	RunBatch(ctx context.Context, batch types.Batch) *results.Aggregate
}

// Config holds configuration for creating a new runner.
type Config struct {
	Registry   *registry.Registry
	Batches    []types.Batch
	Log        *slog.Logger
	TestConfig suite.Config

	// Worker counts for the three pool levels; zero means 1.
	ModuleWorkers int
	ClassWorkers  int
	TestWorkers   int

	UI ProgressIndicator
}

// runner struct implements the TestRunner interface.
type runner struct {
	registry *registry.Registry
	batches  []types.Batch
	log      *slog.Logger
	cfg      suite.Config

	moduleWorkers int
	classWorkers  int
	testWorkers   int

	ui     ProgressIndicator
	tracer oteltrace.Tracer
}

// NewTestRunner creates a new test runner instance.
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.ModuleWorkers < 0 || cfg.ClassWorkers < 0 || cfg.TestWorkers < 0 {
		return nil, fmt.Errorf("worker counts cannot be negative")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.UI == nil {
		cfg.UI = NewNoOpProgressIndicator()
	}

	moduleWorkers := max(cfg.ModuleWorkers, 1)
	classWorkers := max(cfg.ClassWorkers, 1)
	testWorkers := max(cfg.TestWorkers, 1)
	if moduleWorkers > MaxReasonableWorkers || classWorkers > MaxReasonableWorkers || testWorkers > MaxReasonableWorkers {
		cfg.Log.Warn("Very high worker count requested",
			"moduleWorkers", moduleWorkers, "classWorkers", classWorkers, "testWorkers", testWorkers,
			"recommendation", "Consider lower values to avoid resource exhaustion")
	}

	cfg.Log.Debug("NewTestRunner()", "batches", len(cfg.Batches),
		"moduleWorkers", moduleWorkers, "classWorkers", classWorkers, "testWorkers", testWorkers)

	return &runner{
		registry:      cfg.Registry,
		batches:       cfg.Batches,
		log:           cfg.Log,
		cfg:           cfg.TestConfig,
		moduleWorkers: moduleWorkers,
		classWorkers:  classWorkers,
		testWorkers:   testWorkers,
		ui:            cfg.UI,
		tracer:        otel.Tracer("test runner"),
	}, nil
}

// batchResult carries one finished batch back to the collector.
type batchResult struct {
	module string
	agg    *results.Aggregate
}

// RunAll executes every batch across the module worker pool and merges
// the per-batch aggregates into one master aggregate. Batches complete
// asynchronously; merge order follows completion, not submission.
func (r *runner) RunAll(ctx context.Context) (*results.Aggregate, error) {
	ctx, span := r.tracer.Start(ctx, "test run")
	defer span.End()

	master := results.NewAggregate()
	if len(r.batches) == 0 {
		r.log.Debug("No batches to execute")
		master.Finish()
		return master, nil
	}

	workers := min(r.moduleWorkers, len(r.batches))
	r.log.Info("Starting test execution", "batches", len(r.batches), "moduleWorkers", workers)

	// Conservative buffering regardless of batch count.
	bufferSize := min(workers*2, 100)
	workChan := make(chan types.Batch, bufferSize)
	resultChan := make(chan batchResult, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, workChan, resultChan)
	}

	go func() {
		defer close(workChan)
		for _, batch := range r.batches {
			select {
			case workChan <- batch:
			case <-ctx.Done():
				r.log.Debug("Context cancelled while feeding batches")
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		master.Merge(res.agg)
		r.ui.BatchComplete(res.module, res.agg)
	}
	master.Finish()

	if err := ctx.Err(); err != nil {
		r.log.Warn("Test execution interrupted", "completed", master.TestsRun, "cause", err)
		return master, fmt.Errorf("%w: %v", ErrInterrupted, err)
	}

	r.log.Info("Test execution completed",
		"duration", master.Duration(), "testsRun", master.TestsRun, "status", master.Status())
	return master, nil
}

// worker pulls batches until the channel drains or the context ends,
// sending one aggregate back per batch.
func (r *runner) worker(ctx context.Context, wg *sync.WaitGroup, workChan <-chan types.Batch, resultChan chan<- batchResult) {
	defer wg.Done()

	for {
		select {
		case batch, ok := <-workChan:
			if !ok {
				return
			}
			r.log.Debug("Worker processing batch", "module", batch.Module, "cases", len(batch.Cases))
			agg := r.RunBatch(ctx, batch)

			select {
			case resultChan <- batchResult{module: batch.Module, agg: agg}:
			case <-ctx.Done():
				r.log.Debug("Context cancelled while sending batch result", "module", batch.Module)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
