// Package percolator wires the registry, resolver, runner and reporting
// layers into a runnable service: resolve the requested tests once, then
// brew them through the worker pools on a one-shot or periodic schedule.
package percolator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/percolator-ci/percolator/builder"
	"github.com/percolator-ci/percolator/config"
	"github.com/percolator-ci/percolator/diag"
	"github.com/percolator-ci/percolator/exitcodes"
	"github.com/percolator-ci/percolator/logging"
	"github.com/percolator-ci/percolator/registry"
	"github.com/percolator-ci/percolator/reporting"
	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/runner"
	"github.com/percolator-ci/percolator/service"
	"github.com/percolator-ci/percolator/types"
)

// percolator drives resolved test batches through the runner on a
// one-shot or periodic schedule.
type percolator struct {
	ctx     context.Context
	config  *Config
	version string

	registry *registry.Registry
	resolver *builder.Resolver
	batches  []types.Batch
	runner   runner.TestRunner
	stream   *results.Stream
	ui       runner.ProgressIndicator

	executor  TestExecutor
	formatter ResultFormatter
	reporter  MetricsReporter
	scheduler TestScheduler
	service   *service.Service

	result *results.Aggregate

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, cfg *Config, version string, shutdownCallback func(error)) (*percolator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	cfg.Log.Debug("Creating percolator with config",
		"testConfig", cfg.TestConfigPath,
		"packages", cfg.Packages,
		"listFile", cfg.ListFile,
		"runInterval", cfg.RunInterval,
		"runOnce", cfg.RunOnce)

	reg := cfg.Registry
	if reg == nil {
		reg = registry.Default
	}

	testConfig, err := config.LoadTestConfig(cfg.TestConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load test config: %w", err)
	}

	// Resolution is fail-fast: a test list or package root that cannot be
	// resolved stops the service before anything runs.
	resolver := builder.NewResolver(reg, cfg.Filters, diag.NewReporter(cfg.Log, true), cfg.Log)

	var replay io.Reader
	if cfg.ListFile != "" {
		f, err := os.Open(cfg.ListFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open test list %s: %w", cfg.ListFile, err)
		}
		defer f.Close()
		replay = f
	}
	batches, err := resolver.Resolve(cfg.Packages, replay)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tests: %w", err)
	}

	stream, ui := buildProgress(cfg, countCases(batches))

	testRunner, err := runner.NewTestRunner(runner.Config{
		Registry:      reg,
		Batches:       batches,
		Log:           cfg.Log,
		TestConfig:    testConfig,
		ModuleWorkers: cfg.ModuleWorkers,
		ClassWorkers:  cfg.ClassWorkers,
		TestWorkers:   cfg.TestWorkers,
		UI:            ui,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}
	cfg.Log.Info("percolator.New: resolved test plan", "batches", len(batches), "cases", countCases(batches))

	return &percolator{
		ctx:              ctx,
		config:           cfg,
		version:          version,
		registry:         reg,
		resolver:         resolver,
		batches:          batches,
		runner:           testRunner,
		stream:           stream,
		ui:               ui,
		executor:         NewDefaultTestExecutor(testRunner, cfg.Log),
		formatter:        NewConsoleResultFormatter(cfg.Log, cfg.Verbosity, os.Stdout),
		reporter:         NewDefaultMetricsReporter(),
		scheduler:        NewDefaultTestScheduler(cfg.RunInterval, cfg.RunOnce, cfg.Log),
		service:          service.New(cfg.Log),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the resolved tests immediately and, in continuous mode,
// again at every interval until stopped.
func (p *percolator) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			p.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	p.ctx = ctx
	p.running.Store(true)

	// A dry run writes only the resolved list, in replay syntax, so the
	// output feeds straight back into --file.
	if p.config.DryRun {
		if err := p.resolver.WriteList(os.Stdout, p.batches); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to write test list: %w", err))
		}
		go func() {
			p.shutdownCallback(nil)
		}()
		return nil
	}

	printMug(os.Stdout)
	printConfiguration(os.Stdout, p.config)

	if p.config.Serve {
		p.service.Start(ctx, p.config.HealthzAddr, p.config.MetricsAddr)
	}

	if p.config.RunOnce {
		p.config.Log.Info("Starting percolator in run-once mode")
	} else {
		p.config.Log.Info("Starting percolator in continuous mode", "interval", p.config.RunInterval)
	}

	p.scheduler.RegisterCallback(p.runTests)
	if err := p.scheduler.Start(ctx); err != nil {
		// Errors out of a run are runtime errors; test failures only show
		// up in the aggregate.
		p.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if p.config.RunOnce {
		p.config.Log.Info("Tests completed, exiting (run-once mode)")

		// Check if any tests failed and return appropriate exit code
		if p.result != nil && !p.result.Successful() {
			p.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(failureSummary(p.result))
		}

		// Only need to call this when we're in run-once mode and all tests passed
		go func() {
			p.shutdownCallback(nil)
		}()
		return nil
	}

	p.config.Log.Debug("percolator started successfully")
	return nil
}

// runTests runs all tests once under the scheduler-minted run ID and
// processes the results.
func (p *percolator) runTests(runID string) error {
	fileLogger, err := logging.NewFileLogger(p.config.LogDir, runID, p.resultSinks()...)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
	}

	agg, err := p.executor.RunTests(p.ctx)
	if err != nil {
		// This is a runtime error (not a test failure)
		return NewRuntimeError(err)
	}
	p.result = agg

	// Records captured outside any single test, from class and module
	// hooks, surface in the engine log once the merge is final.
	logging.Replay(p.config.Log.Handler(), agg.Records)

	// Deliver every completed log to the per-run files and result sinks.
	for _, l := range agg.Completed {
		if err := fileLogger.LogTestResult(l, runID); err != nil {
			p.config.Log.Error("Failed to persist test log", "test", l.Name, "error", err)
		}
	}
	if err := fileLogger.Complete(runID); err != nil {
		p.config.Log.Error("Failed to finalize result sinks", "run_id", runID, "error", err)
	}

	p.finishProgress()
	if err := p.formatter.FormatResults(agg, runID, fileLogger.LogDir()); err != nil {
		p.config.Log.Error("Failed to render results", "error", err)
	}
	p.reporter.ReportResults(runID, agg)

	p.config.Log.Info("Test run completed", "run_id", runID, "status", agg.Status())
	return nil
}

// resultSinks builds the per-run sink set: the text summary always, a
// replay of each test's captured records into the engine log, plus the
// machine-readable report selected by --result.
func (p *percolator) resultSinks() []logging.ResultSink {
	sinks := []logging.ResultSink{
		reporting.NewTextSummarySink(p.config.LogDir, p.config.Verbosity >= results.VerbosityLines),
		&logging.CaptureSink{Handler: p.config.Log.Handler()},
	}
	switch p.config.ResultFormat {
	case "json":
		sinks = append(sinks, reporting.NewJSONSink(p.config.ResultDir))
	case "xml":
		sinks = append(sinks, reporting.NewXMLSink(p.config.ResultDir))
	case "subunit":
		sinks = append(sinks, reporting.NewSubunitSink(p.config.ResultDir))
	}
	return sinks
}

// finishProgress terminates the live rendering of a finished run so the
// report output starts on a fresh line.
func (p *percolator) finishProgress() {
	switch ui := p.ui.(type) {
	case *runner.BarProgress:
		ui.Finish()
	case *runner.ConsoleProgress:
		if p.stream != nil {
			p.stream.Finish()
		}
	}
}

// Stop stops the percolator service.
func (p *percolator) Stop(ctx context.Context) error {
	p.config.Log.Info("Stopping percolator")

	// Check if we're already stopped
	if !p.running.Load() {
		p.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new test runs
	p.running.Store(false)

	if err := p.scheduler.Stop(); err != nil {
		p.config.Log.Error("Failed to stop scheduler", "error", err)
	}
	if ui, ok := p.ui.(*runner.ConsoleProgress); ok {
		ui.Stop()
	}
	// The sidecar servers only ran if Start got past the dry-run branch.
	if p.config.Serve && !p.config.DryRun {
		p.service.Shutdown()
	}

	p.config.Log.Info("percolator stopped successfully")
	return nil
}

// Stopped returns true if the percolator service is stopped.
func (p *percolator) Stopped() bool {
	if !p.running.Load() {
		return true
	}
	// In continuous mode the scheduler carries the effective state: a
	// cancelled context stops it without passing through Stop.
	return !p.config.RunOnce && p.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (p *percolator) WaitForShutdown(ctx context.Context) error {
	return p.scheduler.WaitForShutdown(ctx)
}

// Result returns the aggregate of the most recent completed run.
func (p *percolator) Result() *results.Aggregate {
	return p.result
}

// buildProgress picks the live renderer: a progress bar for quiet
// one-shot runs, otherwise batch-grouped stream lines with periodic
// progress logging.
func buildProgress(cfg *Config, totalCases int) (*results.Stream, runner.ProgressIndicator) {
	if cfg.Verbosity <= results.VerbosityDots {
		if cfg.RunOnce {
			return nil, runner.NewBarProgress(totalCases, os.Stderr)
		}
		return nil, runner.NewConsoleProgress(cfg.Log, nil, 0)
	}
	stream := results.NewStream(os.Stderr, cfg.Verbosity)
	return stream, runner.NewConsoleProgress(cfg.Log, stream, 0)
}

func countCases(batches []types.Batch) int {
	total := 0
	for _, b := range batches {
		total += len(b.Cases)
	}
	return total
}
