package runner

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

// ProgressIndicator interface for UI updates. Workers report from
// multiple goroutines; implementations must be safe for concurrent use.
type ProgressIndicator interface {
	StartBatch(module string, totalTests int)
	StartTest(name string)
	TestFinished(name string, status types.TestStatus)
	BatchComplete(module string, agg *results.Aggregate)
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartBatch(module string, totalTests int)            {}
func (n *noOpProgressIndicator) StartTest(name string)                               {}
func (n *noOpProgressIndicator) TestFinished(name string, status types.TestStatus)   {}
func (n *noOpProgressIndicator) BatchComplete(module string, agg *results.Aggregate) {}

// ConsoleProgress logs periodic progress summaries while tests run and
// prints each batch's per-test lines through a results.Stream as the
// batch completes.
type ConsoleProgress struct {
	logger *slog.Logger
	stream *results.Stream
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	mu     sync.RWMutex

	completedTests int
	totalTests     int
	batchStarts    map[string]time.Time

	// Track currently running tests
	runningTests map[string]time.Time // test name -> start time
}

// NewConsoleProgress creates a progress indicator that shows updates in
// the console. A nil stream disables per-test lines.
func NewConsoleProgress(logger *slog.Logger, stream *results.Stream, updateInterval time.Duration) *ConsoleProgress {
	if logger == nil {
		logger = slog.Default()
	}
	if updateInterval == 0 {
		updateInterval = 30 * time.Second
	}

	indicator := &ConsoleProgress{
		logger:       logger,
		stream:       stream,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		batchStarts:  make(map[string]time.Time),
		runningTests: make(map[string]time.Time),
	}

	go indicator.progressReporter()

	return indicator
}

func (c *ConsoleProgress) StartBatch(module string, totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTests += totalTests
	c.batchStarts[module] = time.Now()

	c.logger.Info("Starting module", "module", module, "tests", totalTests)
}

// StartTest tracks when a test starts running
func (c *ConsoleProgress) StartTest(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningTests[name] = time.Now()
	c.logger.Debug("Test started", "test", name, "runningTests", len(c.runningTests))
}

func (c *ConsoleProgress) TestFinished(name string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTests, name)
	c.completedTests++

	c.logger.Debug("Test completed", "test", name, "status", status,
		"completed", c.completedTests, "total", c.totalTests, "runningTests", len(c.runningTests))
}

func (c *ConsoleProgress) BatchComplete(module string, agg *results.Aggregate) {
	c.mu.Lock()
	started, ok := c.batchStarts[module]
	delete(c.batchStarts, module)
	c.mu.Unlock()

	if ok {
		c.logger.Info("Completed module", "module", module,
			"tests", agg.TestsRun, "duration", time.Since(started).Truncate(time.Millisecond))
	}
	if c.stream != nil {
		c.stream.PrintBatch(agg)
	}
}

// progressReporter runs in a goroutine and periodically reports progress
func (c *ConsoleProgress) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *ConsoleProgress) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}

	c.logger.Info("Progress update",
		"completed", c.completedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningTests),
		"longestRunning", formatRunningTests(c.runningTests, 3))
}

// Stop stops the periodic reporting goroutine.
func (c *ConsoleProgress) Stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

// Helper function that formats running tests into a display string
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}

	var running []runningTest
	now := time.Now()
	for name, startTime := range runningTests {
		running = append(running, runningTest{name: name, duration: now.Sub(startTime)})
	}

	// Longest running first.
	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var runningStrs []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", test.name, test.duration.Truncate(time.Second)))
	}
	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(runningStrs, ", ")
}

// BarProgress renders one progress bar across every scheduled test,
// with colored pass/fail/skip counts in the description.
type BarProgress struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	passed  int
	failed  int
	skipped int
}

// NewBarProgress creates a progress bar sized for the whole run.
func NewBarProgress(total int, out io.Writer) *BarProgress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(barDescription(0, 0, 0)),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(out),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &BarProgress{bar: bar}
}

func (b *BarProgress) StartBatch(module string, totalTests int) {}

func (b *BarProgress) StartTest(name string) {}

func (b *BarProgress) TestFinished(name string, status types.TestStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case status == types.StatusSuccess || status == types.StatusExpectedFailure:
		b.passed++
	case status.Counts():
		b.failed++
	default:
		b.skipped++
	}
	_ = b.bar.Add(1)
	b.bar.Describe(barDescription(b.passed, b.failed, b.skipped))
}

func (b *BarProgress) BatchComplete(module string, agg *results.Aggregate) {}

// Finish completes the progress bar
func (b *BarProgress) Finish() {
	_ = b.bar.Finish()
}

func barDescription(passed, failed, skipped int) string {
	return color.CyanString("Percolating: ") +
		color.GreenString("[ok: %d", passed) +
		" | " +
		color.RedString("failed: %d", failed) +
		" | " +
		color.YellowString("skipped: %d]", skipped)
}
