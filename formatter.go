package percolator

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/percolator-ci/percolator/reporting"
	"github.com/percolator-ci/percolator/results"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(agg *results.Aggregate, runID string, logDir string) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger    *slog.Logger
	verbosity int
	out       io.Writer
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger *slog.Logger, verbosity int, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		logger:    logger,
		verbosity: verbosity,
		out:       out,
	}
}

// FormatResults formats and displays the test results: the classic error
// blocks and verdict line, the colored summary table, and a pointer to
// the detailed per-test logs.
func (f *ConsoleResultFormatter) FormatResults(agg *results.Aggregate, runID string, logDir string) error {
	f.logger.Info("Printing results...")

	console := results.NewConsole(f.out, f.verbosity)
	console.PrintErrorLists(agg)
	console.PrintSummary(agg)

	tbl := reporting.NewTableReporter(
		fmt.Sprintf("Percolator Test Results (%s)", formatDuration(agg.Duration())),
		f.verbosity >= results.VerbosityLines,
	)
	data := reporting.NewReportBuilder().WithSubTests(true).BuildFromAggregate(agg, runID)
	fmt.Fprint(f.out, tbl.Generate(data))

	fmt.Fprintf(f.out, "%s\nDetailed logs: %s\n%s\n", strings.Repeat("=", 70), logDir, strings.Repeat("-", 70))

	if !agg.Successful() {
		printBrewFailed(f.out)
	}
	return nil
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
