package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

// statusText returns the lowercase status word used by report surfaces.
func statusText(status types.TestStatus) string {
	switch status {
	case types.StatusSuccess:
		return "pass"
	case types.StatusFailure:
		return "fail"
	case types.StatusSkipped:
		return "skip"
	case types.StatusError:
		return "error"
	case types.StatusExpectedFailure:
		return "xfail"
	case types.StatusUnexpectedSuccess:
		return "uxsuccess"
	default:
		return "unknown"
	}
}

// statusChar returns a single display glyph for tree-style output.
func statusChar(status types.TestStatus) string {
	switch status {
	case types.StatusSuccess:
		return "✓"
	case types.StatusFailure, types.StatusUnexpectedSuccess:
		return "✗"
	case types.StatusSkipped, types.StatusExpectedFailure:
		return "⊝"
	case types.StatusError:
		return "⚠"
	default:
		return "?"
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// seconds renders a duration as fractional seconds for XML and JSON
// attributes.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// runDirectory resolves and creates the per-run output directory all
// sinks write into.
func runDirectory(baseDir, runID string) (string, error) {
	dir := filepath.Join(baseDir, "testrun-"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return dir, nil
}

// totalDuration sums the wall time recorded on a set of logs. Sinks use
// it when no run-level duration is available at completion time.
func totalDuration(logs []*results.TestLog) time.Duration {
	var total time.Duration
	for _, l := range logs {
		total += l.Duration()
	}
	return total
}
