package results

import (
	"fmt"
	"io"
	"strings"

	"github.com/percolator-ci/percolator/types"
)

const (
	separatorHeavy = "======================================================================"
	separatorLight = "----------------------------------------------------------------------"
)

// Console renders a completed aggregate as the classic text report:
// detail blocks for every error and failure, then a one-line summary.
type Console struct {
	Out       io.Writer
	Verbosity int
}

// NewConsole creates a renderer at the given verbosity (1 to 3).
func NewConsole(out io.Writer, verbosity int) *Console {
	if verbosity < 1 {
		verbosity = 1
	}
	return &Console{Out: out, Verbosity: verbosity}
}

// PrintErrorLists writes one block per errored or failed log, errors
// first, in completion order.
func (c *Console) PrintErrorLists(agg *Aggregate) {
	c.printErrorList(statusWord(types.StatusError), agg, func(s types.TestStatus) bool {
		return s == types.StatusError
	})
	c.printErrorList(statusWord(types.StatusFailure), agg, func(s types.TestStatus) bool {
		return s == types.StatusFailure || s == types.StatusUnexpectedSuccess
	})
}

func (c *Console) printErrorList(flavour string, agg *Aggregate, match func(types.TestStatus) bool) {
	for _, l := range agg.Completed {
		if !match(l.EffectiveStatus()) {
			continue
		}
		fmt.Fprintln(c.Out, separatorHeavy)
		fmt.Fprintf(c.Out, "%s: %s\n", flavour, l.Name)
		if c.Verbosity >= 3 && l.Description != "" {
			fmt.Fprintln(c.Out, l.Description)
		}
		fmt.Fprintln(c.Out, separatorLight)
		if l.Err != "" {
			fmt.Fprintln(c.Out, strings.TrimRight(l.Err, "\n"))
		}
		c.printSubTestErrors(l, 1)
	}
}

func (c *Console) printSubTestErrors(l *TestLog, depth int) {
	for _, sub := range l.SubTests {
		status := sub.EffectiveStatus()
		if status != types.StatusError && status != types.StatusFailure && status != types.StatusUnexpectedSuccess {
			continue
		}
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(c.Out, "%s[%s] %s\n", indent, status, sub.Name)
		if sub.Err != "" {
			fmt.Fprintf(c.Out, "%s%s\n", indent, strings.TrimRight(sub.Err, "\n"))
		}
		c.printSubTestErrors(sub, depth+1)
	}
}

// PrintSummary writes the final "Ran N tests" line and the OK or FAILED
// verdict with non-zero counters broken out.
func (c *Console) PrintSummary(agg *Aggregate) {
	fmt.Fprintln(c.Out, separatorLight)
	fmt.Fprintf(c.Out, "Ran %d test%s in %.3fs\n\n", agg.TestsRun, plural(agg.TestsRun), agg.Duration().Seconds())

	details := summaryDetails(agg)
	if agg.Successful() {
		if len(details) > 0 {
			fmt.Fprintf(c.Out, "OK (%s)\n", strings.Join(details, ", "))
		} else {
			fmt.Fprintln(c.Out, "OK")
		}
		return
	}
	fmt.Fprintf(c.Out, "FAILED (%s)\n", strings.Join(details, ", "))
}

func summaryDetails(agg *Aggregate) []string {
	var details []string
	add := func(label string, n int) {
		if n > 0 {
			details = append(details, fmt.Sprintf("%s=%d", label, n))
		}
	}
	add("failures", agg.Failures)
	add("errors", agg.Errors-agg.NonTestErrors)
	add("non-test errors", agg.NonTestErrors)
	add("skipped", agg.Skipped)
	add("module skips", agg.ModuleSkips)
	add("expected failures", agg.ExpectedFailures)
	add("unexpected successes", agg.UnexpectedSuccesses)
	return details
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
