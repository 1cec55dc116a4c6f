package percolator

import (
	"fmt"

	"github.com/percolator-ci/percolator/results"
)

// failureSummary renders the short verdict carried by the exit error
// after a failing run.
func failureSummary(agg *results.Aggregate) string {
	failed := agg.Failures + agg.Errors + agg.UnexpectedSuccesses
	if agg.TestsRun == 0 {
		return fmt.Sprintf("%d errors before any test ran", failed)
	}
	return fmt.Sprintf("%d of %d tests failed", failed, agg.TestsRun)
}
