package percolator

import (
	"github.com/percolator-ci/percolator/metrics"
	"github.com/percolator-ci/percolator/results"
)

// MetricsReporter is responsible for reporting metrics from test results.
type MetricsReporter interface {
	ReportResults(runID string, agg *results.Aggregate)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the test results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(runID string, agg *results.Aggregate) {
	metrics.RecordRun(
		runID,
		string(agg.Status()),
		agg.TestsRun,
		agg.Successes,
		agg.Failures+agg.Errors+agg.UnexpectedSuccesses,
		agg.Duration(),
	)
	for _, l := range agg.Completed {
		metrics.RecordTest(l.Module, runID, l.Class, l.Name, l.EffectiveStatus(), l.Duration())
	}
}
