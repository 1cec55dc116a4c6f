package results

import (
	"log/slog"
	"time"

	"github.com/percolator-ci/percolator/types"
)

// LogRecord is one log record captured while a test ran, buffered so it
// can travel with the test's log and be replayed into the real sinks
// after merge.
type LogRecord struct {
	When    time.Time
	Level   slog.Level
	Message string
	Attrs   []slog.Attr
}

// TestLog is the append-only record of one test's outcome: status, timing,
// error text and any nested subtest outcomes. A TestLog doubles as the
// handle returned by Aggregate.StartTest; all later result calls for the
// test pass the same handle back.
type TestLog struct {
	Name        string
	Module      string
	Class       string
	Description string

	Status  types.TestStatus
	Started time.Time
	Stopped time.Time
	Err     string

	SubTests []*TestLog
	Records  []LogRecord
}

// NewTestLog creates an unstarted log with status not yet determined.
func NewTestLog(name string) *TestLog {
	return &TestLog{Name: name, Status: types.StatusUnset}
}

// Start stamps the log's start time.
func (l *TestLog) Start() *TestLog {
	l.Started = time.Now()
	return l
}

// Stop stamps the log's stop time.
func (l *TestLog) Stop() {
	l.Stopped = time.Now()
}

// Duration is stop minus start, defined only once both stamps are set.
func (l *TestLog) Duration() time.Duration {
	if l.Started.IsZero() || l.Stopped.IsZero() {
		return 0
	}
	return l.Stopped.Sub(l.Started)
}

// AddSubTest appends a nested outcome in completion order.
func (l *TestLog) AddSubTest(sub *TestLog) {
	l.SubTests = append(l.SubTests, sub)
}

// EffectiveStatus returns the log's own status, or a status derived from
// its subtests when none was recorded: an errored subtest makes the
// parent an error, then failed or unexpectedly successful subtests make
// it a failure, then skipped subtests make it skipped. With no subtests
// the status stays undetermined.
func (l *TestLog) EffectiveStatus() types.TestStatus {
	if l.Status.Determined() {
		return l.Status
	}
	status, _ := l.deriveFromSubTests()
	return status
}

// DerivedOutcome returns the status and error text the subtest
// derivation would assign, StatusUnset when no subtest determines one.
func (l *TestLog) DerivedOutcome() (types.TestStatus, string) {
	return l.deriveFromSubTests()
}

func (l *TestLog) deriveFromSubTests() (types.TestStatus, string) {
	for _, pass := range []struct {
		match map[types.TestStatus]bool
		as    types.TestStatus
	}{
		{map[types.TestStatus]bool{types.StatusError: true}, types.StatusError},
		{map[types.TestStatus]bool{types.StatusFailure: true, types.StatusUnexpectedSuccess: true}, types.StatusFailure},
		{map[types.TestStatus]bool{types.StatusSkipped: true}, types.StatusSkipped},
	} {
		for _, sub := range l.SubTests {
			if pass.match[sub.EffectiveStatus()] {
				return pass.as, sub.Err
			}
		}
	}
	return types.StatusUnset, ""
}
