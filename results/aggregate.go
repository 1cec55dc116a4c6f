package results

import (
	"sort"
	"sync"
	"time"

	"github.com/percolator-ci/percolator/types"
)

// Aggregate accumulates counters and test logs for one execution scope: a
// single test, a worker's batch, or the whole run. Every scope builds its
// own Aggregate and transfers it wholesale; Merge happens only in the
// consuming goroutine, so individual instances are never shared between
// producers.
type Aggregate struct {
	mu sync.Mutex

	TestsRun            int
	Successes           int
	Failures            int
	Errors              int
	Skipped             int
	ExpectedFailures    int
	UnexpectedSuccesses int
	// NonTestErrors sub-classifies Errors: setup and teardown breakage
	// recorded against a class or module rather than a test.
	NonTestErrors int
	ModuleSkips   int

	Completed []*TestLog
	Records   []LogRecord

	inflight map[*TestLog]struct{}

	Started time.Time
	Stopped time.Time
}

// NewAggregate creates an empty aggregate stamped with the current time.
func NewAggregate() *Aggregate {
	return &Aggregate{
		inflight: make(map[*TestLog]struct{}),
		Started:  time.Now(),
	}
}

// StartTest opens a log for one test and returns it as the handle for all
// subsequent result calls on that test.
func (a *Aggregate) StartTest(name, description string) *TestLog {
	l := NewTestLog(name).Start()
	l.Description = description

	a.mu.Lock()
	defer a.mu.Unlock()
	a.TestsRun++
	a.inflight[l] = struct{}{}
	return l
}

// AddSuccess records a clean pass for the given handle.
func (a *Aggregate) AddSuccess(l *TestLog) {
	a.complete(l, types.StatusSuccess, "")
	a.mu.Lock()
	a.Successes++
	a.mu.Unlock()
}

// AddFailure records an assertion failure.
func (a *Aggregate) AddFailure(l *TestLog, err string) {
	a.complete(l, types.StatusFailure, err)
	a.mu.Lock()
	a.Failures++
	a.mu.Unlock()
}

// AddError records an unexpected error (panic, broken hook, bad binding).
func (a *Aggregate) AddError(l *TestLog, err string) {
	a.complete(l, types.StatusError, err)
	a.mu.Lock()
	a.Errors++
	a.mu.Unlock()
}

// AddSkip records a skipped test.
func (a *Aggregate) AddSkip(l *TestLog, reason string) {
	a.complete(l, types.StatusSkipped, reason)
	a.mu.Lock()
	a.Skipped++
	a.mu.Unlock()
}

// AddExpectedFailure records a failure the test was declared to produce.
func (a *Aggregate) AddExpectedFailure(l *TestLog, err string) {
	a.complete(l, types.StatusExpectedFailure, err)
	a.mu.Lock()
	a.ExpectedFailures++
	a.mu.Unlock()
}

// AddUnexpectedSuccess records a pass from a test declared to fail.
func (a *Aggregate) AddUnexpectedSuccess(l *TestLog) {
	a.complete(l, types.StatusUnexpectedSuccess, "")
	a.mu.Lock()
	a.UnexpectedSuccesses++
	a.mu.Unlock()
}

// FinishTest completes a handle whose status is already set, or derives
// one from its subtests, and routes it to the matching counter.
func (a *Aggregate) FinishTest(l *TestLog) {
	status := l.Status
	err := l.Err
	if !status.Determined() {
		status, err = l.deriveFromSubTests()
	}
	switch status {
	case types.StatusError:
		a.AddError(l, err)
	case types.StatusFailure:
		a.AddFailure(l, err)
	case types.StatusUnexpectedSuccess:
		a.AddUnexpectedSuccess(l)
	case types.StatusExpectedFailure:
		a.AddExpectedFailure(l, err)
	case types.StatusSkipped:
		a.AddSkip(l, err)
	default:
		a.AddSuccess(l)
	}
}

// AddNonTestError records breakage scoped to a class or module instead of
// a test: one completed error log that never passed through StartTest.
// Non-test errors count as errors for the success predicate and are
// sub-classified by the NonTestErrors counter.
func (a *Aggregate) AddNonTestError(scope string, err string) *TestLog {
	l := NewTestLog(scope).Start()
	l.Status = types.StatusError
	l.Err = err
	l.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Errors++
	a.NonTestErrors++
	a.Completed = append(a.Completed, l)
	return l
}

// AddModuleSkip records a whole class (or module) skipped during setup:
// one module-level entry, zero per-test entries.
func (a *Aggregate) AddModuleSkip(scope string, reason string) *TestLog {
	l := NewTestLog(scope).Start()
	l.Status = types.StatusSkipped
	l.Err = reason
	l.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.ModuleSkips++
	a.Completed = append(a.Completed, l)
	return l
}

// AddRecords appends log records captured outside any single test.
func (a *Aggregate) AddRecords(records []LogRecord) {
	if len(records) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Records = append(a.Records, records...)
}

func (a *Aggregate) complete(l *TestLog, status types.TestStatus, err string) {
	l.Status = status
	l.Err = err
	if l.Stopped.IsZero() {
		l.Stop()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inflight, l)
	a.Completed = append(a.Completed, l)
}

// Merge folds another aggregate into this one: counters add, completed
// logs concatenate, in-flight handles union, captured records append.
// Merging is commutative and associative as long as the two sides saw
// disjoint tests, which holds because each test runs in exactly one
// worker.
func (a *Aggregate) Merge(other *Aggregate) {
	if other == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.TestsRun += other.TestsRun
	a.Successes += other.Successes
	a.Failures += other.Failures
	a.Errors += other.Errors
	a.Skipped += other.Skipped
	a.ExpectedFailures += other.ExpectedFailures
	a.UnexpectedSuccesses += other.UnexpectedSuccesses
	a.NonTestErrors += other.NonTestErrors
	a.ModuleSkips += other.ModuleSkips

	a.Completed = append(a.Completed, other.Completed...)
	a.Records = append(a.Records, other.Records...)
	for l := range other.inflight {
		a.inflight[l] = struct{}{}
	}

	if !other.Started.IsZero() && (a.Started.IsZero() || other.Started.Before(a.Started)) {
		a.Started = other.Started
	}
	if other.Stopped.After(a.Stopped) {
		a.Stopped = other.Stopped
	}
}

// Finish stamps the aggregate's stop time.
func (a *Aggregate) Finish() {
	a.Stopped = time.Now()
}

// Duration is the wall-clock span of the aggregate, zero until finished.
func (a *Aggregate) Duration() time.Duration {
	if a.Started.IsZero() || a.Stopped.IsZero() {
		return 0
	}
	return a.Stopped.Sub(a.Started)
}

// Successful reports whether the run passed: no failures, no errors, no
// unexpected successes.
func (a *Aggregate) Successful() bool {
	return a.Failures == 0 && a.Errors == 0 && a.UnexpectedSuccesses == 0
}

// Status reduces the aggregate to a single overall status for display.
func (a *Aggregate) Status() types.TestStatus {
	switch {
	case !a.Successful():
		return types.StatusFailure
	case a.Successes == 0 && (a.Skipped > 0 || a.ModuleSkips > 0):
		return types.StatusSkipped
	default:
		return types.StatusSuccess
	}
}

// Running snapshots the names of in-flight tests, longest-running first
// by start time.
func (a *Aggregate) Running() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	logs := make([]*TestLog, 0, len(a.inflight))
	for l := range a.inflight {
		logs = append(logs, l)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Started.Before(logs[j].Started) })

	names := make([]string, len(logs))
	for i, l := range logs {
		names[i] = l.Name
	}
	return names
}

// InFlight reports how many started tests have not completed.
func (a *Aggregate) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inflight)
}
