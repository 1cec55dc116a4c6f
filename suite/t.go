package suite

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

// T is the handle the engine hands to suite code. It records failures,
// carries the skip and abort control flow, owns subtest creation, and
// exposes the test's context, logger, configuration and dataset.
//
// Test authors never construct a T; the engine builds one per test (and
// one per class for the class hooks) and passes it in.
type T struct {
	ctx    context.Context
	log    *results.TestLog
	logger *slog.Logger
	cfg    Config
	data   map[string]any

	mu       sync.Mutex
	failed   bool
	skipped  bool
	skipWhy  string
	failures []string
}

// skipSignal and failNowSignal are the panic payloads Skip and FailNow
// use for control flow. They carry the owning T so nested subtests can
// tell their own aborts from a parent's.
type skipSignal struct {
	t      *T
	reason string
}

type failNowSignal struct {
	t *T
}

// NewT builds a handle bound to the given result log. Used by the
// execution engine.
func NewT(ctx context.Context, log *results.TestLog, logger *slog.Logger, cfg Config, data map[string]any) *T {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &T{ctx: ctx, log: log, logger: logger, cfg: cfg, data: data}
}

// Name returns the dotted path of the running test.
func (t *T) Name() string {
	return t.log.Name
}

// Context returns the context for the running test. It is cancelled when
// the run is interrupted.
func (t *T) Context() context.Context {
	return t.ctx
}

// Logger returns the test-scoped logger. Records written through it are
// captured onto the test's result log and replayed after merge.
func (t *T) Logger() *slog.Logger {
	return t.logger
}

// Config returns the resolved test configuration.
func (t *T) Config() Config {
	if t.cfg == nil {
		return emptyConfig{}
	}
	return t.cfg
}

// Data returns the dataset bindings for a data-driven test. Tests that
// were not dataset-derived see an empty map.
func (t *T) Data() map[string]any {
	if t.data == nil {
		return map[string]any{}
	}
	return t.data
}

// Param returns one dataset value by key.
func (t *T) Param(key string) (any, bool) {
	v, ok := t.data[key]
	return v, ok
}

// Log writes to the test's captured log at info level.
func (t *T) Log(args ...any) {
	t.logger.Info(fmt.Sprint(args...))
}

// Logf writes a formatted line to the test's captured log.
func (t *T) Logf(format string, args ...any) {
	t.logger.Info(fmt.Sprintf(format, args...))
}

// Fail marks the test failed without stopping it.
func (t *T) Fail() {
	t.mu.Lock()
	t.failed = true
	t.mu.Unlock()
}

// Errorf records a failure message and marks the test failed; execution
// continues.
func (t *T) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.failed = true
	t.failures = append(t.failures, msg)
	t.mu.Unlock()
	t.logger.Error(msg)
}

// Error records failure messages and marks the test failed.
func (t *T) Error(args ...any) {
	t.Errorf("%s", fmt.Sprint(args...))
}

// FailNow marks the test failed and stops its execution immediately.
func (t *T) FailNow() {
	t.Fail()
	panic(failNowSignal{t: t})
}

// Fatalf records a failure message and stops the test immediately.
func (t *T) Fatalf(format string, args ...any) {
	t.mu.Lock()
	t.failed = true
	t.failures = append(t.failures, fmt.Sprintf(format, args...))
	t.mu.Unlock()
	t.logger.Error(fmt.Sprintf(format, args...))
	panic(failNowSignal{t: t})
}

// Fatal records failure messages and stops the test immediately.
func (t *T) Fatal(args ...any) {
	t.Fatalf("%s", fmt.Sprint(args...))
}

// Skip marks the test skipped and stops its execution immediately. In a
// class setup hook it skips the whole class.
func (t *T) Skip(args ...any) {
	t.Skipf("%s", fmt.Sprint(args...))
}

// Skipf marks the test skipped with a formatted reason and stops it.
func (t *T) Skipf(format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.skipped = true
	t.skipWhy = reason
	t.mu.Unlock()
	panic(skipSignal{t: t, reason: reason})
}

// Failed reports whether the test has been marked failed.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Skipped reports whether the test has been skipped.
func (t *T) Skipped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipped
}

// SkipReason returns the reason passed to Skip, if any.
func (t *T) SkipReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipWhy
}

// FailureText joins the recorded failure messages for the result log.
func (t *T) FailureText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.failures, "\n")
}

// Run executes fn as a named subtest. The subtest's outcome is recorded
// as a nested entry on this test's result log; a failing subtest does
// not mark the parent failed directly, the parent's status is derived
// from its subtests when the parent records no status of its own.
// Run reports whether the subtest passed.
func (t *T) Run(name string, fn func(*T)) bool {
	sub := &results.TestLog{Name: t.log.Name + "/" + name, Started: time.Now()}
	child := NewT(t.ctx, sub, t.logger, t.cfg, t.data)

	err := Invoke(child, fn)
	sub.Stopped = time.Now()

	switch {
	case err != nil:
		sub.Status = types.StatusError
		sub.Err = err.Error()
	case child.Skipped():
		sub.Status = types.StatusSkipped
		sub.Err = child.SkipReason()
	case child.Failed():
		sub.Status = types.StatusFailure
		sub.Err = child.FailureText()
	default:
		sub.Status = types.StatusSuccess
	}

	t.log.AddSubTest(sub)
	return sub.Status == types.StatusSuccess
}

// Invoke runs fn against t, absorbing the panics Skip and FailNow use
// for control flow. A non-control panic is returned as an error carrying
// the recovered value and a stack trace; control panics that belong to a
// different handle are re-raised so they reach their owner.
func Invoke(t *T, fn func(*T)) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch sig := r.(type) {
		case skipSignal:
			if sig.t != t {
				panic(r)
			}
		case failNowSignal:
			if sig.t != t {
				panic(r)
			}
		default:
			err = fmt.Errorf("panic: %v\n\n%s", r, debug.Stack())
		}
	}()
	fn(t)
	return nil
}
