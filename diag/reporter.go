// Package diag collects the problems test resolution runs into: replay
// lines that do not parse, dotted paths that match nothing, generators
// that yield no datasets. Depending on configuration a report either
// halts resolution or is logged and counted while resolution continues.
package diag

import (
	"fmt"
	"log/slog"
	"sync"
)

// Report is one recorded problem.
type Report struct {
	Component string
	Operation string
	Message   string
	Err       error
}

// Error formats the report the way the console shows it.
func (r Report) Error() string {
	if r.Err == nil {
		return fmt.Sprintf("%s:%s: %s", r.Component, r.Operation, r.Message)
	}
	return fmt.Sprintf("%s:%s: %s: %v", r.Component, r.Operation, r.Message, r.Err)
}

// Unwrap exposes the underlying error to errors.Is/As.
func (r Report) Unwrap() error {
	return r.Err
}

// Reporter accumulates reports. With halt set, the first report comes
// back as a terminal error; otherwise Record always returns nil and the
// caller keeps going.
type Reporter struct {
	log  *slog.Logger
	halt bool

	mu      sync.Mutex
	reports []Report
}

// NewReporter builds a reporter. A nil logger falls back to the default.
func NewReporter(log *slog.Logger, halt bool) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{log: log, halt: halt}
}

// Record logs and stores one problem. The returned error is non-nil only
// in halt mode; callers stop resolution when they see it.
func (r *Reporter) Record(component, operation, message string, err error) error {
	report := Report{Component: component, Operation: operation, Message: message, Err: err}

	r.mu.Lock()
	r.reports = append(r.reports, report)
	r.mu.Unlock()

	r.log.Error("Resolution problem",
		"component", component,
		"operation", operation,
		"detail", message,
		"err", err)

	if r.halt {
		return fmt.Errorf("resolution halted: %w", report)
	}
	return nil
}

// Count returns the number of recorded problems.
func (r *Reporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// Reports returns a copy of the recorded problems in order.
func (r *Reporter) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}
