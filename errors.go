package percolator

import (
	"errors"
	"fmt"
)

// The service distinguishes two failure classes at exit: tests that
// failed (exit code 1) and the harness itself breaking (exit code 2).
// An unreadable engine config, an unresolvable test list or a sink that
// cannot be created are all runtime errors; assertions and panics
// inside tests never are.

// RuntimeError marks a brew that broke before or outside test
// execution.
type RuntimeError struct {
	Err error
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRuntimeError reports whether err is or wraps a RuntimeError.
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError marks a completed brew whose aggregate was not
// successful. Message carries the failure summary shown at exit.
type TestFailureError struct {
	Message string
}

func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// IsTestFailureError reports whether err is or wraps a TestFailureError.
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
