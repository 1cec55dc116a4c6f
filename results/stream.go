package results

import (
	"fmt"
	"io"

	"github.com/percolator-ci/percolator/types"
)

// Verbosity levels for live console output.
const (
	VerbosityDots    = 1
	VerbosityLines   = 2
	VerbosityVerbose = 3
)

// statusWord maps a status onto the word printed after "..." on a
// per-test line and in front of error detail blocks.
func statusWord(s types.TestStatus) string {
	switch s {
	case types.StatusSuccess:
		return "ok"
	case types.StatusError:
		return "ERROR"
	case types.StatusFailure:
		return "FAIL"
	case types.StatusSkipped:
		return "skipped"
	case types.StatusExpectedFailure:
		return "expected failure"
	case types.StatusUnexpectedSuccess:
		return "unexpected success"
	}
	return string(s)
}

// statusDot maps a status onto its single-character marker for
// verbosity 1 output.
func statusDot(s types.TestStatus) string {
	switch s {
	case types.StatusSuccess:
		return "."
	case types.StatusError:
		return "E"
	case types.StatusFailure:
		return "F"
	case types.StatusSkipped:
		return "s"
	case types.StatusExpectedFailure:
		return "x"
	case types.StatusUnexpectedSuccess:
		return "u"
	}
	return "?"
}

// Stream writes one line (or one dot) per completed test. Workers
// finish tests concurrently, so output is rendered per merged batch
// rather than per test: the collector calls PrintBatch once a batch's
// aggregate arrives, keeping lines grouped in resolution order.
type Stream struct {
	Out       io.Writer
	Verbosity int
}

// NewStream creates a live renderer at the given verbosity, clamped to
// a minimum of 1.
func NewStream(out io.Writer, verbosity int) *Stream {
	if verbosity < VerbosityDots {
		verbosity = VerbosityDots
	}
	return &Stream{Out: out, Verbosity: verbosity}
}

// PrintBatch renders every completed log of one batch in completion
// order.
func (s *Stream) PrintBatch(agg *Aggregate) {
	for _, l := range agg.Completed {
		s.PrintLog(l)
	}
}

// PrintLog renders a single completed log: a dot at verbosity 1, a
// "name ... status" line at 2, the description on its own line at 3.
// Skip lines carry the skip reason after the status word.
func (s *Stream) PrintLog(l *TestLog) {
	status := l.EffectiveStatus()
	if s.Verbosity == VerbosityDots {
		fmt.Fprint(s.Out, statusDot(status))
		return
	}

	fmt.Fprintf(s.Out, "%s ... %s", s.describe(l), statusWord(status))
	if status == types.StatusSkipped && l.Err != "" {
		fmt.Fprintf(s.Out, " %s", l.Err)
	}
	fmt.Fprintln(s.Out)

	for _, sub := range l.SubTests {
		fmt.Fprintf(s.Out, "%s ... %s\n", sub.Name, statusWord(sub.EffectiveStatus()))
	}
}

func (s *Stream) describe(l *TestLog) string {
	if s.Verbosity >= VerbosityVerbose && l.Description != "" {
		return l.Name + "\n" + l.Description
	}
	return l.Name
}

// Finish terminates the live output with a newline so the error lists
// that follow start on a fresh line.
func (s *Stream) Finish() {
	fmt.Fprintln(s.Out)
}
