package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

// subunitTimeFormat is the timestamp layout of the subunit v1 line
// protocol.
const subunitTimeFormat = "2006-01-02 15:04:05.000000Z"

// SubunitSink writes one results.subunit per run in the subunit v1 line
// protocol: a time/test/time/outcome stanza per test, failure details in
// bracketed blocks.
type SubunitSink struct {
	baseDir  string
	testLogs map[string][]*results.TestLog
}

// NewSubunitSink creates a subunit sink writing under baseDir.
func NewSubunitSink(baseDir string) *SubunitSink {
	return &SubunitSink{
		baseDir:  baseDir,
		testLogs: make(map[string][]*results.TestLog),
	}
}

// Consume collects test logs for later stream generation.
func (s *SubunitSink) Consume(log *results.TestLog, runID string) error {
	s.testLogs[runID] = append(s.testLogs[runID], log)
	return nil
}

// Complete writes the run's results.subunit.
func (s *SubunitSink) Complete(runID string) error {
	var b strings.Builder
	for _, l := range s.testLogs[runID] {
		writeSubunitTest(&b, l)
	}

	outputDir, err := runDirectory(s.baseDir, runID)
	if err != nil {
		return err
	}
	resultFile := filepath.Join(outputDir, "results.subunit")
	if err := os.WriteFile(resultFile, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write subunit stream: %w", err)
	}
	return nil
}

func writeSubunitTest(b *strings.Builder, l *results.TestLog) {
	if !l.Started.IsZero() {
		fmt.Fprintf(b, "time: %s\n", l.Started.UTC().Format(subunitTimeFormat))
	}
	fmt.Fprintf(b, "test: %s\n", l.Name)
	if !l.Stopped.IsZero() {
		fmt.Fprintf(b, "time: %s\n", l.Stopped.UTC().Format(subunitTimeFormat))
	}

	keyword := subunitKeyword(l.EffectiveStatus())
	details := stripansi.Strip(strings.TrimRight(l.Err, "\n"))
	if details == "" {
		fmt.Fprintf(b, "%s: %s\n", keyword, l.Name)
		return
	}

	fmt.Fprintf(b, "%s: %s [\n", keyword, l.Name)
	for _, line := range strings.Split(details, "\n") {
		// A bare "]" line would terminate the block early.
		if strings.HasPrefix(line, "]") {
			line = " " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("]\n")
}

func subunitKeyword(status types.TestStatus) string {
	switch status {
	case types.StatusFailure:
		return "failure"
	case types.StatusError:
		return "error"
	case types.StatusSkipped:
		return "skip"
	case types.StatusExpectedFailure:
		return "xfail"
	case types.StatusUnexpectedSuccess:
		return "uxsuccess"
	default:
		return "success"
	}
}
