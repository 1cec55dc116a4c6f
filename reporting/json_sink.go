package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/percolator-ci/percolator/results"
)

// JSONSink writes one results.json per run: run statistics plus every
// outcome with its subtests nested.
type JSONSink struct {
	baseDir  string
	testLogs map[string][]*results.TestLog
}

// NewJSONSink creates a JSON sink writing under baseDir.
func NewJSONSink(baseDir string) *JSONSink {
	return &JSONSink{
		baseDir:  baseDir,
		testLogs: make(map[string][]*results.TestLog),
	}
}

// Consume collects test logs for later JSON generation.
func (s *JSONSink) Consume(log *results.TestLog, runID string) error {
	s.testLogs[runID] = append(s.testLogs[runID], log)
	return nil
}

type jsonReport struct {
	RunID           string       `json:"run_id"`
	Timestamp       time.Time    `json:"timestamp"`
	DurationSeconds float64      `json:"duration_seconds"`
	Stats           jsonStats    `json:"stats"`
	Results         []jsonResult `json:"results"`
}

type jsonStats struct {
	Tests               int     `json:"tests"`
	Passed              int     `json:"passed"`
	Failed              int     `json:"failed"`
	Errored             int     `json:"errored"`
	Skipped             int     `json:"skipped"`
	ExpectedFailures    int     `json:"expected_failures,omitempty"`
	UnexpectedSuccesses int     `json:"unexpected_successes,omitempty"`
	PassRate            float64 `json:"pass_rate"`
}

type jsonResult struct {
	Name            string       `json:"name"`
	Module          string       `json:"module,omitempty"`
	Class           string       `json:"class,omitempty"`
	Status          string       `json:"status"`
	DurationSeconds float64      `json:"duration_seconds"`
	Error           string       `json:"error,omitempty"`
	SubTests        []jsonResult `json:"subtests,omitempty"`
}

// Complete writes the run's results.json.
func (s *JSONSink) Complete(runID string) error {
	logs := s.testLogs[runID]

	var stats ReportStats
	out := make([]jsonResult, 0, len(logs))
	for _, l := range logs {
		updateStats(&stats, l.EffectiveStatus())
		out = append(out, toJSONResult(l))
	}
	if stats.Total > 0 {
		stats.PassRate = float64(stats.Passed) * 100 / float64(stats.Total)
	}

	report := jsonReport{
		RunID:           runID,
		Timestamp:       time.Now(),
		DurationSeconds: totalDuration(logs).Seconds(),
		Stats: jsonStats{
			Tests:               stats.Total,
			Passed:              stats.Passed,
			Failed:              stats.Failed,
			Errored:             stats.Errored,
			Skipped:             stats.Skipped,
			ExpectedFailures:    stats.ExpectedFailures,
			UnexpectedSuccesses: stats.UnexpectedSuccesses,
			PassRate:            stats.PassRate,
		},
		Results: out,
	}

	content, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON report: %w", err)
	}

	outputDir, err := runDirectory(s.baseDir, runID)
	if err != nil {
		return err
	}
	resultFile := filepath.Join(outputDir, "results.json")
	if err := os.WriteFile(resultFile, append(content, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return nil
}

func toJSONResult(l *results.TestLog) jsonResult {
	r := jsonResult{
		Name:            l.Name,
		Module:          l.Module,
		Class:           l.Class,
		Status:          statusText(l.EffectiveStatus()),
		DurationSeconds: l.Duration().Seconds(),
		Error:           l.Err,
	}
	for _, sub := range l.SubTests {
		r.SubTests = append(r.SubTests, toJSONResult(sub))
	}
	return r
}
