package reporting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
	"github.com/percolator-ci/percolator/ui"
)

// TextSummarySink writes one summary.log per run: overall statistics, a
// module/class/test tree, and the failed-test list.
type TextSummarySink struct {
	builder        *ReportBuilder
	baseDir        string
	includeDetails bool
	testLogs       map[string][]*results.TestLog
}

// NewTextSummarySink creates a text summary sink writing under baseDir.
func NewTextSummarySink(baseDir string, includeDetails bool) *TextSummarySink {
	return &TextSummarySink{
		builder:        NewReportBuilder(),
		baseDir:        baseDir,
		includeDetails: includeDetails,
		testLogs:       make(map[string][]*results.TestLog),
	}
}

// Consume collects test logs for later summary generation.
func (s *TextSummarySink) Consume(log *results.TestLog, runID string) error {
	s.testLogs[runID] = append(s.testLogs[runID], log)
	return nil
}

// Complete writes the run's summary.log.
func (s *TextSummarySink) Complete(runID string) error {
	logs := s.testLogs[runID]
	data := s.builder.Build(logs, runID, totalDuration(logs))
	content := formatTextSummary(data, s.includeDetails)

	outputDir, err := runDirectory(s.baseDir, runID)
	if err != nil {
		return err
	}
	summaryFile := filepath.Join(outputDir, "summary.log")
	if err := os.WriteFile(summaryFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

func formatTextSummary(data *ReportData, includeDetails bool) string {
	var buf bytes.Buffer

	buf.WriteString("Test Results Summary\n")
	buf.WriteString(strings.Repeat("=", 50) + "\n\n")

	fmt.Fprintf(&buf, "Run ID: %s\n", data.RunID)
	fmt.Fprintf(&buf, "Duration: %s\n", data.DurationText)
	fmt.Fprintf(&buf, "Total Tests: %d\n", data.Stats.Total)
	fmt.Fprintf(&buf, "Passed: %d\n", data.Stats.Passed)
	fmt.Fprintf(&buf, "Failed: %d\n", data.Stats.Failed)
	fmt.Fprintf(&buf, "Errored: %d\n", data.Stats.Errored)
	fmt.Fprintf(&buf, "Skipped: %d\n", data.Stats.Skipped)
	if data.Stats.ExpectedFailures > 0 {
		fmt.Fprintf(&buf, "Expected Failures: %d\n", data.Stats.ExpectedFailures)
	}
	if data.Stats.UnexpectedSuccesses > 0 {
		fmt.Fprintf(&buf, "Unexpected Successes: %d\n", data.Stats.UnexpectedSuccesses)
	}
	fmt.Fprintf(&buf, "Pass Rate: %s\n", data.PassRateText)
	fmt.Fprintf(&buf, "Status: %s\n\n", strings.ToUpper(statusText(determineStatus(data.Stats))))

	buf.WriteString("Test Hierarchy:\n")
	buf.WriteString(strings.Repeat("-", 30) + "\n")

	for _, mod := range data.Modules {
		fmt.Fprintf(&buf, "%s [%d tests, %d passed, %d failed]\n",
			mod.Name, mod.Stats.Total, mod.Stats.Passed, failedCount(mod.Stats))

		children := len(mod.Tests) + len(mod.Classes)
		seen := 0
		for _, item := range mod.Tests {
			seen++
			prefix := ui.BuildTreePrefix(1, seen == children, nil)
			writeItemLine(&buf, prefix, item, includeDetails)
		}
		for _, cls := range mod.Classes {
			seen++
			classLast := seen == children
			prefix := ui.BuildTreePrefix(1, classLast, nil)
			fmt.Fprintf(&buf, "%s%s [%d tests, %d passed, %d failed]\n",
				prefix, cls.Name, cls.Stats.Total, cls.Stats.Passed, failedCount(cls.Stats))

			lastStack := []bool{classLast}
			for i, item := range cls.Tests {
				last := isLastAtLevel(cls.Tests, i)
				if len(lastStack) > item.Level+1 {
					lastStack = lastStack[:item.Level+1]
				}
				writeItemLine(&buf, ui.BuildTreePrefix(2+item.Level, last, lastStack), item, includeDetails)
				lastStack = append(lastStack, last)
			}
		}
	}

	if len(data.FailedTests) > 0 {
		buf.WriteString("\nFailed Tests:\n")
		buf.WriteString(strings.Repeat("-", 20) + "\n")
		for _, item := range data.FailedTests {
			fmt.Fprintf(&buf, "- %s", item.FullName)
			if includeDetails && item.Err != "" {
				fmt.Fprintf(&buf, " (Error: %s)", firstLine(item.Err))
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

func writeItemLine(buf *bytes.Buffer, prefix string, item ReportTestItem, includeDetails bool) {
	fmt.Fprintf(buf, "%s%s %s (%s)\n", prefix, statusChar(item.Status), item.Name, formatDuration(item.Duration))
	if includeDetails && item.Err != "" && item.Status.Counts() {
		pad := strings.Repeat(" ", len([]rune(prefix))+2)
		fmt.Fprintf(buf, "%sError: %s\n", pad, firstLine(item.Err))
	}
}

// isLastAtLevel reports whether the item at index i is the last of its
// sibling group in a flattened tree ordered parent-before-children.
func isLastAtLevel(items []ReportTestItem, i int) bool {
	level := items[i].Level
	for j := i + 1; j < len(items); j++ {
		if items[j].Level < level {
			return true
		}
		if items[j].Level == level {
			return false
		}
	}
	return true
}

func failedCount(stats ReportStats) int {
	return stats.Failed + stats.Errored + stats.UnexpectedSuccesses
}

func skippedCount(stats ReportStats) int {
	return stats.Skipped + stats.ExpectedFailures
}

// TableReporter renders a run as an ASCII summary table, styled by the
// overall result.
type TableReporter struct {
	title               string
	showIndividualTests bool
}

// NewTableReporter creates a table reporter. With showIndividualTests
// false only module rows and the footer appear.
func NewTableReporter(title string, showIndividualTests bool) *TableReporter {
	return &TableReporter{
		title:               title,
		showIndividualTests: showIndividualTests,
	}
}

// Generate formats the report data as a table and returns the content.
func (tr *TableReporter) Generate(data *ReportData) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(tr.title)
	t.AppendHeader(table.Row{"TYPE", "NAME", "DURATION", "TESTS", "PASSED", "FAILED", "SKIPPED", "STATUS"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TYPE", AutoMerge: true},
		{Name: "NAME", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "TESTS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
	})

	for _, mod := range data.Modules {
		t.AppendRow(table.Row{
			"Module", mod.Name, formatDuration(mod.Duration),
			mod.Stats.Total, mod.Stats.Passed, failedCount(mod.Stats), skippedCount(mod.Stats),
			strings.ToUpper(statusText(mod.Status)),
		})
		if !tr.showIndividualTests {
			continue
		}

		children := len(mod.Tests) + len(mod.Classes)
		seen := 0
		for _, item := range mod.Tests {
			seen++
			tr.appendItemRow(t, ui.BuildTreePrefix(1, seen == children, nil), item)
		}
		for _, cls := range mod.Classes {
			seen++
			classLast := seen == children
			t.AppendRow(table.Row{
				"Class", ui.BuildTreePrefix(1, classLast, nil) + cls.Name, formatDuration(cls.Duration),
				cls.Stats.Total, cls.Stats.Passed, failedCount(cls.Stats), skippedCount(cls.Stats),
				strings.ToUpper(statusText(cls.Status)),
			})

			lastStack := []bool{classLast}
			for i, item := range cls.Tests {
				last := isLastAtLevel(cls.Tests, i)
				if len(lastStack) > item.Level+1 {
					lastStack = lastStack[:item.Level+1]
				}
				tr.appendItemRow(t, ui.BuildTreePrefix(2+item.Level, last, lastStack), item)
				lastStack = append(lastStack, last)
			}
		}
	}

	overall := determineStatus(data.Stats)
	switch overall {
	case types.StatusFailure:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case types.StatusSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL", "", data.DurationText,
		data.Stats.Total, data.Stats.Passed, failedCount(data.Stats), skippedCount(data.Stats),
		strings.ToUpper(statusText(overall)),
	})

	t.Render()
	return buf.String()
}

func (tr *TableReporter) appendItemRow(t table.Writer, prefix string, item ReportTestItem) {
	kind := "Test"
	if item.IsSubTest {
		kind = "Subtest"
	}
	t.AppendRow(table.Row{
		kind, prefix + item.Name, formatDuration(item.Duration),
		"", "", "", "",
		strings.ToUpper(statusText(item.Status)),
	})
}
