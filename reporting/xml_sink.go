package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

// XMLSink writes one JUnit-style results.xml per run: a testsuite per
// class, hook breakage as error cases within its scope, subtests as
// their own cases named parent/sub.
type XMLSink struct {
	builder  *ReportBuilder
	baseDir  string
	testLogs map[string][]*results.TestLog
}

// NewXMLSink creates a JUnit XML sink writing under baseDir.
func NewXMLSink(baseDir string) *XMLSink {
	return &XMLSink{
		builder:  NewReportBuilder(),
		baseDir:  baseDir,
		testLogs: make(map[string][]*results.TestLog),
	}
}

// Consume collects test logs for later XML generation.
func (s *XMLSink) Consume(log *results.TestLog, runID string) error {
	s.testLogs[runID] = append(s.testLogs[runID], log)
	return nil
}

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Errors   int              `xml:"errors,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Cases     []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitOutcome `xml:"failure,omitempty"`
	Error     *junitOutcome `xml:"error,omitempty"`
	Skipped   *junitOutcome `xml:"skipped,omitempty"`
}

type junitOutcome struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// Complete writes the run's results.xml.
func (s *XMLSink) Complete(runID string) error {
	logs := s.testLogs[runID]
	data := s.builder.Build(logs, runID, totalDuration(logs))

	root := junitTestSuites{
		Name: "percolator",
		Time: seconds(data.Duration),
	}

	for _, mod := range data.Modules {
		if len(mod.Tests) > 0 {
			root.Suites = append(root.Suites, buildSuite(mod.Name, mod.Name, mod.Tests))
		}
		for _, cls := range mod.Classes {
			name := cls.Name
			if mod.Name != "" {
				name = mod.Name + "." + cls.Name
			}
			root.Suites = append(root.Suites, buildSuite(name, name, cls.Tests))
		}
	}
	for _, suite := range root.Suites {
		root.Tests += suite.Tests
		root.Failures += suite.Failures
		root.Errors += suite.Errors
		root.Skipped += suite.Skipped
	}

	content, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML report: %w", err)
	}

	outputDir, err := runDirectory(s.baseDir, runID)
	if err != nil {
		return err
	}
	resultFile := filepath.Join(outputDir, "results.xml")
	payload := append([]byte(xml.Header), content...)
	if err := os.WriteFile(resultFile, append(payload, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write XML report: %w", err)
	}
	return nil
}

// buildSuite turns one scope's items into a testsuite. Counts describe
// what the suite contains, so subtest cases count here even though the
// run-level statistics only count their parents.
func buildSuite(name, classPrefix string, items []ReportTestItem) junitTestSuite {
	suite := junitTestSuite{Name: name}

	var dur time.Duration
	var earliest time.Time
	for _, item := range items {
		caseName := strings.TrimPrefix(item.FullName, classPrefix+".")
		tc := junitTestCase{
			Name:      caseName,
			ClassName: name,
			Time:      seconds(item.Duration),
		}

		errText := stripansi.Strip(item.Err)
		switch item.Status {
		case types.StatusFailure:
			tc.Failure = &junitOutcome{Message: firstLine(errText), Type: "failure", Content: errText}
		case types.StatusError:
			tc.Error = &junitOutcome{Message: firstLine(errText), Type: "error", Content: errText}
		case types.StatusSkipped:
			tc.Skipped = &junitOutcome{Message: errText}
		case types.StatusExpectedFailure:
			tc.Skipped = &junitOutcome{Message: "expected failure", Content: errText}
		case types.StatusUnexpectedSuccess:
			tc.Failure = &junitOutcome{Message: "unexpected success", Type: "unexpectedSuccess"}
		}

		suite.Cases = append(suite.Cases, tc)
		suite.Tests++
		switch {
		case tc.Failure != nil:
			suite.Failures++
		case tc.Error != nil:
			suite.Errors++
		case tc.Skipped != nil:
			suite.Skipped++
		}

		if !item.IsSubTest {
			dur += item.Duration
		}
		if !item.Started.IsZero() && (earliest.IsZero() || item.Started.Before(earliest)) {
			earliest = item.Started
		}
	}

	suite.Time = seconds(dur)
	if !earliest.IsZero() {
		suite.Timestamp = earliest.Format("2006-01-02T15:04:05")
	}
	return suite
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
