package reporting

import (
	"strings"
	"time"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

// Sink receives completed test logs one at a time and materializes a
// report artifact when the run is complete. Results are collected per
// run ID, so one sink can serve consecutive runs of a periodic service.
type Sink interface {
	Consume(log *results.TestLog, runID string) error
	Complete(runID string) error
}

// ReportStats contains aggregated statistics for a test run. Subtest
// rows are presentation detail and do not count here; the totals match
// the execution aggregate.
type ReportStats struct {
	Total               int
	Passed              int
	Failed              int
	Errored             int
	Skipped             int
	ExpectedFailures    int
	UnexpectedSuccesses int
	PassRate            float64
}

// ReportTestItem represents a single test, hook breakage entry, or
// subtest in the report.
type ReportTestItem struct {
	// Identity
	Name       string // Display name (leaf within its class)
	FullName   string // Dotted path
	Module     string
	Class      string
	IsSubTest  bool
	ParentTest string // Full name of parent test for subtests
	Level      int    // Nesting level (0=test, 1=subtest, 2=nested subtest)

	// Outcome
	Status   types.TestStatus
	Err      string
	Duration time.Duration
	Started  time.Time
	Stopped  time.Time
}

// ReportClass represents one class of tests in the report.
type ReportClass struct {
	Name     string
	Module   string
	Status   types.TestStatus
	Duration time.Duration
	Stats    ReportStats
	Tests    []ReportTestItem
}

// ReportModule represents a module containing classes and module-scoped
// entries (module hook breakage, unknown-module errors).
type ReportModule struct {
	Name     string
	Status   types.TestStatus
	Duration time.Duration
	Stats    ReportStats
	Classes  []ReportClass
	Tests    []ReportTestItem // Entries scoped directly to the module
}

// ReportData contains all the structured data needed for any report
// format.
type ReportData struct {
	// Run information
	RunID        string
	Timestamp    time.Time
	Duration     time.Duration
	DurationText string

	// Overall statistics
	Stats        ReportStats
	PassRateText string
	HasFailures  bool

	// Hierarchical data, in completion order
	Modules []ReportModule

	// Flat lists (for table-style outputs)
	AllTests    []ReportTestItem
	FailedTests []ReportTestItem

	FailedTestNames []string
}

// ReportBuilder constructs ReportData from completed test logs.
type ReportBuilder struct {
	includeSubTests bool
}

// NewReportBuilder creates a report builder that includes subtest rows.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{includeSubTests: true}
}

// WithSubTests controls whether subtest rows are included.
func (rb *ReportBuilder) WithSubTests(enabled bool) *ReportBuilder {
	rb.includeSubTests = enabled
	return rb
}

// BuildFromAggregate reports over everything the aggregate completed,
// using its wall-clock duration.
func (rb *ReportBuilder) BuildFromAggregate(agg *results.Aggregate, runID string) *ReportData {
	return rb.Build(agg.Completed, runID, agg.Duration())
}

// moduleAccumulator keeps per-module state while the builder walks the
// logs, so modules and classes come out in first-seen order.
type moduleAccumulator struct {
	module     ReportModule
	classOrder []string
	classes    map[string]*ReportClass
}

// Build assembles report data from completed logs. Entries recorded
// against a class or module (setUpClass breakage, class skips, module
// hook failures) become items of their scope rather than being dropped.
func (rb *ReportBuilder) Build(logs []*results.TestLog, runID string, duration time.Duration) *ReportData {
	report := &ReportData{
		RunID:        runID,
		Timestamp:    time.Now(),
		Duration:     duration,
		DurationText: formatDuration(duration),
	}

	modules := make(map[string]*moduleAccumulator)
	var moduleOrder []string
	ensureModule := func(name string) *moduleAccumulator {
		acc, ok := modules[name]
		if !ok {
			acc = &moduleAccumulator{
				module:  ReportModule{Name: name},
				classes: make(map[string]*ReportClass),
			}
			modules[name] = acc
			moduleOrder = append(moduleOrder, name)
		}
		return acc
	}

	for _, l := range logs {
		item := makeItem(l, false, "", 0)

		report.AllTests = append(report.AllTests, item)
		updateStats(&report.Stats, item.Status)
		if item.Status.Counts() {
			report.FailedTests = append(report.FailedTests, item)
			report.FailedTestNames = append(report.FailedTestNames, item.FullName)
		}

		acc := ensureModule(l.Module)
		target := &acc.module.Tests
		if l.Class != "" {
			cls, ok := acc.classes[l.Class]
			if !ok {
				cls = &ReportClass{Name: l.Class, Module: l.Module}
				acc.classes[l.Class] = cls
				acc.classOrder = append(acc.classOrder, l.Class)
			}
			target = &cls.Tests
		}
		*target = append(*target, item)

		if rb.includeSubTests {
			rb.appendSubTests(report, target, l, item.FullName, 1)
		}
	}

	for _, name := range moduleOrder {
		acc := modules[name]
		for _, className := range acc.classOrder {
			cls := acc.classes[className]
			cls.Stats, cls.Duration = containerStats(cls.Tests)
			cls.Status = determineStatus(cls.Stats)
			acc.module.Classes = append(acc.module.Classes, *cls)
		}

		stats, dur := containerStats(acc.module.Tests)
		for _, cls := range acc.module.Classes {
			addStats(&stats, cls.Stats)
			dur += cls.Duration
		}
		acc.module.Stats = stats
		acc.module.Duration = dur
		acc.module.Status = determineStatus(stats)
		report.Modules = append(report.Modules, acc.module)
	}

	if report.Stats.Total > 0 {
		report.Stats.PassRate = float64(report.Stats.Passed) * 100 / float64(report.Stats.Total)
	}
	report.PassRateText = formatPercent(report.Stats.PassRate)
	report.HasFailures = report.Stats.Failed+report.Stats.Errored+report.Stats.UnexpectedSuccesses > 0

	return report
}

// appendSubTests flattens a log's subtest tree into report items, each
// one level deeper than its parent. Failing subtests join the failed
// lists; the overall statistics already counted their parent.
func (rb *ReportBuilder) appendSubTests(report *ReportData, target *[]ReportTestItem, parent *results.TestLog, parentName string, level int) {
	for _, sub := range parent.SubTests {
		item := makeItem(sub, true, parentName, level)

		report.AllTests = append(report.AllTests, item)
		*target = append(*target, item)
		if item.Status.Counts() {
			report.FailedTests = append(report.FailedTests, item)
			report.FailedTestNames = append(report.FailedTestNames, item.FullName)
		}

		rb.appendSubTests(report, target, sub, item.FullName, level+1)
	}
}

// makeItem converts one log into a report item. The display name is the
// leaf within the module and class scope; subtests show only the part
// past their parent's name.
func makeItem(l *results.TestLog, isSubTest bool, parentName string, level int) ReportTestItem {
	name := l.Name
	switch {
	case isSubTest:
		name = strings.TrimPrefix(name, parentName+"/")
	case l.Module != "":
		prefix := l.Module + "."
		if l.Class != "" {
			prefix += l.Class + "."
		}
		name = strings.TrimPrefix(name, prefix)
	}

	return ReportTestItem{
		Name:       name,
		FullName:   l.Name,
		Module:     l.Module,
		Class:      l.Class,
		IsSubTest:  isSubTest,
		ParentTest: parentName,
		Level:      level,

		Status:   l.EffectiveStatus(),
		Err:      l.Err,
		Duration: l.Duration(),
		Started:  l.Started,
		Stopped:  l.Stopped,
	}
}

// updateStats routes one non-subtest outcome to its counter.
func updateStats(stats *ReportStats, status types.TestStatus) {
	stats.Total++
	switch status {
	case types.StatusSuccess:
		stats.Passed++
	case types.StatusFailure:
		stats.Failed++
	case types.StatusError:
		stats.Errored++
	case types.StatusSkipped:
		stats.Skipped++
	case types.StatusExpectedFailure:
		stats.ExpectedFailures++
	case types.StatusUnexpectedSuccess:
		stats.UnexpectedSuccesses++
	}
}

func addStats(into *ReportStats, from ReportStats) {
	into.Total += from.Total
	into.Passed += from.Passed
	into.Failed += from.Failed
	into.Errored += from.Errored
	into.Skipped += from.Skipped
	into.ExpectedFailures += from.ExpectedFailures
	into.UnexpectedSuccesses += from.UnexpectedSuccesses
}

// containerStats sums the outcomes and durations of a container's own
// items, skipping subtest rows.
func containerStats(items []ReportTestItem) (ReportStats, time.Duration) {
	var stats ReportStats
	var dur time.Duration
	for _, item := range items {
		if item.IsSubTest {
			continue
		}
		updateStats(&stats, item.Status)
		dur += item.Duration
	}
	return stats, dur
}

// determineStatus reduces container statistics to a single status.
func determineStatus(stats ReportStats) types.TestStatus {
	switch {
	case stats.Failed > 0 || stats.Errored > 0 || stats.UnexpectedSuccesses > 0:
		return types.StatusFailure
	case stats.Passed == 0 && stats.Skipped > 0:
		return types.StatusSkipped
	default:
		return types.StatusSuccess
	}
}
