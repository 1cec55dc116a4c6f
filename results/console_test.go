package results

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleSummaryOK(t *testing.T) {
	agg := NewAggregate()
	agg.AddSuccess(agg.StartTest("mod.Cls.TestA", ""))
	agg.AddSkip(agg.StartTest("mod.Cls.TestB", ""), "later")
	agg.Finish()

	var buf bytes.Buffer
	NewConsole(&buf, 1).PrintSummary(agg)

	out := buf.String()
	assert.Contains(t, out, "Ran 2 tests in ")
	assert.Contains(t, out, "OK (skipped=1)")
	assert.NotContains(t, out, "FAILED")
}

func TestConsoleSummaryFailed(t *testing.T) {
	agg := NewAggregate()
	agg.AddFailure(agg.StartTest("mod.Cls.TestA", ""), "nope")
	agg.AddNonTestError("mod.Cls setUpClass", "broken")
	agg.Finish()

	var buf bytes.Buffer
	NewConsole(&buf, 1).PrintSummary(agg)

	out := buf.String()
	assert.Contains(t, out, "Ran 1 test in ")
	assert.Contains(t, out, "FAILED (failures=1, non-test errors=1)")
}

func TestConsoleErrorBlocks(t *testing.T) {
	agg := NewAggregate()
	agg.AddError(agg.StartTest("mod.Cls.TestBoom", ""), "panic: lost connection")
	agg.AddFailure(agg.StartTest("mod.Cls.TestWrong", ""), "want 2, got 3")
	agg.AddSuccess(agg.StartTest("mod.Cls.TestFine", ""))

	var buf bytes.Buffer
	NewConsole(&buf, 1).PrintErrorLists(agg)

	out := buf.String()
	assert.Contains(t, out, "ERROR: mod.Cls.TestBoom")
	assert.Contains(t, out, "panic: lost connection")
	assert.Contains(t, out, "FAIL: mod.Cls.TestWrong")
	assert.Contains(t, out, "want 2, got 3")
	assert.NotContains(t, out, "TestFine")
	// Errors listed before failures.
	assert.Less(t, strings.Index(out, "TestBoom"), strings.Index(out, "TestWrong"))
	assert.Equal(t, 2, strings.Count(out, separatorHeavy))
}

func TestConsoleDescriptionsAtVerbosityThree(t *testing.T) {
	agg := NewAggregate()
	l := agg.StartTest("mod.Cls.TestWrong", "checks order totals")
	agg.AddFailure(l, "off by one")

	var quiet, chatty bytes.Buffer
	NewConsole(&quiet, 2).PrintErrorLists(agg)
	NewConsole(&chatty, 3).PrintErrorLists(agg)

	assert.NotContains(t, quiet.String(), "checks order totals")
	assert.Contains(t, chatty.String(), "checks order totals")
}
