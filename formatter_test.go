package percolator

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/percolator-ci/percolator/results"
)

// TestConsoleResultFormatter_FormatResults tests the basic functionality of the formatter
func TestConsoleResultFormatter_FormatResults(t *testing.T) {
	// Create a sample result
	result := createSampleResult()

	var buf bytes.Buffer
	formatter := NewConsoleResultFormatter(discardLogger(), results.VerbosityLines, &buf)

	err := formatter.FormatResults(result, "test-run-1", "/tmp/percolator/logs")
	require.NoError(t, err)

	out := buf.String()

	// The classic error block for the failing test
	assert.Contains(t, out, "FAIL: shop.CartSuite.TestRemove")
	assert.Contains(t, out, "want empty cart")

	// The unittest-style verdict line
	assert.Contains(t, out, "Ran 3 tests")
	assert.Contains(t, out, "FAILED (failures=1, skipped=1)")

	// The summary table and the pointer to the detailed logs
	assert.Contains(t, out, "Percolator Test Results")
	assert.Contains(t, out, "Detailed logs: /tmp/percolator/logs")

	// A failing run gets the cold-brew sign-off
	assert.Contains(t, out, "the brew went cold")
}

// TestConsoleResultFormatter_FormatResults_EmptyResult tests formatting an empty result
func TestConsoleResultFormatter_FormatResults_EmptyResult(t *testing.T) {
	// Create an empty result
	result := results.NewAggregate()
	result.Finish()

	var buf bytes.Buffer
	formatter := NewConsoleResultFormatter(discardLogger(), results.VerbosityDots, &buf)

	err := formatter.FormatResults(result, "empty-run", "/tmp/percolator/logs")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Ran 0 tests")
	assert.Contains(t, out, "OK")
	assert.NotContains(t, out, "the brew went cold")
}

// TestConsoleResultFormatter_FormatResults_Passing tests that a clean run
// skips the error blocks entirely
func TestConsoleResultFormatter_FormatResults_Passing(t *testing.T) {
	result := passingAggregate()

	var buf bytes.Buffer
	formatter := NewConsoleResultFormatter(discardLogger(), results.VerbosityDots, &buf)

	err := formatter.FormatResults(result, "test-run-2", "/tmp/percolator/logs")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Ran 1 test")
	assert.NotContains(t, out, "FAIL:")
	assert.NotContains(t, out, "the brew went cold")
}

// Helper function to create a sample test result for formatting
func createSampleResult() *results.Aggregate {
	agg := results.NewAggregate()

	pass := agg.StartTest("shop.CartSuite.TestAdd", "Adding an item grows the cart.")
	pass.Module, pass.Class = "shop", "CartSuite"
	agg.AddSuccess(pass)

	fail := agg.StartTest("shop.CartSuite.TestRemove", "")
	fail.Module, fail.Class = "shop", "CartSuite"
	agg.AddFailure(fail, "want empty cart")

	skip := agg.StartTest("shop.CartSuite.TestCheckout", "")
	skip.Module, skip.Class = "shop", "CartSuite"
	agg.AddSkip(skip, "checkout disabled")

	agg.Finish()
	return agg
}
