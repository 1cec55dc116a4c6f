package results

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/percolator-ci/percolator/types"
)

func streamFixture() *Aggregate {
	agg := NewAggregate()
	agg.AddSuccess(agg.StartTest("mod.Cls.TestFine", ""))
	agg.AddError(agg.StartTest("mod.Cls.TestBoom", ""), "panic: lost connection")
	agg.AddFailure(agg.StartTest("mod.Cls.TestWrong", ""), "want 2, got 3")
	agg.AddSkip(agg.StartTest("mod.Cls.TestLater", ""), "not on this backend")
	agg.AddExpectedFailure(agg.StartTest("mod.Cls.TestKnown", ""), "still broken")
	agg.AddUnexpectedSuccess(agg.StartTest("mod.Cls.TestSurprise", ""))
	return agg
}

func TestStreamDots(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, 1)
	s.PrintBatch(streamFixture())
	s.Finish()

	assert.Equal(t, ".EFsxu\n", buf.String())
}

func TestStreamLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, 2)
	s.PrintBatch(streamFixture())

	want := "mod.Cls.TestFine ... ok\n" +
		"mod.Cls.TestBoom ... ERROR\n" +
		"mod.Cls.TestWrong ... FAIL\n" +
		"mod.Cls.TestLater ... skipped not on this backend\n" +
		"mod.Cls.TestKnown ... expected failure\n" +
		"mod.Cls.TestSurprise ... unexpected success\n"
	assert.Equal(t, want, buf.String())
}

func TestStreamDescriptions(t *testing.T) {
	agg := NewAggregate()
	agg.AddSuccess(agg.StartTest("mod.Cls.TestQuote", "prices a basic cart"))

	var lines, verbose bytes.Buffer
	NewStream(&lines, 2).PrintBatch(agg)
	NewStream(&verbose, 3).PrintBatch(agg)

	assert.Equal(t, "mod.Cls.TestQuote ... ok\n", lines.String())
	assert.Equal(t, "mod.Cls.TestQuote\nprices a basic cart ... ok\n", verbose.String())
}

func TestStreamSubTestLines(t *testing.T) {
	agg := NewAggregate()
	l := agg.StartTest("mod.Cls.TestSteps", "")
	sub := NewTestLog("mod.Cls.TestSteps/teardown")
	sub.Status = types.StatusFailure
	l.AddSubTest(sub)
	agg.FinishTest(l)

	var buf bytes.Buffer
	NewStream(&buf, 2).PrintBatch(agg)

	out := buf.String()
	assert.Contains(t, out, "mod.Cls.TestSteps ... FAIL\n")
	assert.Contains(t, out, "mod.Cls.TestSteps/teardown ... FAIL\n")
}

func TestStreamClampsVerbosity(t *testing.T) {
	s := NewStream(&bytes.Buffer{}, 0)
	assert.Equal(t, VerbosityDots, s.Verbosity)
}

func TestStatusWords(t *testing.T) {
	for status, want := range map[types.TestStatus]string{
		types.StatusSuccess:           "ok",
		types.StatusError:             "ERROR",
		types.StatusFailure:           "FAIL",
		types.StatusSkipped:           "skipped",
		types.StatusExpectedFailure:   "expected failure",
		types.StatusUnexpectedSuccess: "unexpected success",
	} {
		assert.Equal(t, want, statusWord(status))
	}
}
