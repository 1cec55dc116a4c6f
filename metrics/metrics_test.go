package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/percolator-ci/percolator/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("test__error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("test", nil)

	// Test with actual error
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordTest(t *testing.T) {
	// Test recording for different status values
	RecordTest("example.com/checkout", "run1", "CartSuite", "TestAdd", types.StatusSuccess, time.Second)
	RecordTest("example.com/checkout", "run1", "CartSuite", "TestRemove", types.StatusFailure, 500*time.Millisecond)
	RecordTest("example.com/checkout", "run1", "QuoteSuite", "TestLegacy", types.StatusSkipped, 100*time.Millisecond)

	// Invalid status values are dropped rather than recorded
	RecordTest("example.com/checkout", "run1", "CartSuite", "TestOdd", types.TestStatus("bogus"), time.Second)
}

func TestRecordRun(t *testing.T) {
	RecordRun("run1", "pass", 2, 2, 0, time.Second)
	RecordRun("run2", "fail", 2, 1, 1, time.Second)
}
