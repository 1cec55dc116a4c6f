package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

func sampleLog(name string, status types.TestStatus) *results.TestLog {
	log := results.NewTestLog(name)
	log.Module = "github.com/acme/shop/tests/cart"
	log.Class = "CartSuite"
	log.Status = status
	log.Started = time.Now().Add(-time.Second)
	log.Stopped = time.Now()
	return log
}

func TestNewFileLoggerCreatesRunLayout(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewFileLogger(baseDir, "20260824-abc")
	require.NoError(t, err)

	runDir := filepath.Join(baseDir, "testrun-20260824-abc")
	assert.Equal(t, runDir, logger.LogDir())
	assert.DirExists(t, filepath.Join(runDir, "passed"))
	assert.DirExists(t, filepath.Join(runDir, "failed"))
	assert.Equal(t, "20260824-abc", logger.RunID())

	dir, err := logger.DirectoryForRunID("other")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(baseDir, "testrun-other"), dir)

	_, err = logger.DirectoryForRunID("")
	assert.Error(t, err)
}

func TestNewFileLoggerValidation(t *testing.T) {
	_, err := NewFileLogger("", "run")
	assert.Error(t, err)
	_, err = NewFileLogger(t.TempDir(), "")
	assert.Error(t, err)
}

func TestLogTestResultWritesPerTestAndCombinedFiles(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewFileLogger(baseDir, "run1")
	require.NoError(t, err)

	pass := sampleLog("github.com/acme/shop/tests/cart.CartSuite.TestAdd", types.StatusSuccess)
	pass.Records = []results.LogRecord{{
		When:    time.Now(),
		Level:   slog.LevelInfo,
		Message: "\x1b[32madded item\x1b[0m",
		Attrs:   []slog.Attr{slog.String("sku", "A-1")},
	}}

	fail := sampleLog("github.com/acme/shop/tests/cart.CartSuite.TestRemove", types.StatusFailure)
	fail.Err = "expected 0 items, found 1"

	require.NoError(t, logger.LogTestResult(pass, "run1"))
	require.NoError(t, logger.LogTestResult(fail, "run1"))
	require.NoError(t, logger.Complete("run1"))

	passFile := filepath.Join(logger.PassedDir(), "cart_CartSuite_TestAdd.log")
	passContent, err := os.ReadFile(passFile)
	require.NoError(t, err)
	assert.Contains(t, string(passContent), "SUCCESS")
	assert.Contains(t, string(passContent), "added item")
	assert.NotContains(t, string(passContent), "\x1b[32m", "ANSI sequences are stripped")
	assert.Contains(t, string(passContent), "sku=A-1")

	failFile := filepath.Join(logger.FailedDir(), "cart_CartSuite_TestRemove.log")
	failContent, err := os.ReadFile(failFile)
	require.NoError(t, err)
	assert.Contains(t, string(failContent), "FAILURE")
	assert.Contains(t, string(failContent), "expected 0 items, found 1")

	all, err := os.ReadFile(logger.AllLogsFile())
	require.NoError(t, err)
	assert.Contains(t, string(all), "TestAdd")
	assert.Contains(t, string(all), "TestRemove")
}

func TestPerTestFileSinkDeduplicates(t *testing.T) {
	logger, err := NewFileLogger(t.TempDir(), "run2")
	require.NoError(t, err)

	log := sampleLog("github.com/acme/shop/tests/cart.CartSuite.TestAdd", types.StatusSuccess)
	require.NoError(t, logger.LogTestResult(log, "run2"))
	require.NoError(t, logger.LogTestResult(log, "run2"))
	require.NoError(t, logger.Complete("run2"))

	entries, err := os.ReadDir(logger.PassedDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRenderTestLogIncludesSubTests(t *testing.T) {
	log := sampleLog("github.com/acme/shop/tests/cart.CartSuite.TestBulk", types.StatusUnset)
	sub := results.NewTestLog(log.Name + "/item-2")
	sub.Status = types.StatusFailure
	sub.Err = "price mismatch"
	log.AddSubTest(sub)

	text := renderTestLog(log)
	assert.Contains(t, text, "=== FAILURE:", "parent derives from subtests")
	assert.Contains(t, text, "--- FAILURE: "+log.Name+"/item-2")
	assert.Contains(t, text, "price mismatch")
}

func TestAsyncFileWritesInBackground(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	af, err := NewAsyncFile(path)
	require.NoError(t, err)

	require.NoError(t, af.Write([]byte("hello ")))
	require.NoError(t, af.Write([]byte("world\n")))
	require.NoError(t, af.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(content))

	assert.Error(t, af.Write([]byte("late")), "writes after close fail")
}

func TestCaptureSinkReplaysIntoHandler(t *testing.T) {
	capture := NewCaptureHandler()
	slog.New(capture).Info("from the test")

	log := sampleLog("github.com/acme/shop/tests/cart.CartSuite.TestAdd", types.StatusSuccess)
	log.Records = capture.Records()

	target := NewCaptureHandler()
	sink := &CaptureSink{Handler: target}
	require.NoError(t, sink.Consume(log, "run3"))
	require.NoError(t, sink.Complete("run3"))

	records := target.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "from the test", records[0].Message)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in, slog.LevelInfo), "level %q", tt.in)
	}
}
