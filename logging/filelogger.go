package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/types"
)

// RunDirectoryPrefix is the standardized prefix for per-run directories.
const RunDirectoryPrefix = "testrun-"

// ResultSink is an interface for different ways of consuming test results
type ResultSink interface {
	// Consume processes a single test result
	Consume(log *results.TestLog, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger handles writing test output to files. Each run gets its own
// testrun-<runID> directory with per-test log files split into passed/
// and failed/, plus a combined all.log.
type FileLogger struct {
	baseDir      string
	logDir       string
	failedDir    string
	passedDir    string
	allLogsFile  string
	mu           sync.Mutex
	sinks        []ResultSink
	asyncWriters map[string]*AsyncFile
	runID        string
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	// Copy so the caller can reuse its buffer
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

// processQueue processes the write queue in the background
func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	// Wait for all writes to complete
	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates a FileLogger rooted at baseDir for one run. The
// built-in sinks (combined log, per-test files) are always present;
// extra sinks are appended and complete in order.
func NewFileLogger(baseDir string, runID string, extraSinks ...ResultSink) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(logDir, "failed")
	passedDir := filepath.Join(logDir, "passed")

	dirs := []string{baseDir, logDir, failedDir, passedDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		failedDir:    failedDir,
		passedDir:    passedDir,
		allLogsFile:  filepath.Join(logDir, "all.log"),
		sinks:        make([]ResultSink, 0, 2+len(extraSinks)),
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}

	logger.sinks = append(logger.sinks, &AllLogsFileSink{logger: logger})
	logger.sinks = append(logger.sinks, &PerTestFileSink{
		logger:         logger,
		processedTests: make(map[string]bool),
	})
	logger.sinks = append(logger.sinks, extraSinks...)

	return logger, nil
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}

	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

// closeAllWriters closes all async writers
func (l *FileLogger) closeAllWriters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.asyncWriters {
		_ = writer.Close()
	}
	l.asyncWriters = make(map[string]*AsyncFile)
}

// LogTestResult fans one completed test log out to every sink.
func (l *FileLogger) LogTestResult(log *results.TestLog, runID string) error {
	for _, sink := range l.sinks {
		if err := sink.Consume(log, runID); err != nil {
			return fmt.Errorf("sink %T failed to consume result: %w", sink, err)
		}
	}
	return nil
}

// Complete finishes every sink and flushes the async writers.
func (l *FileLogger) Complete(runID string) error {
	var firstErr error
	for _, sink := range l.sinks {
		if err := sink.Complete(runID); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sink %T failed to complete: %w", sink, err)
		}
	}
	l.closeAllWriters()
	return firstErr
}

// LogDir returns the run's log directory.
func (l *FileLogger) LogDir() string {
	return l.logDir
}

// FailedDir returns the directory containing logs for failed tests.
func (l *FileLogger) FailedDir() string {
	return l.failedDir
}

// PassedDir returns the directory containing logs for passed tests.
func (l *FileLogger) PassedDir() string {
	return l.passedDir
}

// AllLogsFile returns the path of the combined log file.
func (l *FileLogger) AllLogsFile() string {
	return l.allLogsFile
}

// RunID returns the run this logger belongs to.
func (l *FileLogger) RunID() string {
	return l.runID
}

// DirectoryForRunID returns the log path for a specific runID.
func (l *FileLogger) DirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID), nil
}

// AllLogsFileSink appends every test's rendered block to the combined
// all.log file in consumption order.
type AllLogsFileSink struct {
	logger *FileLogger
}

// Consume renders one test log into the combined file.
func (s *AllLogsFileSink) Consume(log *results.TestLog, runID string) error {
	writer, err := s.logger.getAsyncWriter(s.logger.allLogsFile)
	if err != nil {
		return err
	}
	return writer.Write([]byte(renderTestLog(log)))
}

// Complete is a no-op; the logger closes the shared writer.
func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

// PerTestFileSink creates a dedicated log file for each test in the
// passed or failed directory, keyed by sanitized test path.
type PerTestFileSink struct {
	logger         *FileLogger
	mu             sync.Mutex
	processedTests map[string]bool
}

// Consume writes one test's block to its own file.
func (s *PerTestFileSink) Consume(log *results.TestLog, runID string) error {
	targetDir := s.logger.passedDir
	if isFailedStatus(log.EffectiveStatus()) {
		targetDir = s.logger.failedDir
	}
	path := filepath.Join(targetDir, testLogFilename(log)+".log")

	s.mu.Lock()
	if s.processedTests[path] {
		s.mu.Unlock()
		return nil
	}
	s.processedTests[path] = true
	s.mu.Unlock()

	writer, err := s.logger.getAsyncWriter(path)
	if err != nil {
		return err
	}
	return writer.Write([]byte(renderTestLog(log)))
}

// Complete is a no-op; the logger closes the writers.
func (s *PerTestFileSink) Complete(runID string) error {
	return nil
}

func isFailedStatus(status types.TestStatus) bool {
	return status == types.StatusFailure ||
		status == types.StatusError ||
		status == types.StatusUnexpectedSuccess
}

// testLogFilename builds a readable, filesystem-safe name for one test:
// the module's last path segment, the class and the test name.
func testLogFilename(log *results.TestLog) string {
	parts := []string{}
	if log.Module != "" {
		segs := strings.Split(log.Module, "/")
		parts = append(parts, segs[len(segs)-1])
	}
	if log.Class != "" {
		parts = append(parts, log.Class)
	}
	name := log.Name
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	parts = append(parts, name)
	return safeFilename(strings.Join(parts, "_"))
}

func safeFilename(s string) string {
	// Replace characters that might be problematic in filenames
	for _, bad := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " "} {
		s = strings.ReplaceAll(s, bad, "_")
	}
	return strings.ReplaceAll(s, "...", "")
}

// renderTestLog renders one test log as the plain-text block the file
// sinks write: status header, error summary for failures, captured
// records, then any subtest blocks indented beneath.
func renderTestLog(log *results.TestLog) string {
	var b strings.Builder

	status := log.EffectiveStatus()
	fmt.Fprintf(&b, "=== %s: %s (%.3fs)\n", strings.ToUpper(string(status)), log.Name, log.Duration().Seconds())
	if log.Err != "" {
		fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 70))
		fmt.Fprintf(&b, "%s\n", stripANSIEscapeSequences(log.Err))
		fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 70))
	}
	for _, rec := range log.Records {
		b.WriteString(renderRecord(rec, ""))
	}
	for _, sub := range log.SubTests {
		fmt.Fprintf(&b, "    --- %s: %s\n", strings.ToUpper(string(sub.EffectiveStatus())), sub.Name)
		if sub.Err != "" {
			fmt.Fprintf(&b, "        %s\n", stripANSIEscapeSequences(strings.ReplaceAll(sub.Err, "\n", "\n        ")))
		}
		for _, rec := range sub.Records {
			b.WriteString(renderRecord(rec, "    "))
		}
	}
	b.WriteString("\n")
	return b.String()
}

func renderRecord(rec results.LogRecord, indent string) string {
	var b strings.Builder
	b.WriteString(indent)
	b.WriteString(rec.When.Format(time.DateTime))
	b.WriteString(" ")
	b.WriteString(rec.Level.String())
	b.WriteString(" ")
	b.WriteString(stripANSIEscapeSequences(rec.Message))
	for _, attr := range rec.Attrs {
		fmt.Fprintf(&b, " %s=%s", attr.Key, stripANSIEscapeSequences(attr.Value.String()))
	}
	b.WriteString("\n")
	return b.String()
}

// stripANSIEscapeSequences removes terminal color and style escape
// sequences so log files stay readable in plain editors.
func stripANSIEscapeSequences(s string) string {
	return stripansi.Strip(s)
}

// CaptureSink adapts a slog handler into a ResultSink, replaying each
// consumed test's captured records into it. It backs the console mirror
// of per-test logs.
type CaptureSink struct {
	Handler slog.Handler
}

// Consume replays the test's records.
func (s *CaptureSink) Consume(log *results.TestLog, runID string) error {
	Replay(s.Handler, log.Records)
	for _, sub := range log.SubTests {
		Replay(s.Handler, sub.Records)
	}
	return nil
}

// Complete is a no-op.
func (s *CaptureSink) Complete(runID string) error {
	return nil
}
