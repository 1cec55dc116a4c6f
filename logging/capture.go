package logging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/percolator-ci/percolator/results"
)

// CaptureHandler is a slog.Handler that buffers records in memory
// instead of writing them anywhere. One capture is attached per running
// test; its records travel with the test's log across worker merges and
// are replayed into the real handlers afterwards.
type CaptureHandler struct {
	buf   *captureBuffer
	attrs []slog.Attr
	group string
}

type captureBuffer struct {
	mu      sync.Mutex
	records []results.LogRecord
}

// NewCaptureHandler creates an empty capture.
func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{buf: &captureBuffer{}}
}

// Enabled always reports true; captures keep every level so verbosity is
// a rendering decision, not a collection one.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle buffers one record.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})

	h.buf.mu.Lock()
	h.buf.records = append(h.buf.records, results.LogRecord{
		When:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	h.buf.mu.Unlock()
	return nil
}

// WithAttrs returns a capture sharing this one's buffer with the given
// attributes pre-applied.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(a))
	}
	return &clone
}

// WithGroup returns a capture sharing this one's buffer that prefixes
// subsequent attribute keys with the group name.
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group = clone.group + "." + name
	}
	return &clone
}

func (h *CaptureHandler) qualify(a slog.Attr) slog.Attr {
	if h.group == "" {
		return a
	}
	return slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
}

// Records returns a snapshot of the captured records in arrival order.
func (h *CaptureHandler) Records() []results.LogRecord {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	out := make([]results.LogRecord, len(h.buf.records))
	copy(out, h.buf.records)
	return out
}

// Replay re-emits captured records into a real handler, preserving their
// original timestamps and levels.
func Replay(h slog.Handler, records []results.LogRecord) {
	ctx := context.Background()
	for _, rec := range records {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		out := slog.NewRecord(rec.When, rec.Level, rec.Message, 0)
		out.AddAttrs(rec.Attrs...)
		_ = h.Handle(ctx, out)
	}
}
