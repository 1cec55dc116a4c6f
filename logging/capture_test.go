package logging

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureHandlerBuffersRecords(t *testing.T) {
	h := NewCaptureHandler()
	logger := slog.New(h)

	logger.Info("starting checkout", "cart", 3)
	logger.Error("payment declined", "code", "card_declined")

	records := h.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "starting checkout", records[0].Message)
	assert.Equal(t, slog.LevelInfo, records[0].Level)
	require.Len(t, records[0].Attrs, 1)
	assert.Equal(t, "cart", records[0].Attrs[0].Key)
	assert.Equal(t, slog.LevelError, records[1].Level)
}

func TestCaptureHandlerWithAttrsAndGroupShareBuffer(t *testing.T) {
	h := NewCaptureHandler()
	base := slog.New(h)

	scoped := base.With("test", "TestAdd").WithGroup("db")
	scoped.Info("query ran", "rows", 10)
	base.Info("plain")

	records := h.Records()
	require.Len(t, records, 2, "clones must share the buffer")

	keys := []string{}
	for _, a := range records[0].Attrs {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{"test", "db.rows"}, keys)
}

func TestCaptureHandlerConcurrentUse(t *testing.T) {
	h := NewCaptureHandler()
	logger := slog.New(h)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info("tick")
			}
		}()
	}
	wg.Wait()
	assert.Len(t, h.Records(), 400)
}

func TestReplayIntoRealHandler(t *testing.T) {
	capture := NewCaptureHandler()
	logger := slog.New(capture)
	logger.Warn("disk almost full", "pct", 93)

	var buf bytes.Buffer
	out := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	Replay(out, capture.Records())

	text := buf.String()
	assert.Contains(t, text, "disk almost full")
	assert.Contains(t, text, "pct=93")
	assert.Contains(t, text, "WARN")
}

func TestReplayHonorsHandlerLevel(t *testing.T) {
	capture := NewCaptureHandler()
	logger := slog.New(capture)
	logger.Debug("noise")
	logger.Error("signal")

	var buf bytes.Buffer
	out := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	Replay(out, capture.Records())

	assert.NotContains(t, buf.String(), "noise")
	assert.Contains(t, buf.String(), "signal")
}
