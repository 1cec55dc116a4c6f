package percolator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brewRecorder collects the run IDs the scheduler hands out.
type brewRecorder struct {
	mu   sync.Mutex
	ids  []string
	ch   chan string
	fail error
}

func newBrewRecorder() *brewRecorder {
	return &brewRecorder{ch: make(chan string, 32)}
}

func (r *brewRecorder) run(runID string) error {
	r.mu.Lock()
	r.ids = append(r.ids, runID)
	r.mu.Unlock()
	select {
	case r.ch <- runID:
	default:
	}
	return r.fail
}

func (r *brewRecorder) runIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func (r *brewRecorder) waitForBrews(t *testing.T, count int) {
	t.Helper()
	for len(r.runIDs()) < count {
		select {
		case <-r.ch:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for brew %d/%d", len(r.runIDs())+1, count)
		}
	}
}

func TestSchedulerRunOnceMintsOneRunID(t *testing.T) {
	rec := newBrewRecorder()
	s := NewDefaultTestScheduler(10*time.Millisecond, true, discardLogger())
	s.RegisterCallback(rec.run)

	assert.True(t, s.Stopped(), "no schedule before Start")
	require.NoError(t, s.Start(context.Background()))

	ids := rec.runIDs()
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, int64(1), s.Brews())
	assert.True(t, s.Stopped(), "run-once schedule ends with the brew")

	// No loop was launched, so waiting returns immediately.
	require.NoError(t, s.WaitForShutdown(context.Background()))

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, rec.runIDs(), 1, "no further brews in run-once mode")
}

func TestSchedulerContinuousBrewsGetDistinctRunIDs(t *testing.T) {
	rec := newBrewRecorder()
	s := NewDefaultTestScheduler(10*time.Millisecond, false, discardLogger())
	next := 0
	s.newRunID = func() string {
		next++
		return fmt.Sprintf("brew-%d", next)
	}
	s.RegisterCallback(rec.run)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	rec.waitForBrews(t, 3)
	require.NoError(t, s.Stop())
	require.NoError(t, s.WaitForShutdown(context.Background()))

	ids := rec.runIDs()
	assert.Equal(t, "brew-1", ids[0], "first brew happens synchronously in Start")
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "run ID %s minted twice", id)
		seen[id] = true
	}
	assert.GreaterOrEqual(t, s.Brews(), int64(3))
}

func TestSchedulerFirstBrewErrorStopsStartup(t *testing.T) {
	rec := newBrewRecorder()
	rec.fail = errors.New("engine config unreadable")

	s := NewDefaultTestScheduler(10*time.Millisecond, false, discardLogger())
	s.RegisterCallback(rec.run)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, rec.fail, err)
	assert.True(t, s.Stopped(), "a failed first brew ends the schedule")

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, rec.runIDs(), 1, "no ticker loop after a failed first brew")
}

func TestSchedulerLaterBrewErrorsKeepTheSchedule(t *testing.T) {
	rec := newBrewRecorder()
	s := NewDefaultTestScheduler(5*time.Millisecond, false, discardLogger())
	s.RegisterCallback(func(runID string) error {
		if err := rec.run(runID); err != nil {
			return err
		}
		if len(rec.runIDs()) > 1 {
			return errors.New("transient brew failure")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	rec.waitForBrews(t, 3)
	require.NoError(t, s.Stop())
	require.NoError(t, s.WaitForShutdown(context.Background()))
}

func TestSchedulerRequiresCallback(t *testing.T) {
	s := NewDefaultTestScheduler(time.Second, true, discardLogger())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run callback registered")
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	rec := newBrewRecorder()
	s := NewDefaultTestScheduler(10*time.Millisecond, false, discardLogger())
	s.RegisterCallback(rec.run)

	// Stopping before Start is a no-op.
	require.NoError(t, s.Stop())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.NoError(t, s.WaitForShutdown(context.Background()))

	brewsAtStop := len(rec.runIDs())
	time.Sleep(40 * time.Millisecond)
	assert.Len(t, rec.runIDs(), brewsAtStop, "no brews after Stop")
}

func TestSchedulerStopsOnContextCancellation(t *testing.T) {
	rec := newBrewRecorder()
	s := NewDefaultTestScheduler(10*time.Millisecond, false, discardLogger())
	s.RegisterCallback(rec.run)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	assert.False(t, s.Stopped())

	cancel()
	require.NoError(t, s.WaitForShutdown(context.Background()))
	assert.True(t, s.Stopped())
}

func TestSchedulerWaitForShutdownHonorsContext(t *testing.T) {
	block := make(chan struct{})
	s := NewDefaultTestScheduler(time.Millisecond, false, discardLogger())
	calls := 0
	s.RegisterCallback(func(runID string) error {
		calls++
		if calls > 1 {
			<-block
		}
		return nil
	})

	require.NoError(t, s.Start(context.Background()))

	// A brew is wedged, so the loop cannot exit before the deadline.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WaitForShutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	require.NoError(t, s.WaitForShutdown(context.Background()))
}
