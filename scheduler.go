package percolator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RunFunc executes one complete brew under the given run ID: resolve
// nothing, run the prepared batches, deliver results. The scheduler
// owns run-ID minting so every brew gets a distinct identity before
// any of its artifacts exist.
type RunFunc func(runID string) error

// TestScheduler decides when brews happen: exactly once, or immediately
// and then on a fixed interval until stopped.
type TestScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(run RunFunc)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// DefaultTestScheduler mints a fresh run ID for every brew and hands it
// to the registered callback. The first brew always happens
// synchronously inside Start, in both modes, so resolution or engine
// problems surface as a startup error instead of a log line; in
// continuous mode later brews run on a ticker and only log their
// errors.
type DefaultTestScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   *slog.Logger

	run      RunFunc
	newRunID func() string

	brews    atomic.Int64
	stopped  atomic.Bool
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func NewDefaultTestScheduler(interval time.Duration, runOnce bool, logger *slog.Logger) *DefaultTestScheduler {
	s := &DefaultTestScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		newRunID: func() string { return uuid.New().String() },
	}
	// Not running until Start.
	s.stopped.Store(true)
	return s
}

// RegisterCallback sets the brew to run on each tick. Must be called
// before Start.
func (s *DefaultTestScheduler) RegisterCallback(run RunFunc) {
	s.run = run
}

// Start performs the first brew synchronously and returns its error.
// In continuous mode a nil first brew also launches the ticker loop,
// which keeps brewing until Stop or context cancellation.
func (s *DefaultTestScheduler) Start(ctx context.Context) error {
	if s.run == nil {
		return errors.New("no run callback registered")
	}
	s.stopped.Store(false)

	if s.runOnce {
		defer s.stopped.Store(true)
		return s.brew()
	}

	if err := s.brew(); err != nil {
		s.stopped.Store(true)
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(loopCtx)
	return nil
}

// brew runs the callback once under a fresh run ID.
func (s *DefaultTestScheduler) brew() error {
	runID := s.newRunID()
	n := s.brews.Add(1)
	s.logger.Info("Starting brew", "run_id", runID, "brew", n)

	start := time.Now()
	if err := s.run(runID); err != nil {
		s.logger.Error("Brew failed", "run_id", runID, "error", err)
		return err
	}
	s.logger.Info("Brew finished", "run_id", runID, "elapsed", time.Since(start))
	return nil
}

func (s *DefaultTestScheduler) loop(ctx context.Context) {
	defer close(s.loopDone)
	defer s.stopped.Store(true)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.stopped.Load() {
				return
			}
			// Periodic brew errors are already logged; the loop keeps
			// its schedule.
			_ = s.brew() //nolint:errcheck
		case <-ctx.Done():
			s.logger.Debug("Scheduler loop exiting", "reason", ctx.Err())
			return
		}
	}
}

// Stop ends the schedule. Idempotent; a brew already in flight finishes.
func (s *DefaultTestScheduler) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Stopped reports whether the schedule is over, whether through Stop,
// context cancellation or run-once completion.
func (s *DefaultTestScheduler) Stopped() bool {
	return s.stopped.Load()
}

// Brews returns how many brews the scheduler has started.
func (s *DefaultTestScheduler) Brews() int64 {
	return s.brews.Load()
}

// WaitForShutdown blocks until the ticker loop has exited, or the
// context expires. Returns immediately when no loop ever started.
func (s *DefaultTestScheduler) WaitForShutdown(ctx context.Context) error {
	if s.loopDone == nil {
		return nil
	}
	select {
	case <-s.loopDone:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for scheduler to wind down", "error", ctx.Err())
		return ctx.Err()
	}
}
