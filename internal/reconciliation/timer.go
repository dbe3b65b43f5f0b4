package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically runs full reconciliation passes.
type Timer struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
	stop       chan struct{}
	running    atomic.Bool
}

// NewTimer creates a timer that runs a pass every interval.
func NewTimer(reconciler *Reconciler, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Timer{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the periodic loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	// One pass at startup so a restart doesn't wait a full interval to
	// pick up payments that resolved while the process was down.
	t.safeRun(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in reconciliation timer", "panic", fmt.Sprint(r))
		}
	}()

	t.reconciler.ReconcileAll(ctx)
}
