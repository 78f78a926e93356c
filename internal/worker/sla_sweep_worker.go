package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/service"
)

// Sweeper runs one breach sweep.
type Sweeper interface {
	Run(ctx context.Context, opts service.SweepOptions) (service.SweepResult, error)
}

// SLASweepWorker runs the breach sweep on a fixed interval. A tick that
// arrives while the previous sweep is still running is skipped.
type SLASweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	opts     service.SweepOptions
	logger   *zap.Logger

	running sync.Mutex
}

// NewSLASweepWorker creates the worker.
func NewSLASweepWorker(sweeper Sweeper, interval time.Duration, notify bool, logger *zap.Logger) *SLASweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLASweepWorker{
		sweeper:  sweeper,
		interval: interval,
		opts:     service.SweepOptions{Notify: notify},
		logger:   logger,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (w *SLASweepWorker) Start(ctx context.Context) {
	w.logger.Info("sla sweep worker started",
		zap.Duration("interval", w.interval),
		zap.Bool("notify", w.opts.Notify))
	defer w.logger.Info("sla sweep worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps unless a sweep is already in progress. It reports whether a
// sweep ran.
func (w *SLASweepWorker) RunOnce(ctx context.Context) bool {
	if !w.running.TryLock() {
		w.logger.Warn("sla sweep still running, skipping tick")
		return false
	}
	defer w.running.Unlock()

	if _, err := w.sweeper.Run(ctx, w.opts); err != nil {
		if errors.Is(err, context.Canceled) {
			return true
		}
		w.logger.Error("sla sweep failed", zap.Error(err))
	}
	return true
}
