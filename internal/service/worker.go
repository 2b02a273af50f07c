package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrWorker marks failures of the scheduled sweep loop.
var ErrWorker = errors.New("janitor worker failed")

const sweepTimeout = 5 * time.Minute

// JanitorWorker runs janitor sweeps on a fixed schedule. Sweeps never
// overlap; an in-flight sweep always finishes before Stop returns.
type JanitorWorker struct {
	janitor *Janitor
	logger  *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewJanitorWorker(janitor *Janitor, logger *zap.Logger) *JanitorWorker {
	return &JanitorWorker{
		janitor:  janitor,
		logger:   logger,
		interval: janitor.Config().SweepInterval(),
		stopCh:   make(chan struct{}),
	}
}

func (w *JanitorWorker) SetInterval(d time.Duration) {
	w.interval = d
}

// Start launches the sweep loop in the background. Sweep errors are logged
// and the loop keeps running.
func (w *JanitorWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("janitor worker started", zap.Duration("interval", w.interval))

		for {
			select {
			case <-ticker.C:
				w.runSweep()
			case <-w.stopCh:
				m := w.janitor.Metrics()
				w.logger.Info("janitor worker stopped",
					zap.Int("sweeps", m.SweepCount),
					zap.Int("total_deleted", m.TotalDeleted()),
					zap.Int("total_promoted", m.TotalPromoted()),
					zap.Int("total_demoted", m.TotalDemoted()))
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (w *JanitorWorker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *JanitorWorker) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	metrics, err := w.janitor.Sweep(ctx)
	if err != nil {
		w.logger.Error("scheduled sweep failed", zap.Error(err))
		return
	}

	w.logger.Info("scheduled sweep finished",
		zap.Int("total_deleted", metrics.TotalDeleted()),
		zap.Int("total_promoted", metrics.TotalPromoted()),
		zap.Int("total_demoted", metrics.TotalDemoted()))
}

// RunCycles runs a fixed number of sweeps synchronously. The first cycle
// runs immediately; later cycles wait one interval. Unlike the background
// loop, a sweep error aborts the run.
func (w *JanitorWorker) RunCycles(ctx context.Context, cycles int) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("janitor worker running bounded cycles",
		zap.Int("cycles", cycles),
		zap.Duration("interval", w.interval))

	for cycle := 1; cycle <= cycles; cycle++ {
		if cycle > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrWorker, ctx.Err())
			case <-ticker.C:
			}
		}

		metrics, err := w.janitor.Sweep(ctx)
		if err != nil {
			w.logger.Error("sweep cycle failed",
				zap.Int("cycle", cycle),
				zap.Int("cycles", cycles),
				zap.Error(err))
			return fmt.Errorf("%w: cycle %d of %d: %w", ErrWorker, cycle, cycles, err)
		}

		w.logger.Info("sweep cycle finished",
			zap.Int("cycle", cycle),
			zap.Int("cycles", cycles),
			zap.Int("total_deleted", metrics.TotalDeleted()),
			zap.Int("total_promoted", metrics.TotalPromoted()),
			zap.Int("total_demoted", metrics.TotalDemoted()))
	}

	m := w.janitor.Metrics()
	w.logger.Info("janitor worker finished",
		zap.Int("sweeps", m.SweepCount),
		zap.Int("total_deleted", m.TotalDeleted()),
		zap.Int("total_promoted", m.TotalPromoted()),
		zap.Int("total_demoted", m.TotalDemoted()))
	return nil
}
