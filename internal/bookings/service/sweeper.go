package service

import (
	"context"
	"time"

	"roombook/pkg/clock"
	"roombook/pkg/logger"
)

// Sweeper runs the pending-booking expiry on a fixed interval. Every instance
// may run one; the compare-and-set status write keeps them from
// double-cancelling.
type Sweeper struct {
	svc      BookingService
	clock    clock.Clock
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(svc BookingService, clk clock.Clock, interval time.Duration, log *logger.Logger) *Sweeper {
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		svc:      svc,
		clock:    clk,
		interval: interval,
		log:      log.Component("sweeper"),
	}
}

// Run blocks until ctx is done.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("Expiry sweeper started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Expiry sweeper stopped")
			return
		case <-ticker.C():
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
	defer cancel()

	if _, err := w.svc.ExpirePending(ctx); err != nil {
		w.log.Error("Expiry sweep failed", "error", err)
	}
}
