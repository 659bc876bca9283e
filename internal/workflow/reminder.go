package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/JaimeStill/arbiter/pkg/lifecycle"
)

// Reminder periodically sweeps requests parked longer than after. It logs
// and appends audit entries but never resolves a suspension point.
type Reminder struct {
	sys      System
	after    time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewReminder creates a Reminder. A non-positive after disables it.
func NewReminder(sys System, after, interval time.Duration, logger *slog.Logger) *Reminder {
	return &Reminder{
		sys:      sys,
		after:    after,
		interval: interval,
		logger:   logger.With("system", "reminder"),
		now:      time.Now,
	}
}

// Start runs the sweep loop until the coordinator shuts down.
func (r *Reminder) Start(lc *lifecycle.Coordinator) error {
	if r.after <= 0 || r.interval <= 0 {
		r.logger.Info("reminders disabled")
		return nil
	}

	r.logger.Info("starting reminders", "after", r.after, "interval", r.interval)

	lc.Go(func(ctx context.Context) {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("reminders stopped")
				return
			case <-ticker.C:
				n, err := r.sys.Sweep(ctx, r.now().Add(-r.after))
				if err != nil {
					r.logger.Error("reminder sweep failed", "error", err)
					continue
				}
				if n > 0 {
					r.logger.Info("reminder sweep complete", "reminded", n)
				}
			}
		}
	})

	return nil
}
