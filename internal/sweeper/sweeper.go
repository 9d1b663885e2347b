// Package sweeper periodically removes unpaid orders that were never verified.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Config holds sweeper configuration
type Config struct {
	Enabled  bool          `envconfig:"SWEEP_ENABLED" default:"true"`
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"`
	MaxAge   time.Duration `envconfig:"SWEEP_MAX_AGE" default:"24h"`
}

// StaleOrderSweeper deletes pending orders older than maxAge.
type StaleOrderSweeper interface {
	SweepStalePending(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Sweeper runs the stale order sweep on a fixed interval
type Sweeper struct {
	cfg    Config
	svc    StaleOrderSweeper
	logger *slog.Logger
}

// New creates a new sweeper
func New(cfg Config, svc StaleOrderSweeper, logger *slog.Logger) *Sweeper {
	return &Sweeper{cfg: cfg, svc: svc, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.cfg.Enabled || s.cfg.Interval <= 0 {
		s.logger.Info("stale order sweeper disabled")
		return nil
	}

	s.logger.Info("stale order sweeper started",
		"interval", s.cfg.Interval,
		"max_age", s.cfg.MaxAge,
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. Failures are logged and retried on the
// next tick.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	removed, err := s.svc.SweepStalePending(ctx, s.cfg.MaxAge)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("stale order sweep failed", "error", err)
		}
		return 0
	}
	if removed > 0 {
		s.logger.Info("stale order sweep complete", "removed", removed)
	}
	return removed
}
