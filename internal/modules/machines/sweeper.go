package machines

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically marks silent machines offline until its context ends.
type Sweeper struct {
	svc      ServiceInterface
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(svc ServiceInterface, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.svc.SweepOffline(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WarnContext(ctx, "offline sweep failed", "err", err)
		}
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "machines marked offline", "count", n)
	}
}
