package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/polyfolio/syncd/internal/domain"
)

// Scheduler runs full sync passes on a repeating interval. Each run takes the
// distributed pass lock, so concurrent instances and HTTP-triggered passes
// never overlap; a held lock means somebody else is already doing the work.
type Scheduler struct {
	orch     *Orchestrator
	interval time.Duration
	params   Params
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler driving the given orchestrator.
func NewScheduler(orch *Orchestrator, interval time.Duration, params Params, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orch:     orch,
		interval: interval,
		params:   params,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// RunLoop runs a pass immediately, then on every tick until the context is
// cancelled.
func (s *Scheduler) RunLoop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler starting",
		slog.Duration("interval", s.interval),
	)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	_, err := s.orch.RunPassLocked(ctx, s.params)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLockHeld):
		s.logger.InfoContext(ctx, "pass already running elsewhere, skipping tick")
	case ctx.Err() != nil:
	default:
		s.logger.ErrorContext(ctx, "scheduled pass failed",
			slog.String("error", err.Error()),
		)
	}
}
