// Package scheduler owns the main loop: ticks on an interval and runs each
// source's pipeline sequentially.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nazmulh/jobdelta/internal/pipeline"
)

// Scheduler drives all configured runners on a fixed interval. Runners execute
// sequentially with a pause between sources so two scrapers never hammer the
// network at the same time.
type Scheduler struct {
	runners  []*pipeline.Runner
	interval time.Duration
	pause    time.Duration
	logger   *slog.Logger
}

// New creates a scheduler. pause is the gap between consecutive sources within
// one cycle.
func New(runners []*pipeline.Runner, interval, pause time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runners:  runners,
		interval: interval,
		pause:    pause,
		logger:   logger,
	}
}

// Run starts the loop. It runs one immediate cycle, then ticks on the
// configured interval. It returns nil when ctx is cancelled (graceful
// shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"interval", s.interval.String(),
		"sources", len(s.runners),
	)

	s.runAll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(s.interval):
			s.runAll(ctx)
		}
	}
}

// runAll executes one full cycle. A failed source never blocks the others;
// its error is logged and the cycle moves on.
func (s *Scheduler) runAll(ctx context.Context) {
	for i, r := range s.runners {
		if ctx.Err() != nil {
			return
		}

		if _, err := r.Run(ctx); err != nil {
			s.logger.Error("run failed",
				"source", r.Name(),
				"error", err,
			)
		}

		if i < len(s.runners)-1 && s.pause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pause):
			}
		}
	}
}
