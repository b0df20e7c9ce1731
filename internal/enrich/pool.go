// Package enrich fetches full detail for newly discovered candidates through
// a bounded pool of workers, each owning one long-lived enrichment session.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nazmulh/jobdelta/internal/model"
)

// Stats counts per-item outcomes of one pool run.
type Stats struct {
	Enriched    int
	Unavailable int
	Errored     int
}

// Pool drains a queue of candidates with at most Concurrency workers in
// flight. Workers pause Delay between successive items as a politeness
// backoff; it is failure avoidance, not a correctness requirement.
type Pool struct {
	factory     model.SessionFactory
	concurrency int
	delay       time.Duration
	logger      *slog.Logger
}

// NewPool creates a pool. concurrency values below 1 are clamped to 1.
func NewPool(factory model.SessionFactory, concurrency int, delay time.Duration, logger *slog.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		factory:     factory,
		concurrency: concurrency,
		delay:       delay,
		logger:      logger,
	}
}

// Run enriches every candidate and returns the successfully fetched records
// in completion order (not submission order). Individual failures are
// isolated: a transient error drops the item from this run only, and a
// confirmed-gone posting is excluded without being counted as an error.
// Run returns an error only when ctx is cancelled or a session cannot be
// opened at all.
func (p *Pool) Run(ctx context.Context, candidates []model.Candidate) ([]model.Record, Stats, error) {
	if len(candidates) == 0 {
		return nil, Stats{}, nil
	}

	// The channel hands out each candidate exactly once; closing it up front
	// lets workers drain until empty.
	queue := make(chan model.Candidate, len(candidates))
	for _, c := range candidates {
		queue <- c
	}
	close(queue)

	workers := p.concurrency
	if len(candidates) < workers {
		workers = len(candidates)
	}

	var (
		mu      sync.Mutex
		records []model.Record
		stats   Stats
		wg      sync.WaitGroup
	)

	sessionErrs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			session, err := p.factory.NewSession(ctx)
			if err != nil {
				p.logger.Error("failed to open enrichment session", "worker", workerID, "error", err)
				sessionErrs <- err
				return
			}
			defer session.Close()

			first := true
			for c := range queue {
				if ctx.Err() != nil {
					return
				}
				if !first && p.delay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(p.delay):
					}
				}
				first = false

				rec, err := session.Enrich(ctx, c)
				mu.Lock()
				switch {
				case err == nil:
					records = append(records, rec)
					stats.Enriched++
				case errors.Is(err, model.ErrUnavailable):
					stats.Unavailable++
					p.logger.Info("posting confirmed gone", "identity", c.Identity)
				default:
					stats.Errored++
					p.logger.Warn("enrichment failed, deferring to next run", "identity", c.Identity, "error", err)
				}
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	close(sessionErrs)

	if ctx.Err() != nil {
		return records, stats, ctx.Err()
	}

	// If no worker managed to open a session, nothing was attempted: surface
	// the failure instead of silently reporting zero results.
	if stats.Enriched+stats.Unavailable+stats.Errored == 0 {
		if err := <-sessionErrs; err != nil {
			return nil, stats, err
		}
	}

	return records, stats, nil
}
