// Package pipeline drives one incremental discovery run per source: it loads
// the previous snapshot, picks the rotation batch, discovers, reconciles,
// enriches and commits.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nazmulh/jobdelta/internal/enrich"
	"github.com/nazmulh/jobdelta/internal/model"
	"github.com/nazmulh/jobdelta/internal/reconcile"
	"github.com/nazmulh/jobdelta/internal/rotation"
	"github.com/nazmulh/jobdelta/internal/snapshot"
)

// ErrSourceUnavailable marks a run whose discovery produced nothing usable.
// The snapshot is left untouched and the rotation counter does not advance,
// so the next run retries the same batch.
var ErrSourceUnavailable = errors.New("discovery produced no usable candidates")

// Suggester proposes new search terms from what previous runs discovered.
// Implementations live in internal/expand.
type Suggester interface {
	SuggestKeywords(ctx context.Context, snapshot []model.Record, known []string) ([]string, error)
	SuggestLocations(ctx context.Context, snapshot []model.Record, known []string) ([]string, error)
}

// Summary reports what one run did.
type Summary struct {
	Source         string
	Discovered     int // candidates with a stable identity
	New            int // enriched and added to the snapshot
	Removed        int
	Unchanged      int
	Errored        int // enrichment failures deferred to the next run
	Unavailable    int // confirmed-gone postings
	GuardTriggered bool
}

// Deps wires a Runner. All fields are required except Suggester and Notifier.
type Deps struct {
	Source     string
	Discovery  model.DiscoverySource
	Pool       *enrich.Pool
	Store      snapshot.Store
	Scheduler  *rotation.Scheduler
	Reconciler *reconcile.Reconciler
	Suggester  Suggester
	Notifier   model.Notifier
	Logger     *slog.Logger
}

// Runner owns the full incremental pipeline for a single source.
type Runner struct {
	deps Deps
	now  func() time.Time
}

// NewRunner creates a runner wired with all its dependencies.
func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps, now: time.Now}
}

// Name returns the source this runner drives.
func (r *Runner) Name() string { return r.deps.Source }

// Run executes one pipeline cycle. Per-item enrichment failures never abort
// the run; only total discovery failure and persistence failure are fatal.
// The rotation counter advances whenever discovery ran, regardless of
// enrichment outcome.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	d := r.deps
	sum := Summary{Source: d.Source}

	existing, err := d.Store.LoadSnapshot()
	if err != nil {
		return sum, fmt.Errorf("%s: load snapshot: %w", d.Source, err)
	}
	state, err := d.Store.LoadState()
	if err != nil {
		return sum, fmt.Errorf("%s: load state: %w", d.Source, err)
	}

	batch := d.Scheduler.BatchFor(state.RunCount)
	r.expand(ctx, existing, &state, &batch)

	d.Logger.Info("starting discovery",
		"source", d.Source,
		"run", state.RunCount,
		"batch", batch.BatchIndex,
		"batches", batch.NumBatches,
		"keywords", len(batch.Keywords),
		"locations", len(batch.Locations),
	)

	candidates, err := d.Discovery.Discover(ctx, model.Batch{
		Keywords:  batch.Keywords,
		Locations: batch.Locations,
	})
	if err != nil {
		return sum, fmt.Errorf("%s: discovery: %w", d.Source, err)
	}

	// Items with no stable identity cannot be reconciled; drop them before
	// they can poison the diff.
	usable := candidates[:0]
	for _, c := range candidates {
		if c.Identity != "" {
			usable = append(usable, c)
		}
	}
	sum.Discovered = len(usable)
	if len(usable) == 0 {
		return sum, fmt.Errorf("%s: %w", d.Source, ErrSourceUnavailable)
	}

	byIdentity := make(map[string]model.Candidate, len(usable))
	discovered := make(map[string]bool, len(usable))
	for _, c := range usable {
		byIdentity[c.Identity] = c
		discovered[c.Identity] = true
	}

	existingIDs := make([]string, 0, len(existing))
	for _, rec := range existing {
		existingIDs = append(existingIDs, rec.Identity)
	}

	res := d.Reconciler.Diff(discovered, reconcile.IdentitySet(existingIDs))
	if res.GuardTriggered {
		d.Logger.Warn("partial discovery suspected, removals suppressed",
			"source", d.Source,
			"discovered", len(usable),
			"existing", len(existing),
		)
	}
	sum.GuardTriggered = res.GuardTriggered
	sum.Unchanged = len(res.Unchanged)

	toEnrich := make([]model.Candidate, 0, len(res.ToEnrich))
	for _, id := range res.ToEnrich {
		toEnrich = append(toEnrich, byIdentity[id])
	}

	added, stats, poolErr := d.Pool.Run(ctx, toEnrich)
	sum.New = stats.Enriched
	sum.Unavailable = stats.Unavailable
	sum.Errored = stats.Errored

	now := r.now()
	for i := range added {
		if added[i].FirstSeen.IsZero() {
			added[i].FirstSeen = now
		}
	}

	if poolErr != nil {
		// Discovery ran; rotation still advances so the next run moves on to
		// the next batch instead of hammering the same one.
		rotation.Advance(&state, now)
		if serr := d.Store.SaveState(state); serr != nil {
			d.Logger.Error("failed to save state after aborted enrichment", "source", d.Source, "error", serr)
		}
		return sum, fmt.Errorf("%s: enrichment: %w", d.Source, poolErr)
	}

	removeSet := reconcile.IdentitySet(res.ToRemove)
	kept := make([]model.Record, 0, len(existing)+len(added))
	var removed []model.Record
	for _, rec := range existing {
		if removeSet[rec.Identity] {
			removed = append(removed, rec)
			continue
		}
		kept = append(kept, rec)
	}
	newSnapshot := append(kept, added...)
	sum.Removed = len(removed)

	if err := d.Store.Commit(newSnapshot, added, removed); err != nil {
		return sum, fmt.Errorf("%s: commit snapshot: %w", d.Source, err)
	}

	rotation.Advance(&state, now)
	if err := d.Store.SaveState(state); err != nil {
		return sum, fmt.Errorf("%s: save state: %w", d.Source, err)
	}

	if d.Notifier != nil && len(added) > 0 {
		// The snapshot is already committed; a notification failure must not
		// fail the run and cause these records to be re-announced next time.
		if err := d.Notifier.Notify(added); err != nil {
			d.Logger.Error("notification failed", "source", d.Source, "error", err)
		}
	}

	d.Logger.Info("run complete",
		"source", d.Source,
		"discovered", sum.Discovered,
		"new", sum.New,
		"removed", sum.Removed,
		"unchanged", sum.Unchanged,
		"errored", sum.Errored,
		"unavailable", sum.Unavailable,
		"guard", sum.GuardTriggered,
	)
	return sum, nil
}

// expand asks the suggester for extra terms and folds accepted ones into the
// batch and the used-term state. Suggestion failures are logged and ignored:
// expansion is an enhancement, never a reason to skip a run.
func (r *Runner) expand(ctx context.Context, existing []model.Record, state *rotation.State, batch *rotation.Batch) {
	d := r.deps
	if d.Suggester == nil {
		return
	}

	suggested, err := d.Suggester.SuggestKeywords(ctx, existing, append(batch.Keywords, state.UsedKeywords...))
	if err != nil {
		d.Logger.Warn("keyword expansion failed", "source", d.Source, "error", err)
	} else if accepted := d.Scheduler.AcceptKeywords(state, batch, suggested); len(accepted) > 0 {
		d.Logger.Info("accepted keyword expansions", "source", d.Source, "keywords", accepted)
	}

	suggested, err = d.Suggester.SuggestLocations(ctx, existing, append(batch.Locations, state.UsedLocations...))
	if err != nil {
		d.Logger.Warn("location expansion failed", "source", d.Source, "error", err)
	} else if accepted := d.Scheduler.AcceptLocations(state, batch, suggested); len(accepted) > 0 {
		d.Logger.Info("accepted location expansions", "source", d.Source, "locations", accepted)
	}
}
