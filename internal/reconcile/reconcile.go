// Package reconcile computes the set difference between discovered identities
// and the previously persisted snapshot, deciding which postings must be
// enriched, removed, or kept.
package reconcile

// DefaultGuardThreshold is the under-discovery ratio below which a run is
// treated as a partial scrape rather than a genuine mass removal.
const DefaultGuardThreshold = 0.5

// Result partitions discovered ∪ existing into three disjoint sets.
type Result struct {
	ToEnrich  []string // discovered, not in snapshot
	ToRemove  []string // in snapshot, not discovered
	Unchanged []string // in both

	// GuardTriggered records that the safety guard suppressed removals this
	// run, so the caller can log it distinctly from a normal run.
	GuardTriggered bool
}

// Reconciler diffs discovery output against the snapshot. threshold is the
// fraction of the existing set that discovery must reach before removals are
// trusted; under-discovery can only ever suppress removals, never force them.
type Reconciler struct {
	threshold float64
}

// New returns a Reconciler with the given guard threshold. Thresholds outside
// (0, 1] fall back to the default: 0 would disable the guard entirely, and
// anything above 1 would block removals on every run.
func New(threshold float64) *Reconciler {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultGuardThreshold
	}
	return &Reconciler{threshold: threshold}
}

// Diff computes the reconciliation result for one run. Inputs are identity
// sets; neither is mutated. When the snapshot is non-empty and discovery
// returned fewer than threshold × |existing| identities, the run is treated
// as a likely partial failure (anti-bot block, outage): removals are dropped
// and every previously known record survives.
func (r *Reconciler) Diff(discovered, existing map[string]bool) Result {
	var res Result
	for id := range discovered {
		if existing[id] {
			res.Unchanged = append(res.Unchanged, id)
		} else {
			res.ToEnrich = append(res.ToEnrich, id)
		}
	}
	for id := range existing {
		if !discovered[id] {
			res.ToRemove = append(res.ToRemove, id)
		}
	}

	if len(existing) > 0 && float64(len(discovered)) < r.threshold*float64(len(existing)) {
		res.ToRemove = nil
		res.GuardTriggered = true
	}
	return res
}

// IdentitySet builds a set from a list of identities, skipping empties.
func IdentitySet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}
