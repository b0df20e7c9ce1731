// Package snapshot persists the full record set, the rotation state, and the
// per-run added/removed deltas between runs.
package snapshot

import (
	"github.com/nazmulh/jobdelta/internal/model"
	"github.com/nazmulh/jobdelta/internal/rotation"
)

// Store is the persistence contract the pipeline drives. A run reads the
// snapshot and state once at the start, and writes everything once at the
// end; a crash in between leaves the previous run's files untouched.
type Store interface {
	// LoadSnapshot returns all known records. A missing or corrupt snapshot
	// loads as empty rather than failing the run.
	LoadSnapshot() ([]model.Record, error)

	// LoadState returns the rotation state, zero-valued when absent.
	LoadState() (rotation.State, error)

	// Commit writes the deltas first and the full snapshot last, each as an
	// atomic whole-file replacement. Both delta outputs are produced every
	// run, empty when there is nothing to report, so downstream consumers
	// can rely on presence.
	Commit(snapshot, added, removed []model.Record) error

	// SaveState persists the rotation state.
	SaveState(st rotation.State) error
}
