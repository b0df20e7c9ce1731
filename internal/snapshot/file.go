package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nazmulh/jobdelta/internal/model"
	"github.com/nazmulh/jobdelta/internal/rotation"
)

// FileStore keeps the snapshot, deltas, and rotation state as JSON files in a
// directory, one file set per source. This matches the layout downstream
// consumers already read: <source>_output.json, <source>_added_jobs.json,
// <source>_removed_jobs.json, <source>_state.json.
type FileStore struct {
	dir    string
	source string
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a store scoped to
// one source.
func NewFileStore(dir, source string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, source: source}, nil
}

// SnapshotPath returns the path of the full snapshot file.
func (s *FileStore) SnapshotPath() string {
	return filepath.Join(s.dir, s.source+"_output.json")
}

// AddedPath returns the path of the added-delta file.
func (s *FileStore) AddedPath() string {
	return filepath.Join(s.dir, s.source+"_added_jobs.json")
}

// RemovedPath returns the path of the removed-delta file.
func (s *FileStore) RemovedPath() string {
	return filepath.Join(s.dir, s.source+"_removed_jobs.json")
}

func (s *FileStore) statePath() string {
	return filepath.Join(s.dir, s.source+"_state.json")
}

// LoadSnapshot reads the full record set. Missing or unparseable files load
// as empty: a first run and a recovered-from-corruption run look the same.
func (s *FileStore) LoadSnapshot() ([]model.Record, error) {
	data, err := os.ReadFile(s.SnapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil
	}
	return records, nil
}

// LoadAdded reads the added-records delta from the last committed run.
func (s *FileStore) LoadAdded() ([]model.Record, error) {
	return readDelta(s.AddedPath())
}

// LoadRemoved reads the removed-records delta from the last committed run.
func (s *FileStore) LoadRemoved() ([]model.Record, error) {
	return readDelta(s.RemovedPath())
}

func readDelta(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading delta: %w", err)
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing delta %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// LoadState reads the rotation state, returning a zero state when the file is
// missing or corrupt.
func (s *FileStore) LoadState() (rotation.State, error) {
	var st rotation.State
	data, err := os.ReadFile(s.statePath())
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("reading state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return rotation.State{}, nil
	}
	return st, nil
}

// Commit writes the delta files first and the snapshot last so a crash
// mid-commit never silently loses the previous snapshot. Every write is a
// whole-file atomic replace.
func (s *FileStore) Commit(snapshot, added, removed []model.Record) error {
	if err := writeJSON(s.AddedPath(), emptyIfNil(added)); err != nil {
		return fmt.Errorf("writing added delta: %w", err)
	}
	if err := writeJSON(s.RemovedPath(), emptyIfNil(removed)); err != nil {
		return fmt.Errorf("writing removed delta: %w", err)
	}
	if err := writeJSON(s.SnapshotPath(), emptyIfNil(snapshot)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// SaveState persists the rotation state atomically.
func (s *FileStore) SaveState(st rotation.State) error {
	if err := writeJSON(s.statePath(), st); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// writeJSON marshals v and replaces path atomically via a temp file in the
// same directory plus rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// emptyIfNil keeps delta files as JSON arrays, never null.
func emptyIfNil(records []model.Record) []model.Record {
	if records == nil {
		return []model.Record{}
	}
	return records
}
