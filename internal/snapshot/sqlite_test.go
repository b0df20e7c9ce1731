package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nazmulh/jobdelta/internal/rotation"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "jobs.db"), dir, "test")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	records := makeRecords("a", "b")
	records[0].FirstSeen = time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

	if err := store.Commit(records, records[:1], nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	loaded, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d records, want 2", len(loaded))
	}

	byID := map[string]bool{}
	for _, r := range loaded {
		byID[r.Identity] = true
		if r.Attributes["job_title"] != "Accountant" {
			t.Errorf("record %s lost attributes: %+v", r.Identity, r.Attributes)
		}
	}
	if !byID["a"] || !byID["b"] {
		t.Errorf("loaded identities = %v, want a and b", byID)
	}
}

func TestSQLiteStore_CommitReplacesSnapshot(t *testing.T) {
	store := newTestSQLiteStore(t)

	if err := store.Commit(makeRecords("a", "b", "c"), nil, nil); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if err := store.Commit(makeRecords("b"), nil, makeRecords("a", "c")); err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	loaded, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Identity != "b" {
		t.Errorf("snapshot = %v, want single record b", loaded)
	}
}

func TestSQLiteStore_StateUpsert(t *testing.T) {
	store := newTestSQLiteStore(t)

	st, err := store.LoadState()
	if err != nil || st.RunCount != 0 {
		t.Fatalf("initial state = %+v err=%v, want zero/nil", st, err)
	}

	if err := store.SaveState(rotation.State{RunCount: 1, UsedKeywords: []string{"Treasury"}}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := store.SaveState(rotation.State{RunCount: 2, UsedKeywords: []string{"Treasury", "Payroll"}}); err != nil {
		t.Fatalf("SaveState (update): %v", err)
	}

	st, err = store.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st.RunCount != 2 || len(st.UsedKeywords) != 2 {
		t.Errorf("state = %+v, want run 2 with 2 used keywords", st)
	}
}

func TestSQLiteStore_ExportsDeltaFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "jobs.db"), dir, "test")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	added := makeRecords("new")
	if err := store.Commit(added, added, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	files, err := NewFileStore(dir, "test")
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{files.AddedPath(), files.RemovedPath()} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("delta file not exported: %v", err)
		}
	}
}
