package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nazmulh/jobdelta/internal/model"
	"github.com/nazmulh/jobdelta/internal/rotation"
)

// SQLiteStore keeps the snapshot and rotation state in a SQLite database
// while still exporting the added/removed delta files downstream consumers
// read. The snapshot is replaced wholesale on Commit inside one transaction,
// so a crash mid-commit leaves the previous snapshot intact.
type SQLiteStore struct {
	db    *sql.DB
	files *FileStore // delta file export keeps the JSON contract
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists. Delta files are written under dir using the same naming as
// the file store.
func NewSQLiteStore(dbPath, dir, source string) (*SQLiteStore, error) {
	files, err := NewFileStore(dir, source)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		job_id     TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		url        TEXT NOT NULL,
		attributes TEXT NOT NULL,
		first_seen DATETIME
	);
	CREATE TABLE IF NOT EXISTS rotation_state (
		source TEXT PRIMARY KEY,
		state  TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS run_log (
		run_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
		source        TEXT NOT NULL,
		added_count   INTEGER NOT NULL,
		removed_count INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db, files: files}, nil
}

// LoadSnapshot reads all records for this store's source.
func (s *SQLiteStore) LoadSnapshot() ([]model.Record, error) {
	rows, err := s.db.Query(
		"SELECT job_id, source, url, attributes, first_seen FROM records WHERE source = ?",
		s.files.source,
	)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var (
			rec       model.Record
			attrs     string
			firstSeen sql.NullTime
		)
		if err := rows.Scan(&rec.Identity, &rec.Source, &rec.URL, &attrs, &firstSeen); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if attrs != "" {
			if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
				return nil, fmt.Errorf("decoding attributes for %s: %w", rec.Identity, err)
			}
		}
		if firstSeen.Valid {
			rec.FirstSeen = firstSeen.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LoadState reads the rotation state, zero-valued when absent.
func (s *SQLiteStore) LoadState() (rotation.State, error) {
	var raw string
	err := s.db.QueryRow(
		"SELECT state FROM rotation_state WHERE source = ?", s.files.source,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return rotation.State{}, nil
	}
	if err != nil {
		return rotation.State{}, fmt.Errorf("querying state: %w", err)
	}

	var st rotation.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return rotation.State{}, nil
	}
	return st, nil
}

// Commit replaces the stored snapshot in one transaction, logs the run, and
// exports the delta files.
func (s *SQLiteStore) Commit(snapshot, added, removed []model.Record) error {
	if err := writeJSON(s.files.AddedPath(), emptyIfNil(added)); err != nil {
		return fmt.Errorf("writing added delta: %w", err)
	}
	if err := writeJSON(s.files.RemovedPath(), emptyIfNil(removed)); err != nil {
		return fmt.Errorf("writing removed delta: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM records WHERE source = ?", s.files.source); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	for _, rec := range snapshot {
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes for %s: %w", rec.Identity, err)
		}
		var firstSeen any
		if !rec.FirstSeen.IsZero() {
			firstSeen = rec.FirstSeen
		}
		_, err = tx.Exec(
			"INSERT INTO records (job_id, source, url, attributes, first_seen) VALUES (?, ?, ?, ?, ?)",
			rec.Identity, rec.Source, rec.URL, string(attrs), firstSeen,
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.Identity, err)
		}
	}

	_, err = tx.Exec(
		"INSERT INTO run_log (run_at, source, added_count, removed_count) VALUES (?, ?, ?, ?)",
		time.Now().UTC(), s.files.source, len(added), len(removed),
	)
	if err != nil {
		return fmt.Errorf("logging run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// SaveState upserts the rotation state.
func (s *SQLiteStore) SaveState(st rotation.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO rotation_state (source, state) VALUES (?, ?)
		 ON CONFLICT(source) DO UPDATE SET state = excluded.state`,
		s.files.source, string(raw),
	)
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
