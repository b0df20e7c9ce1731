package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nazmulh/jobdelta/internal/identity"
	"github.com/nazmulh/jobdelta/internal/model"
)

// Appwrite-compatible batch limit.
const defaultBatchSize = 100

// Config holds the downstream database connection details.
type Config struct {
	Endpoint     string // e.g. https://cloud.appwrite.io/v1
	ProjectID    string
	APIKey       string
	DatabaseID   string
	CollectionID string
}

// Summary reports what one sync run did.
type Summary struct {
	Upserted int
	Deleted  int
	Skipped  int
	Errors   int
}

// Syncer pushes run deltas to an Appwrite-compatible document database:
// added records are upserted, removed records are deleted by document ID.
type Syncer struct {
	cfg       Config
	batchSize int
	client    *http.Client
	logger    *slog.Logger
}

// New creates a syncer for the configured collection.
func New(cfg Config, client *http.Client, logger *slog.Logger) *Syncer {
	return &Syncer{
		cfg:       cfg,
		batchSize: defaultBatchSize,
		client:    client,
		logger:    logger,
	}
}

// Push upserts the added records and deletes the removed ones. Individual
// document failures are logged and counted; Push returns an error only when
// nothing could be written at all.
func (s *Syncer) Push(ctx context.Context, added, removed []model.Record) (Summary, error) {
	var sum Summary

	docs := make([]Document, 0, len(added))
	for _, r := range added {
		doc, ok := MapRecord(r)
		if !ok {
			s.logger.Warn("record not syncable, skipping", "job_id", r.Identity, "source", r.Source)
			sum.Skipped++
			continue
		}
		docs = append(docs, doc)
	}

	for start := 0; start < len(docs); start += s.batchSize {
		end := min(start+s.batchSize, len(docs))
		batch := docs[start:end]

		if err := s.upsertBatch(ctx, batch); err != nil {
			s.logger.Warn("batch upsert failed, retrying documents individually", "size", len(batch), "error", err)
			for _, doc := range batch {
				if err := s.upsertBatch(ctx, []Document{doc}); err != nil {
					s.logger.Error("document upsert failed", "doc_id", doc.ID, "error", err)
					sum.Errors++
					continue
				}
				sum.Upserted++
			}
			continue
		}
		sum.Upserted += len(batch)
	}

	for _, r := range removed {
		docID := makeDocID(identity.Prefixed(r.Source, r.Identity))
		if docID == "" {
			sum.Skipped++
			continue
		}
		if err := s.deleteDocument(ctx, docID); err != nil {
			s.logger.Error("document delete failed", "doc_id", docID, "error", err)
			sum.Errors++
			continue
		}
		sum.Deleted++
	}

	s.logger.Info("sync complete",
		"upserted", sum.Upserted, "deleted", sum.Deleted,
		"skipped", sum.Skipped, "errors", sum.Errors,
	)

	if len(docs) > 0 && sum.Upserted == 0 {
		return sum, fmt.Errorf("all %d document upserts failed", len(docs))
	}
	return sum, nil
}

func (s *Syncer) documentsURL() string {
	return fmt.Sprintf("%s/databases/%s/collections/%s/documents",
		s.cfg.Endpoint, s.cfg.DatabaseID, s.cfg.CollectionID)
}

func (s *Syncer) upsertBatch(ctx context.Context, docs []Document) error {
	body, err := json.Marshal(map[string]any{"documents": docs})
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.documentsURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upsert returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

// deleteDocument removes one document. A 404 means the document was never
// synced (or already deleted) and is not an error.
func (s *Syncer) deleteDocument(ctx context.Context, docID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.documentsURL()+"/"+docID, nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete returned %d", resp.StatusCode)
	}
	return nil
}

func (s *Syncer) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Appwrite-Project", s.cfg.ProjectID)
	req.Header.Set("X-Appwrite-Key", s.cfg.APIKey)
}
