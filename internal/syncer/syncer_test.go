package syncer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nazmulh/jobdelta/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSyncer(t *testing.T, handler http.HandlerFunc) *Syncer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		Endpoint:     srv.URL,
		ProjectID:    "proj",
		APIKey:       "secret",
		DatabaseID:   "db",
		CollectionID: "jobs",
	}
	return New(cfg, srv.Client(), discardLogger())
}

func syncableRecord(id, title string) model.Record {
	return model.Record{
		Identity: id,
		Source:   "bdjobs",
		URL:      "https://bdjobs.com/h/details/" + id,
		Attributes: map[string]string{
			model.AttrTitle:    title,
			model.AttrCompany:  "Acme Ltd",
			model.AttrLocation: "Dhaka",
		},
	}
}

func TestPush_UpsertsAddedRecords(t *testing.T) {
	var gotPath, gotProject, gotKey string
	var gotBody struct {
		Documents []Document `json:"documents"`
	}

	s := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotProject = r.Header.Get("X-Appwrite-Project")
		gotKey = r.Header.Get("X-Appwrite-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	sum, err := s.Push(context.Background(), []model.Record{syncableRecord("123", "Senior Accountant")}, nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if sum.Upserted != 1 || sum.Errors != 0 {
		t.Errorf("summary = %+v, want 1 upserted", sum)
	}

	if gotPath != "/databases/db/collections/jobs/documents" {
		t.Errorf("path = %q", gotPath)
	}
	if gotProject != "proj" || gotKey != "secret" {
		t.Errorf("auth headers = %q/%q", gotProject, gotKey)
	}
	if len(gotBody.Documents) != 1 {
		t.Fatalf("sent %d documents, want 1", len(gotBody.Documents))
	}

	doc := gotBody.Documents[0]
	if doc.ID != "bdjobs-123" || doc.SourceID != "bdjobs-123" {
		t.Errorf("doc ids = %q/%q", doc.ID, doc.SourceID)
	}
	if doc.Slug != "senior-accountant-acme-ltd" {
		t.Errorf("slug = %q", doc.Slug)
	}
}

func TestPush_BatchesAtLimit(t *testing.T) {
	var batchSizes []int
	s := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Documents []Document `json:"documents"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		batchSizes = append(batchSizes, len(body.Documents))
		w.WriteHeader(http.StatusOK)
	})
	s.batchSize = 2

	added := []model.Record{
		syncableRecord("1", "A"), syncableRecord("2", "B"),
		syncableRecord("3", "C"), syncableRecord("4", "D"),
		syncableRecord("5", "E"),
	}
	sum, err := s.Push(context.Background(), added, nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if sum.Upserted != 5 {
		t.Errorf("upserted = %d, want 5", sum.Upserted)
	}
	if len(batchSizes) != 3 || batchSizes[0] != 2 || batchSizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", batchSizes)
	}
}

func TestPush_SkipsIncompleteRecords(t *testing.T) {
	var calls int
	s := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	noTitle := syncableRecord("1", "")
	noURL := syncableRecord("2", "Accountant")
	noURL.URL = ""
	noIdentity := syncableRecord("3", "Accountant")
	noIdentity.Identity = ""

	sum, err := s.Push(context.Background(), []model.Record{noTitle, noURL, noIdentity}, nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if sum.Skipped != 3 || sum.Upserted != 0 {
		t.Errorf("summary = %+v, want 3 skipped", sum)
	}
	if calls != 0 {
		t.Errorf("made %d HTTP calls for unsyncable records, want 0", calls)
	}
}

func TestPush_FailedBatchRetriesIndividually(t *testing.T) {
	var batches, singles int
	s := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Documents []Document `json:"documents"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Documents) > 1 {
			batches++
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		singles++
		// One poison document keeps failing.
		if body.Documents[0].ID == "bdjobs-2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	added := []model.Record{
		syncableRecord("1", "A"), syncableRecord("2", "B"), syncableRecord("3", "C"),
	}
	sum, err := s.Push(context.Background(), added, nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if batches != 1 || singles != 3 {
		t.Errorf("batches=%d singles=%d, want 1 batch then 3 singles", batches, singles)
	}
	if sum.Upserted != 2 || sum.Errors != 1 {
		t.Errorf("summary = %+v, want 2 upserted 1 error", sum)
	}
}

func TestPush_DeletesRemovedRecords(t *testing.T) {
	var deletePaths []string
	s := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deletePaths = append(deletePaths, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	removed := []model.Record{syncableRecord("77", "Gone")}
	sum, err := s.Push(context.Background(), nil, removed)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if sum.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", sum.Deleted)
	}
	if len(deletePaths) != 1 || !strings.HasSuffix(deletePaths[0], "/documents/bdjobs-77") {
		t.Errorf("delete paths = %v", deletePaths)
	}
}

func TestPush_DeleteToleratesNotFound(t *testing.T) {
	s := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	sum, err := s.Push(context.Background(), nil, []model.Record{syncableRecord("5", "X")})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if sum.Deleted != 1 || sum.Errors != 0 {
		t.Errorf("summary = %+v, want 404 counted as deleted", sum)
	}
}

func TestPush_AllUpsertsFailedIsError(t *testing.T) {
	s := newTestSyncer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := s.Push(context.Background(), []model.Record{syncableRecord("1", "A")}, nil)
	if err == nil {
		t.Fatal("expected error when nothing could be upserted")
	}
}

func TestMapRecord(t *testing.T) {
	rec := syncableRecord("123", "Senior Accountant")
	rec.Attributes[model.AttrSalary] = "BDT 50k"
	rec.Attributes["employment_type"] = "Full-time"
	rec.Attributes[model.AttrDescription] = strings.Repeat("d", 6000)

	doc, ok := MapRecord(rec)
	if !ok {
		t.Fatal("expected syncable record")
	}
	if doc.Salary != "BDT 50k" {
		t.Errorf("salary = %q", doc.Salary)
	}
	if len(doc.Description) != maxDescriptionLen {
		t.Errorf("description length = %d, want capped at %d", len(doc.Description), maxDescriptionLen)
	}

	var extra map[string]string
	if err := json.Unmarshal([]byte(doc.ExtraJSON), &extra); err != nil {
		t.Fatalf("enhanced_json not valid JSON: %v", err)
	}
	if extra["employment_type"] != "Full-time" {
		t.Errorf("extra = %v", extra)
	}
}

func TestMapRecord_AlreadyPrefixedIdentity(t *testing.T) {
	rec := syncableRecord("x", "Accountant")
	rec.Source = "careerjet"
	rec.Identity = "careerjet-abcdef1234567890"

	doc, ok := MapRecord(rec)
	if !ok {
		t.Fatal("expected syncable record")
	}
	if doc.SourceID != "careerjet-abcdef1234567890" {
		t.Errorf("source id double-prefixed: %q", doc.SourceID)
	}
}

func TestMakeDocID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"bdjobs-123", "bdjobs-123"},
		{"linkedin-42/..!!", "linkedin-42.."},
		{"źż", ""},
		{"careerjet-" + strings.Repeat("a", 40), "careerjet-" + strings.Repeat("a", 26)},
	}
	for _, tt := range tests {
		if got := makeDocID(tt.in); got != tt.want {
			t.Errorf("makeDocID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Senior Accountant-Acme Ltd", "senior-accountant-acme-ltd"},
		{"  C++ / Embedded  ", "c-embedded"},
		{"one___two", "one-two"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
