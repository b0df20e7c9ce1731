package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nazmulh/jobdelta/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCareerJetConfig() CareerJetConfig {
	return CareerJetConfig{
		APIKey:      "test-key",
		Locale:      "en_BD",
		UserIP:      "103.108.0.1",
		UserAgent:   "test-agent",
		RefererBase: "https://example.com/find-jobs/",
	}
}

func newTestCareerJet(t *testing.T, handler http.HandlerFunc) *CareerJet {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cj := NewCareerJet(testCareerJetConfig(), srv.Client(), discardLogger())
	cj.endpoint = srv.URL
	return cj
}

func writeCareerJetPage(t *testing.T, w http.ResponseWriter, resp careerjetResponse) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCareerJetDiscover_NormalizesJobs(t *testing.T) {
	cj := newTestCareerJet(t, func(w http.ResponseWriter, r *http.Request) {
		writeCareerJetPage(t, w, careerjetResponse{
			Type: "JOBS",
			Jobs: []careerjetJob{
				{
					URL:         "https://example.com/job/1",
					Title:       "Senior Accountant",
					Company:     "Acme Ltd",
					Locations:   "Dhaka",
					Salary:      "BDT 50,000",
					Date:        "2026-08-01",
					Description: "<b>Great</b> role",
				},
			},
			Hits:  1,
			Pages: 1,
		})
	})

	got, err := cj.Discover(context.Background(), model.Batch{
		Keywords:  []string{"Accountant"},
		Locations: []string{"Dhaka"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}

	c := got[0]
	if !strings.HasPrefix(c.Identity, "careerjet-") {
		t.Errorf("identity = %q, want careerjet- prefix", c.Identity)
	}
	if c.URL != "https://example.com/job/1" {
		t.Errorf("url = %q", c.URL)
	}
	if c.Hint[model.AttrTitle] != "Senior Accountant" || c.Hint[model.AttrCompany] != "Acme Ltd" {
		t.Errorf("hints = %v", c.Hint)
	}
	if c.Hint[model.AttrDescription] != "Great role" {
		t.Errorf("description not flattened: %q", c.Hint[model.AttrDescription])
	}
}

func TestCareerJetDiscover_Paginates(t *testing.T) {
	var pagesRequested []string
	cj := newTestCareerJet(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pagesRequested = append(pagesRequested, page)

		jobs := []careerjetJob{{URL: "https://example.com/job/p" + page, Title: "Job " + page}}
		writeCareerJetPage(t, w, careerjetResponse{Type: "JOBS", Jobs: jobs, Hits: 2, Pages: 2})
	})

	got, err := cj.Discover(context.Background(), model.Batch{
		Keywords:  []string{"Accountant"},
		Locations: []string{"Dhaka"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 (one per page)", len(got))
	}
	if len(pagesRequested) != 2 || pagesRequested[0] != "1" || pagesRequested[1] != "2" {
		t.Errorf("pages requested = %v, want [1 2]", pagesRequested)
	}
}

func TestCareerJetDiscover_DedupsAcrossCombos(t *testing.T) {
	cj := newTestCareerJet(t, func(w http.ResponseWriter, r *http.Request) {
		writeCareerJetPage(t, w, careerjetResponse{
			Type:  "JOBS",
			Jobs:  []careerjetJob{{URL: "https://example.com/job/same", Title: "Accountant"}},
			Hits:  1,
			Pages: 1,
		})
	})

	got, err := cj.Discover(context.Background(), model.Batch{
		Keywords:  []string{"Accountant", "Finance"},
		Locations: []string{"Dhaka"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d candidates, want 1 after dedup", len(got))
	}
}

func TestCareerJetDiscover_SkipsLocationMode(t *testing.T) {
	cj := newTestCareerJet(t, func(w http.ResponseWriter, r *http.Request) {
		writeCareerJetPage(t, w, careerjetResponse{Type: "LOCATIONS", Message: "ambiguous location"})
	})

	got, err := cj.Discover(context.Background(), model.Batch{
		Keywords:  []string{"Accountant"},
		Locations: []string{"Springfield"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d candidates from location-mode response, want 0", len(got))
	}
}

func TestCareerJetDiscover_HTTPErrorCarriesRetryAfter(t *testing.T) {
	cj := newTestCareerJet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := cj.Discover(context.Background(), model.Batch{
		Keywords:  []string{"Accountant"},
		Locations: []string{"Dhaka"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 429 || httpErr.RetryAfter != 120*time.Second {
		t.Errorf("HTTPError = %+v, want 429 with 120s retry-after", httpErr)
	}
}

func TestCareerJetDiscover_SendsAuthAndReferer(t *testing.T) {
	var gotAuth, gotReferer string
	cj := newTestCareerJet(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("Referer")
		writeCareerJetPage(t, w, careerjetResponse{Type: "JOBS"})
	})

	_, err := cj.Discover(context.Background(), model.Batch{
		Keywords:  []string{"Finance Officer"},
		Locations: []string{"Dhaka"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// base64("test-key:")
	if gotAuth != "Basic dGVzdC1rZXk6" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.Contains(gotReferer, "s=Finance+Officer") || !strings.Contains(gotReferer, "l=Dhaka") {
		t.Errorf("Referer = %q, want search params embedded", gotReferer)
	}
}

func TestNormalizeSalary(t *testing.T) {
	tests := []struct {
		name string
		job  careerjetJob
		want string
	}{
		{"raw string preferred", careerjetJob{Salary: "BDT 40k", SalaryMin: "1"}, "BDT 40k"},
		{"min and max", careerjetJob{SalaryMin: "30000", SalaryMax: "50000", SalaryCurrency: "BDT", SalaryType: "M"}, "BDT 30000 - 50000 (monthly)"},
		{"min only", careerjetJob{SalaryMin: "30000", SalaryCurrency: "BDT"}, "BDT 30000+"},
		{"max only", careerjetJob{SalaryMax: "50000", SalaryCurrency: "BDT", SalaryType: "Y"}, "Up to BDT 50000 (yearly)"},
		{"nothing", careerjetJob{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeSalary(tt.job); got != tt.want {
				t.Errorf("normalizeSalary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlexString_DecodesNumbersAndStrings(t *testing.T) {
	var job careerjetJob
	raw := `{"salary_min": 30000, "salary_max": "50000", "salary_currency_code": null}`
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.SalaryMin != "30000" || job.SalaryMax != "50000" {
		t.Errorf("salary min/max = %q/%q, want 30000/50000", job.SalaryMin, job.SalaryMax)
	}
}

func TestHintSession_PromotesHints(t *testing.T) {
	factory := NewHintSessionFactory("careerjet")
	session, err := factory.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer session.Close()

	cand := model.Candidate{
		Identity: "careerjet-abc",
		URL:      "https://example.com/job/1",
		Hint:     map[string]string{model.AttrTitle: "Accountant"},
	}
	rec, err := session.Enrich(context.Background(), cand)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if rec.Identity != "careerjet-abc" || rec.Source != "careerjet" || rec.Attr(model.AttrTitle) != "Accountant" {
		t.Errorf("record = %+v", rec)
	}

	// The record owns its attributes; mutating it must not touch the hint.
	rec.Attributes[model.AttrTitle] = "changed"
	if cand.Hint[model.AttrTitle] != "Accountant" {
		t.Error("enrichment aliased the candidate hint map")
	}
}
