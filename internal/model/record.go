package model

import (
	"context"
	"time"
)

// Record is one job posting in its fully enriched form. Identity and Source
// form the fixed envelope; everything else lives in the open attribute map so
// dedup logic never depends on source-specific optional fields.
type Record struct {
	Identity   string            `json:"job_id"`
	Source     string            `json:"source"`
	URL        string            `json:"url"`
	Attributes map[string]string `json:"attributes,omitempty"`
	FirstSeen  time.Time         `json:"first_seen,omitempty"` // our clock (set on first successful enrichment)
}

// Attr returns the named attribute or "" when absent.
func (r Record) Attr(key string) string {
	return r.Attributes[key]
}

// Common attribute keys shared across sources. Sources may add their own.
const (
	AttrTitle       = "job_title"
	AttrCompany     = "company_name"
	AttrLocation    = "location"
	AttrSalary      = "salary"
	AttrEmployment  = "employment_type"
	AttrExperience  = "experience"
	AttrEducation   = "education"
	AttrDeadline    = "deadline"
	AttrDatePosted  = "date_posted"
	AttrDescription = "job_description"
)

// Candidate is a lightweight discovered item: a stable identity plus whatever
// metadata discovery happened to see. Hints carry source data forward so
// enrichment can fall back on them when the detail fetch comes up short.
type Candidate struct {
	Identity string
	URL      string
	Hint     map[string]string
}

// Batch is the slice of the search universe queried in one run.
type Batch struct {
	Keywords  []string
	Locations []string
}

// DiscoverySource yields the current set of candidates for a rotation batch.
// Returning an empty list means the source produced nothing usable this run;
// the caller treats that as a failed discovery and leaves the snapshot alone.
type DiscoverySource interface {
	Discover(ctx context.Context, batch Batch) ([]Candidate, error)
}

// Session is one long-lived enrichment context (a browser tab, an HTTP
// client). A worker opens one session and reuses it for every candidate it
// processes.
//
// Enrich returns ErrUnavailable (possibly wrapped) when the source explicitly
// reports the posting gone; any other error is a transient per-item failure.
type Session interface {
	Enrich(ctx context.Context, c Candidate) (Record, error)
	Close() error
}

// SessionFactory opens enrichment sessions. One factory serves all workers of
// a pool; each worker calls NewSession exactly once.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Notifier announces records added by a run.
type Notifier interface {
	Notify(added []Record) error
}
