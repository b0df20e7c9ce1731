package syncer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nazmulh/jobdelta/internal/identity"
	"github.com/nazmulh/jobdelta/internal/model"
)

// Collection schema limits.
const (
	maxFieldLen       = 255
	maxDescriptionLen = 5000
	maxExtraJSONLen   = 50000
	maxDocIDLen       = 36
)

// Document is one row in the downstream jobs collection. The ID field is the
// server-side document ID, derived from the source-scoped identity so repeat
// syncs upsert instead of duplicating.
type Document struct {
	ID          string `json:"$id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	ApplyURL    string `json:"apply_url"`
	SourceID    string `json:"source_id"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Salary      string `json:"salary,omitempty"`
	Experience  string `json:"experience,omitempty"`
	Education   string `json:"education,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
	ExtraJSON   string `json:"enhanced_json,omitempty"`
}

// coreAttrs are the attributes mapped to dedicated document fields; everything
// else a source attached goes into ExtraJSON.
var coreAttrs = map[string]bool{
	model.AttrTitle:       true,
	model.AttrCompany:     true,
	model.AttrLocation:    true,
	model.AttrSalary:      true,
	model.AttrExperience:  true,
	model.AttrEducation:   true,
	model.AttrDeadline:    true,
	model.AttrDescription: true,
}

// MapRecord converts a record into a collection document. Records missing any
// of the required title/company/location/URL fields are rejected, as are
// records whose identity cannot produce a valid document ID.
func MapRecord(r model.Record) (Document, bool) {
	sourceID := identity.Prefixed(r.Source, r.Identity)
	docID := makeDocID(sourceID)
	if docID == "" {
		return Document{}, false
	}

	title := truncateField(r.Attr(model.AttrTitle), maxFieldLen)
	company := truncateField(r.Attr(model.AttrCompany), maxFieldLen)
	location := truncateField(r.Attr(model.AttrLocation), maxFieldLen)
	if title == "" || company == "" || location == "" || r.URL == "" {
		return Document{}, false
	}

	return Document{
		ID:          docID,
		Title:       title,
		Company:     company,
		Location:    location,
		ApplyURL:    r.URL,
		SourceID:    sourceID,
		Slug:        Slugify(title + "-" + company),
		Description: truncateField(r.Attr(model.AttrDescription), maxDescriptionLen),
		Salary:      truncateField(r.Attr(model.AttrSalary), maxFieldLen),
		Experience:  truncateField(r.Attr(model.AttrExperience), maxFieldLen),
		Education:   truncateField(r.Attr(model.AttrEducation), maxFieldLen),
		Deadline:    truncateField(r.Attr(model.AttrDeadline), maxFieldLen),
		ExtraJSON:   extraJSON(r),
	}, true
}

// extraJSON bundles non-core attributes into a JSON object string.
func extraJSON(r model.Record) string {
	extra := make(map[string]string)
	for key, val := range r.Attributes {
		if !coreAttrs[key] && val != "" {
			extra[key] = val
		}
	}
	if len(extra) == 0 {
		return ""
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	return truncateField(string(raw), maxExtraJSONLen)
}

var docIDInvalidRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// makeDocID sanitizes a source ID into a valid document ID: a-z, A-Z, 0-9,
// period, hyphen, underscore, max 36 chars. Returns "" when nothing valid
// remains, which callers treat as unsyncable.
func makeDocID(sourceID string) string {
	id := docIDInvalidRe.ReplaceAllString(sourceID, "")
	if len(id) > maxDocIDLen {
		id = id[:maxDocIDLen]
	}
	return id
}

var (
	slugDropRe     = regexp.MustCompile(`[^a-z0-9\s_-]`)
	slugSpaceRe    = regexp.MustCompile(`[\s_]+`)
	slugCollapseRe = regexp.MustCompile(`-+`)
)

// Slugify converts text to a URL-friendly slug. Non-ASCII characters are
// dropped, whitespace and underscores become hyphens.
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugDropRe.ReplaceAllString(s, "")
	s = slugSpaceRe.ReplaceAllString(s, "-")
	s = slugCollapseRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxFieldLen {
		s = s[:maxFieldLen]
	}
	return s
}

// truncateField caps s at n bytes on a rune boundary.
func truncateField(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
