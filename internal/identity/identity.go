// Package identity derives stable, source-scoped identifiers for discovered
// job postings. Identity is what deduplication keys on, so every function here
// is pure and deterministic: the same real-world posting always maps to the
// same identity, and an item with no derivable identity returns "" and is
// dropped by the caller. A fabricated fallback key would defeat dedup, so
// there is none.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	linkedinViewRe  = regexp.MustCompile(`/jobs/view/(?:[^/]*?-)?(\d+)`)
	linkedinParamRe = regexp.MustCompile(`currentJobId=(\d+)`)
	linkedinSlugRe  = regexp.MustCompile(`-(\d{7,})`)

	bdjobsDetailRe = regexp.MustCompile(`/details/(\d+)`)
)

// LinkedIn extracts the numeric job ID from any LinkedIn job URL shape:
// /jobs/view/<id>, /jobs/view/<slug>-<id>, ?currentJobId=<id>, or a trailing
// slug ID of 7+ digits. Returns "" when no ID is present.
func LinkedIn(url string) string {
	if m := linkedinViewRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	if m := linkedinParamRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	if m := linkedinSlugRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

// CanonicalLinkedInURL normalizes a LinkedIn job URL to its canonical form,
// stripping slugs, query strings, and tracking parameters. Returns the input
// unchanged when no job ID can be extracted.
func CanonicalLinkedInURL(url string) string {
	if id := LinkedIn(url); id != "" {
		return fmt.Sprintf("https://www.linkedin.com/jobs/view/%s/", id)
	}
	return url
}

// BDJobs extracts the numeric posting ID from a bdjobs.com detail URL.
// Returns "" when the URL is not a detail page.
func BDJobs(url string) string {
	if m := bdjobsDetailRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

// CareerJet hashes a posting into a stable key. The URL is the primary key;
// when it is empty the title/company/location triple is hashed instead. An
// all-empty posting has no identity.
func CareerJet(url, title, company, location string) string {
	if url != "" {
		return "careerjet-" + shortHash(url)
	}
	if title == "" && company == "" && location == "" {
		return ""
	}
	return "careerjet-" + shortHash(fmt.Sprintf("%s-%s-%s", title, company, location))
}

// shortHash returns the first 16 hex chars of the md5 of s. md5 is fine here:
// the key needs stability and spread, not cryptographic strength.
func shortHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// Prefixed returns "<source>-<id>", the cross-source form used as a document
// ID downstream. IDs that already carry the prefix are returned as is.
func Prefixed(source, id string) string {
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, source+"-") {
		return id
	}
	return source + "-" + id
}
