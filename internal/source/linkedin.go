package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/nazmulh/jobdelta/internal/identity"
	"github.com/nazmulh/jobdelta/internal/model"
)

// LinkedIn search pages are aggressively bot-protected, so discovery goes
// through a web search API restricted to linkedin.com and only the public
// /jobs/view/ detail pages are rendered.
const (
	linkedinSearchEndpoint   = "https://api.tavily.com/search"
	linkedinMaxSearchResults = 20 // per query, API max
	linkedinDescriptionCap   = 5000
)

// Hint keys carrying search-result metadata from discovery to enrichment.
const (
	hintSearchTitle   = "search_title"
	hintSearchContent = "search_content"
)

// LinkedIn discovers postings via a search API and enriches them by rendering
// the public job detail pages. It is both a DiscoverySource and a
// SessionFactory.
type LinkedIn struct {
	searchURL   string
	apiKey      string
	pageTimeout time.Duration
	client      *http.Client
	logger      *slog.Logger
}

// NewLinkedIn creates a LinkedIn source backed by the given search API key.
func NewLinkedIn(apiKey string, client *http.Client, logger *slog.Logger) *LinkedIn {
	return &LinkedIn{
		searchURL:   linkedinSearchEndpoint,
		apiKey:      apiKey,
		pageTimeout: 60 * time.Second,
		client:      client,
		logger:      logger,
	}
}

type searchRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains"`
}

type searchResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// Discover runs one search per keyword × location combination and keeps the
// /jobs/view/ URLs, deduplicated by job ID. Individual query failures are
// tolerated; the whole discovery fails only when every query failed.
func (l *LinkedIn) Discover(ctx context.Context, batch model.Batch) ([]model.Candidate, error) {
	seen := make(map[string]bool)
	var candidates []model.Candidate
	var lastErr error

	for _, keyword := range batch.Keywords {
		for _, location := range batch.Locations {
			query := fmt.Sprintf("%s jobs %s linkedin.com/jobs/view", keyword, location)
			results, err := l.search(ctx, query)
			if err != nil {
				l.logger.Warn("linkedin search query failed", "query", query, "error", err)
				lastErr = err
				continue
			}

			for _, r := range results.Results {
				if !strings.Contains(r.URL, "/jobs/view/") {
					continue
				}
				id := identity.LinkedIn(r.URL)
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
				candidates = append(candidates, model.Candidate{
					Identity: id,
					URL:      identity.CanonicalLinkedInURL(r.URL),
					Hint: map[string]string{
						hintSearchTitle:   r.Title,
						hintSearchContent: r.Content,
					},
				})
			}
		}
	}

	if len(candidates) == 0 && lastErr != nil {
		return nil, fmt.Errorf("linkedin discovery: all queries failed: %w", lastErr)
	}

	l.logger.Info("linkedin discovery complete", "candidates", len(candidates))
	return candidates, nil
}

func (l *LinkedIn) search(ctx context.Context, query string) (*searchResponse, error) {
	body, err := json.Marshal(searchRequest{
		Query:          query,
		MaxResults:     linkedinMaxSearchResults,
		IncludeDomains: []string{"linkedin.com"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("search API returned %d", resp.StatusCode),
		}
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &searchResp, nil
}

// NewSession opens a dedicated browser tab for one enrichment worker.
func (l *LinkedIn) NewSession(ctx context.Context) (model.Session, error) {
	tabCtx, cancel := newBrowserContext(ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("linkedin browser launch: %w", err)
	}
	return &linkedinSession{ctx: tabCtx, cancel: cancel, timeout: l.pageTimeout}, nil
}

type linkedinSession struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// Enrich renders the detail page and extracts the posting. When the page
// cannot be loaded at all, the search-result hints are promoted instead so a
// discovered posting is never lost to a transient block.
func (s *linkedinSession) Enrich(ctx context.Context, c model.Candidate) (model.Record, error) {
	pageCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	var pageHTML string
	err := chromedp.Run(pageCtx,
		chromedp.Navigate(c.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &pageHTML),
	)
	if err != nil {
		if ctx.Err() != nil {
			return model.Record{}, ctx.Err()
		}
		if rec, ok := recordFromSearchHints(c); ok {
			return rec, nil
		}
		return model.Record{}, fmt.Errorf("linkedin detail load %s: %w", c.URL, err)
	}

	return parseLinkedInDetail(pageHTML, c)
}

func (s *linkedinSession) Close() error {
	s.cancel()
	return nil
}

// searchTitleRe matches the "Company hiring Job Title in Location" format of
// search-result titles for LinkedIn job pages.
var searchTitleRe = regexp.MustCompile(`(?i)^(.+?)\s+hiring\s+(.+?)(?:\s+in\s+(.+?))?(?:\s*\|.*)?$`)

// parseSearchTitle splits a search-result title into company, title and
// location. Returns ok=false when the title has another shape.
func parseSearchTitle(title string) (company, jobTitle, location string, ok bool) {
	m := searchTitleRe.FindStringSubmatch(title)
	if m == nil {
		return "", "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), true
}

// recordFromSearchHints builds a record purely from discovery hints.
func recordFromSearchHints(c model.Candidate) (model.Record, bool) {
	company, title, location, ok := parseSearchTitle(c.Hint[hintSearchTitle])
	if !ok || title == "" {
		return model.Record{}, false
	}
	return model.Record{
		Identity: c.Identity,
		Source:   "linkedin",
		URL:      c.URL,
		Attributes: map[string]string{
			model.AttrTitle:       title,
			model.AttrCompany:     company,
			model.AttrLocation:    location,
			model.AttrDescription: truncate(c.Hint[hintSearchContent], linkedinDescriptionCap),
		},
	}, true
}

// parseLinkedInDetail extracts a record from a rendered job detail page.
// JSON-LD JobPosting data is preferred; the page markup and finally the
// search hints serve as fallbacks. A page announcing the posting is closed
// returns ErrUnavailable.
func parseLinkedInDetail(pageHTML string, c model.Candidate) (model.Record, error) {
	if strings.Contains(strings.ToLower(pageHTML), "no longer accepting applications") {
		return model.Record{}, fmt.Errorf("linkedin job %s: %w", c.Identity, model.ErrUnavailable)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return model.Record{}, fmt.Errorf("parse linkedin detail: %w", err)
	}

	if rec, ok := recordFromJSONLD(doc, c); ok {
		return rec, nil
	}
	return recordFromMarkup(doc, c)
}

// recordFromJSONLD walks the embedded JSON-LD blocks looking for a
// JobPosting. Real-world blocks wrap values in single-element arrays at
// arbitrary levels, so everything goes through firstObject/stringValue.
func recordFromJSONLD(doc *goquery.Document, c model.Candidate) (model.Record, bool) {
	var rec model.Record
	found := false

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}

		posting := findJobPosting(raw)
		if posting == nil {
			return true
		}

		org := firstObject(posting["hiringOrganization"])
		loc := firstObject(posting["jobLocation"])
		addr := firstObject(loc["address"])

		var locParts []string
		for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
			if v := stringValue(addr[key]); v != "" {
				locParts = append(locParts, v)
			}
		}

		rec = model.Record{
			Identity: c.Identity,
			Source:   "linkedin",
			URL:      c.URL,
			Attributes: map[string]string{
				model.AttrTitle:       stringValue(posting["title"]),
				model.AttrCompany:     stringValue(org["name"]),
				model.AttrLocation:    strings.Join(locParts, ", "),
				model.AttrSalary:      jsonldSalary(posting["baseSalary"]),
				model.AttrEmployment:  stringValue(posting["employmentType"]),
				model.AttrDeadline:    stringValue(posting["validThrough"]),
				model.AttrDatePosted:  stringValue(posting["datePosted"]),
				model.AttrDescription: truncate(extractText(stringValue(posting["description"])), linkedinDescriptionCap),
			},
		}
		found = true
		return false
	})

	return rec, found
}

// recordFromMarkup extracts the posting from page markup, falling back to
// search hints field by field.
func recordFromMarkup(doc *goquery.Document, c model.Candidate) (model.Record, error) {
	hintCompany, hintTitle, hintLocation, _ := parseSearchTitle(c.Hint[hintSearchTitle])

	title := selectText(doc, "h1.top-card-layout__title, h2.top-card-layout__title, h1.topcard__title")
	if title == "" {
		title = hintTitle
	}
	company := selectText(doc, "a.topcard__org-name-link, span.topcard__flavor, a.top-card-layout__company-url")
	if company == "" {
		company = hintCompany
	}
	location := selectText(doc, "span.topcard__flavor--bullet, span.top-card-layout__bullet")
	if location == "" {
		location = hintLocation
	}
	description := selectText(doc, "div.description__text, div.show-more-less-html__markup, section.description div.core-section-container__content")
	if description == "" {
		description = c.Hint[hintSearchContent]
	}

	if title == "" {
		return model.Record{}, fmt.Errorf("linkedin job %s: no extractable detail", c.Identity)
	}

	criteria := make(map[string]string)
	doc.Find("li.description__job-criteria-item").Each(func(_ int, s *goquery.Selection) {
		header := strings.ToLower(strings.TrimSpace(s.Find("h3").First().Text()))
		value := strings.TrimSpace(s.Find("span").First().Text())
		if header != "" && value != "" {
			criteria[header] = value
		}
	})

	return model.Record{
		Identity: c.Identity,
		Source:   "linkedin",
		URL:      c.URL,
		Attributes: map[string]string{
			model.AttrTitle:       title,
			model.AttrCompany:     company,
			model.AttrLocation:    location,
			model.AttrEmployment:  criteria["employment type"],
			model.AttrExperience:  criteria["seniority level"],
			model.AttrDescription: truncate(strings.Join(strings.Fields(description), " "), linkedinDescriptionCap),
		},
	}, nil
}

func selectText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// findJobPosting locates a JobPosting object in decoded JSON-LD, which may be
// a single object or a list mixing in other @types.
func findJobPosting(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		if stringValue(v["@type"]) == "JobPosting" {
			return v
		}
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok && stringValue(m["@type"]) == "JobPosting" {
				return m
			}
		}
	}
	return nil
}

// firstObject returns v as an object, unwrapping a single-element list.
// Returns an empty map for anything else so lookups stay nil-safe.
func firstObject(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]any); ok {
				return m
			}
		}
	}
	return map[string]any{}
}

// stringValue renders a JSON-LD value as a string, joining lists.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		return stringValue(t["name"])
	}
	return ""
}

// jsonldSalary renders a baseSalary object as "min-max" or a plain value.
func jsonldSalary(v any) string {
	salary := firstObject(v)
	if len(salary) == 0 {
		return stringValue(v)
	}
	value := salary["value"]
	if obj := firstObject(value); len(obj) > 0 {
		min := stringValue(obj["minValue"])
		max := stringValue(obj["maxValue"])
		if min != "" || max != "" {
			return min + "-" + max
		}
		return stringValue(obj["value"])
	}
	return stringValue(value)
}
