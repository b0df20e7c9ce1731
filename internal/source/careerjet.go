package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nazmulh/jobdelta/internal/identity"
	"github.com/nazmulh/jobdelta/internal/model"
)

const (
	careerjetEndpoint = "https://search.api.careerjet.net/v4/query"
	careerjetPageSize = 99 // API max is 100
	careerjetMaxPages = 10 // API max
)

// CareerJetConfig carries the API credentials and the request fingerprint the
// CareerJet partner API requires on every call.
type CareerJetConfig struct {
	APIKey      string
	Locale      string // e.g. "en_BD"
	UserIP      string // end-user IP the API attributes the search to
	UserAgent   string
	RefererBase string // page URL that triggered the search, per API docs
}

// CareerJet discovers postings through the CareerJet search API. The API
// response carries the full posting, so discovery attaches everything as
// hints and enrichment is a local promotion (see HintSessionFactory).
type CareerJet struct {
	cfg      CareerJetConfig
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewCareerJet creates a CareerJet discovery source.
func NewCareerJet(cfg CareerJetConfig, client *http.Client, logger *slog.Logger) *CareerJet {
	return &CareerJet{
		cfg:      cfg,
		endpoint: careerjetEndpoint,
		client:   client,
		logger:   logger,
	}
}

// careerjetJob is a single job in the CareerJet API response.
type careerjetJob struct {
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Locations      string     `json:"locations"`
	Salary         string     `json:"salary"`
	SalaryMin      flexString `json:"salary_min"`
	SalaryMax      flexString `json:"salary_max"`
	SalaryCurrency string     `json:"salary_currency_code"`
	SalaryType     string     `json:"salary_type"`
	Date           string     `json:"date"`
	Description    string     `json:"description"`
	Site           string     `json:"site"`
}

// careerjetResponse is the top-level CareerJet API response. Type "LOCATIONS"
// means the location was ambiguous and the body holds location suggestions
// instead of jobs.
type careerjetResponse struct {
	Type    string         `json:"type"`
	Jobs    []careerjetJob `json:"jobs"`
	Hits    int            `json:"hits"`
	Pages   int            `json:"pages"`
	Message string         `json:"message"`
}

// Discover queries every keyword × location combination in the batch,
// paginating each, and returns the deduplicated candidate set.
func (c *CareerJet) Discover(ctx context.Context, batch model.Batch) ([]model.Candidate, error) {
	seen := make(map[string]bool)
	var candidates []model.Candidate

	for _, keyword := range batch.Keywords {
		for _, location := range batch.Locations {
			combo, err := c.searchCombo(ctx, keyword, location)
			if err != nil {
				return nil, fmt.Errorf("careerjet search %q in %q: %w", keyword, location, err)
			}
			for _, cand := range combo {
				if seen[cand.Identity] {
					continue
				}
				seen[cand.Identity] = true
				candidates = append(candidates, cand)
			}
		}
	}

	c.logger.Info("careerjet discovery complete",
		"keywords", len(batch.Keywords),
		"locations", len(batch.Locations),
		"candidates", len(candidates),
	)
	return candidates, nil
}

// searchCombo pages through one keyword × location query.
func (c *CareerJet) searchCombo(ctx context.Context, keyword, location string) ([]model.Candidate, error) {
	var out []model.Candidate

	for page := 1; page <= careerjetMaxPages; page++ {
		resp, err := c.searchPage(ctx, keyword, location, page)
		if err != nil {
			return nil, err
		}

		if resp.Type == "LOCATIONS" {
			// Ambiguous location; no job results in this response.
			c.logger.Warn("careerjet location mode", "location", location, "message", resp.Message)
			return out, nil
		}

		if len(resp.Jobs) == 0 {
			break
		}
		for _, job := range resp.Jobs {
			if cand, ok := c.normalize(job); ok {
				out = append(out, cand)
			}
		}
		if page >= resp.Pages {
			break
		}
	}

	return out, nil
}

func (c *CareerJet) searchPage(ctx context.Context, keyword, location string, page int) (*careerjetResponse, error) {
	params := url.Values{
		"locale_code":   {c.cfg.Locale},
		"keywords":      {keyword},
		"location":      {location},
		"page_size":     {strconv.Itoa(careerjetPageSize)},
		"page":          {strconv.Itoa(page)},
		"sort":          {"date"},
		"fragment_size": {"500"},
		"user_ip":       {c.cfg.UserIP},
		"user_agent":    {c.cfg.UserAgent},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.cfg.APIKey+":")))
	// The API requires the referer to be the page that triggered the search.
	req.Header.Set("Referer", fmt.Sprintf("%s?s=%s&l=%s",
		c.cfg.RefererBase, url.QueryEscape(keyword), url.QueryEscape(location)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("careerjet API returned %d", resp.StatusCode),
		}
	}

	var cjResp careerjetResponse
	if err := json.NewDecoder(resp.Body).Decode(&cjResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &cjResp, nil
}

// normalize converts an API job into a candidate carrying the full posting as
// hints. Jobs with no derivable identity are dropped.
func (c *CareerJet) normalize(job careerjetJob) (model.Candidate, bool) {
	id := identity.CareerJet(job.URL, job.Title, job.Company, job.Locations)
	if id == "" {
		return model.Candidate{}, false
	}

	return model.Candidate{
		Identity: id,
		URL:      job.URL,
		Hint: map[string]string{
			model.AttrTitle:       job.Title,
			model.AttrCompany:     job.Company,
			model.AttrLocation:    job.Locations,
			model.AttrSalary:      normalizeSalary(job),
			model.AttrDatePosted:  job.Date,
			model.AttrDescription: extractText(job.Description),
			"site":                job.Site,
		},
	}, true
}

var salaryTypeNames = map[string]string{
	"Y": "yearly",
	"M": "monthly",
	"W": "weekly",
	"D": "daily",
	"H": "hourly",
}

// normalizeSalary prefers the API's display string and otherwise builds one
// from the min/max/currency/period fields.
func normalizeSalary(job careerjetJob) string {
	if job.Salary != "" {
		return job.Salary
	}

	min, max := string(job.SalaryMin), string(job.SalaryMax)
	var salary string
	switch {
	case min != "" && max != "":
		salary = fmt.Sprintf("%s %s - %s", job.SalaryCurrency, min, max)
	case min != "":
		salary = fmt.Sprintf("%s %s+", job.SalaryCurrency, min)
	case max != "":
		salary = fmt.Sprintf("Up to %s %s", job.SalaryCurrency, max)
	default:
		return ""
	}

	if period, ok := salaryTypeNames[job.SalaryType]; ok {
		salary += " (" + period + ")"
	}
	return salary
}

// flexString decodes JSON values the API returns sometimes as numbers and
// sometimes as strings.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
