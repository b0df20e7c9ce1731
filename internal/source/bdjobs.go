package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"github.com/nazmulh/jobdelta/internal/identity"
	"github.com/nazmulh/jobdelta/internal/model"
)

const (
	bdjobsListURL        = "https://bdjobs.com/h/jobs"
	bdjobsMaxPages       = 100
	bdjobsDescriptionCap = 3000
)

// bdjobs listing pagination is a SPA; links are harvested from the rendered
// DOM and the Next button is clicked until no new links appear.
const (
	bdjobsCollectLinksJS = `[...new Set([...document.querySelectorAll('a[href*="/h/details/"]')].map(e => e.href))]`

	// Selects "100 per page" when the dropdown exists; returns whether it did.
	bdjobsSetPageSizeJS = `(() => {
		const sel = [...document.querySelectorAll('select')].find(
			s => [...s.options].some(o => o.label === '100'));
		if (!sel) return false;
		sel.value = [...sel.options].find(o => o.label === '100').value;
		sel.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`

	// Clicks the Next control unless missing or disabled; returns whether it clicked.
	bdjobsClickNextJS = `(() => {
		const btn = [...document.querySelectorAll('button, span')].find(
			e => e.textContent.trim() === 'Next');
		if (!btn || btn.disabled) return false;
		btn.click();
		return true;
	})()`
)

// BDJobs discovers postings by walking the bdjobs.com SPA listing in a
// headless browser and enriches them by rendering each detail page. It is
// both a DiscoverySource and a SessionFactory.
type BDJobs struct {
	listURL     string
	maxPages    int
	pageTimeout time.Duration
	logger      *slog.Logger
}

// NewBDJobs creates a bdjobs.com source. Requires Chrome/Chromium installed.
func NewBDJobs(logger *slog.Logger) *BDJobs {
	return &BDJobs{
		listURL:     bdjobsListURL,
		maxPages:    bdjobsMaxPages,
		pageTimeout: 60 * time.Second,
		logger:      logger,
	}
}

// newBrowserContext builds a headless browser tab context. The returned
// cancel releases both the tab and the allocator.
func newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	return tabCtx, func() {
		cancelTab()
		cancelAlloc()
	}
}

// Discover pages through the whole listing and returns every posting link as
// a candidate. The site lists all open postings at once, so the rotation
// batch is not used here.
func (b *BDJobs) Discover(ctx context.Context, _ model.Batch) ([]model.Candidate, error) {
	browserCtx, cancel := newBrowserContext(ctx)
	defer cancel()

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(b.listURL),
		chromedp.WaitVisible(`a[href*="/h/details/"]`, chromedp.ByQuery),
		chromedp.Sleep(1500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("bdjobs listing load: %w", err)
	}

	// Fewer pagination clicks with 100 jobs per page; keep going if the
	// dropdown is missing.
	var resized bool
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(bdjobsSetPageSizeJS, &resized)); err == nil && resized {
		_ = chromedp.Run(browserCtx, chromedp.Sleep(3*time.Second))
	}

	seen := make(map[string]bool)
	var candidates []model.Candidate

	for page := 1; page <= b.maxPages; page++ {
		var links []string
		if err := chromedp.Run(browserCtx, chromedp.Evaluate(bdjobsCollectLinksJS, &links)); err != nil {
			return nil, fmt.Errorf("bdjobs collect links (page %d): %w", page, err)
		}

		newCount := 0
		for _, link := range links {
			id := identity.BDJobs(link)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			newCount++
			candidates = append(candidates, model.Candidate{Identity: id, URL: link})
		}
		b.logger.Debug("bdjobs listing page", "page", page, "new_links", newCount, "total", len(candidates))

		if newCount == 0 {
			break
		}

		var clicked bool
		if err := chromedp.Run(browserCtx, chromedp.Evaluate(bdjobsClickNextJS, &clicked)); err != nil || !clicked {
			break
		}
		err = chromedp.Run(browserCtx,
			chromedp.Sleep(3*time.Second),
			chromedp.WaitVisible(`a[href*="/h/details/"]`, chromedp.ByQuery),
		)
		if err != nil {
			return nil, fmt.Errorf("bdjobs pagination (page %d): %w", page, err)
		}
	}

	b.logger.Info("bdjobs discovery complete", "candidates", len(candidates))
	return candidates, nil
}

// NewSession opens a dedicated browser tab for one enrichment worker.
func (b *BDJobs) NewSession(ctx context.Context) (model.Session, error) {
	tabCtx, cancel := newBrowserContext(ctx)
	// Launch the browser eagerly so session failures surface here, not on the
	// first Enrich.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("bdjobs browser launch: %w", err)
	}
	return &bdjobsSession{ctx: tabCtx, cancel: cancel, timeout: b.pageTimeout}, nil
}

type bdjobsSession struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// Enrich renders the detail page and extracts the posting fields.
func (s *bdjobsSession) Enrich(ctx context.Context, c model.Candidate) (model.Record, error) {
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
		return model.Record{}, fmt.Errorf("bdjobs detail load %s: %w", c.URL, err)
	}

	return parseBDJobsDetail(pageHTML, c)
}

func (s *bdjobsSession) Close() error {
	s.cancel()
	return nil
}

// parseBDJobsDetail extracts a record from a rendered bdjobs detail page.
// Company is the first h2 with the apphighlight attribute, job title the
// second; labelled fields live in the sibling element after their label.
func parseBDJobsDetail(pageHTML string, c model.Candidate) (model.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return model.Record{}, fmt.Errorf("parse bdjobs detail: %w", err)
	}

	highlights := doc.Find("h2[apphighlight]")
	company := strings.TrimSpace(highlights.Eq(0).Text())
	title := strings.TrimSpace(highlights.Eq(1).Text())

	description := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	return model.Record{
		Identity: c.Identity,
		Source:   "bdjobs",
		URL:      c.URL,
		Attributes: map[string]string{
			model.AttrTitle:       title,
			model.AttrCompany:     company,
			model.AttrLocation:    siblingField(doc, "Job Location"),
			model.AttrSalary:      siblingField(doc, "Salary"),
			model.AttrExperience:  siblingField(doc, "Experience"),
			model.AttrEducation:   siblingField(doc, "Educational"),
			model.AttrDeadline:    siblingField(doc, "Application Deadline"),
			model.AttrDescription: truncate(description, bdjobsDescriptionCap),
		},
	}, nil
}

// siblingField finds the element whose own text contains label and returns
// the text of its next sibling.
func siblingField(doc *goquery.Document, label string) string {
	var out string
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(ownText(s), label) {
			return true
		}
		if sib := s.Next(); sib.Length() > 0 {
			out = strings.TrimSpace(sib.Text())
			return false
		}
		return true
	})
	return out
}

// ownText returns only the direct text content of a selection, excluding
// descendant elements.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				b.WriteString(child.Data)
			}
		}
	}
	return b.String()
}
