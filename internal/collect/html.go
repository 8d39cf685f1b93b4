package collect

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// HTMLCollector scrapes listing pages of portals without an API. Selectors
// come from the source registry; field parsing is left to the normalizer.
type HTMLCollector struct {
	cfg SourceConfig
}

func NewHTMLCollector(cfg SourceConfig) *HTMLCollector {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	return &HTMLCollector{cfg: cfg}
}

func (c *HTMLCollector) Name() string { return c.cfg.ID }

func (c *HTMLCollector) buildCollector() *colly.Collector {
	col := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (compatible; grants-monitor/1.0)"),
		colly.MaxBodySize(10*1024*1024),
		colly.AllowURLRevisit(),
	)

	delay := time.Second
	if c.cfg.Fetch.RateLimitRPS > 0 {
		delay = time.Duration(float64(time.Second) / c.cfg.Fetch.RateLimitRPS)
	}
	col.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
		RandomDelay: delay / 2,
	})

	timeout := 30 * time.Second
	if c.cfg.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(c.cfg.Fetch.TimeoutSeconds) * time.Second
	}
	col.SetRequestTimeout(timeout)

	return col
}

// Fetch visits every seed URL and extracts one record per configured
// container element.
func (c *HTMLCollector) Fetch(ctx context.Context) ([]RawRecord, error) {
	if c.cfg.Selectors.Container == "" {
		return nil, eris.Errorf("collect: source %q has no container selector", c.cfg.ID)
	}

	col := c.buildCollector()

	var records []RawRecord
	var scrapeErr error

	col.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
			scrapeErr = ctx.Err()
		default:
		}
	})

	col.OnHTML(c.cfg.Selectors.Container, func(e *colly.HTMLElement) {
		rec := c.extractRecord(e)
		if rec.Title == "" {
			return
		}
		records = append(records, rec)
	})

	col.OnError(func(r *colly.Response, err error) {
		if scrapeErr == nil {
			scrapeErr = eris.Wrapf(err, "collect: scrape %s", r.Request.URL)
		}
	})

	for _, seed := range c.cfg.Seeds {
		if err := col.Visit(seed); err != nil && scrapeErr == nil {
			scrapeErr = eris.Wrapf(err, "collect: visit %s", seed)
		}
	}
	col.Wait()

	if len(records) == 0 && scrapeErr != nil {
		return nil, scrapeErr
	}
	if scrapeErr != nil {
		zap.L().Warn("html source returned partial results",
			zap.String("source", c.cfg.ID),
			zap.Int("records", len(records)),
			zap.Error(scrapeErr),
		)
	}
	return records, nil
}

func (c *HTMLCollector) extractRecord(e *colly.HTMLElement) RawRecord {
	sel := c.cfg.Selectors

	rec := RawRecord{
		SourceSystem: c.cfg.ID,
		Title:        cleanSelection(e.DOM, sel.Title),
		Synopsis:     cleanSelection(e.DOM, sel.Synopsis),
		RawDeadline:  cleanSelection(e.DOM, sel.Deadline),
		RawBudget:    cleanSelection(e.DOM, sel.Budget),
	}

	if sel.Link != "" {
		if href, ok := e.DOM.Find(sel.Link).First().Attr("href"); ok {
			rec.SourceURL = e.Request.AbsoluteURL(strings.TrimSpace(href))
		}
	}

	// Scraped portals rarely expose a stable ID; the detail URL is the most
	// stable handle available, with the title as a fallback.
	rec.ExternalID = rec.SourceURL
	if rec.ExternalID == "" {
		rec.ExternalID = strings.ToLower(rec.Title)
	}
	return rec
}

func cleanSelection(dom *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(dom.Find(selector).First().Text()), " ")
}
