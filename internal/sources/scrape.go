package sources

import (
	"context"
	"net/http"

	"golang.org/x/net/html"

	logx "linkwatch/pkg/logx"
)

// Extract pulls candidate post URLs out of a parsed page, most recent first.
type Extract func(doc *html.Node) []string

// Scraper is the generic page-scrape adapter: one GET, one page-specific
// extraction function, one selection policy.
type Scraper struct {
	client *Client
	log    logx.Logger

	name    string
	pageURL string
	extract Extract

	// skipPinned selects the second candidate instead of the first, for
	// origins that always surface a pinned post at the top. With a single
	// candidate it falls back to that one (noisily); with none, absent.
	skipPinned bool
}

type ScraperConfig struct {
	Name       string
	PageURL    string
	Extract    Extract
	SkipPinned bool
}

func NewScraper(client *Client, cfg ScraperConfig, log logx.Logger) *Scraper {
	return &Scraper{
		client:     client,
		log:        log.With(logx.String("source", cfg.Name)),
		name:       cfg.Name,
		pageURL:    cfg.PageURL,
		extract:    cfg.Extract,
		skipPinned: cfg.SkipPinned,
	}
}

func (s *Scraper) Name() string { return s.name }

func (s *Scraper) Latest(ctx context.Context) (Item, bool, error) {
	return latestWithRetry(ctx, s.log, "scrape.latest", s.fetch)
}

func (s *Scraper) fetch(ctx context.Context) (Item, bool, error) {
	resp, err := s.client.get(ctx, s.pageURL, nil)
	if err != nil {
		return Item{}, false, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		drainBody(resp)
		s.log.Warn("rate limited by origin", logx.String("url", s.pageURL))
		return Item{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		drainBody(resp)
		s.log.Error("fetch rejected", logx.String("url", s.pageURL), logx.Int("status", resp.StatusCode))
		return Item{}, false, nil
	}

	doc, err := html.Parse(resp.Body)
	resp.Body.Close()
	if err != nil {
		return Item{}, false, err
	}

	candidates := s.extract(doc)
	link, ok := s.pick(candidates)
	if !ok {
		s.log.Warn("no post found on page", logx.String("url", s.pageURL))
		return Item{}, false, nil
	}
	s.log.Info("found latest post", logx.String("url", link))
	return Item{URL: link, Source: s.name}, true, nil
}

func (s *Scraper) pick(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	if !s.skipPinned {
		return candidates[0], true
	}
	if len(candidates) >= 2 {
		// First match is the pinned post; the next one is the real newest.
		return candidates[1], true
	}
	s.log.Warn("only one candidate found; it may be the pinned post")
	return candidates[0], true
}
