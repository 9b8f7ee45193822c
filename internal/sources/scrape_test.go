package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/html"

	logx "linkwatch/pkg/logx"
)

func parseDoc(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func servePage(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestScraper(t *testing.T, page string, skipPinned bool) *Scraper {
	t.Helper()
	srv := servePage(t, page)
	return NewScraper(NewClient(logx.Nop()), ScraperConfig{
		Name:       "test-page",
		PageURL:    srv.URL,
		Extract:    ExtractStatusLinks,
		SkipPinned: skipPinned,
	}, logx.Nop())
}

func TestScraperSkipPinnedReturnsSecond(t *testing.T) {
	t.Parallel()
	s := newTestScraper(t, `<html><body>
		<a href="https://x.com/u/status/3">pinned</a>
		<a href="https://x.com/u/status/2">newest</a>
		<a href="https://x.com/u/status/1">older</a>
	</body></html>`, true)

	item, ok, err := s.Latest(context.Background())
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if item.URL != "https://x.com/u/status/2" {
		t.Fatalf("expected second candidate, got %q", item.URL)
	}
}

func TestScraperSkipPinnedSingleCandidateFallsBack(t *testing.T) {
	t.Parallel()
	s := newTestScraper(t, `<a href="https://x.com/u/status/3">only</a>`, true)

	item, ok, err := s.Latest(context.Background())
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if item.URL != "https://x.com/u/status/3" {
		t.Fatalf("expected fallback to the only candidate, got %q", item.URL)
	}
}

func TestScraperNoCandidatesIsAbsent(t *testing.T) {
	t.Parallel()
	s := newTestScraper(t, `<html><body><a href="/about">about</a></body></html>`, true)

	_, ok, err := s.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if ok {
		t.Fatal("expected absent result")
	}
}

func TestScraperFirstCandidateWithoutSkip(t *testing.T) {
	t.Parallel()
	srv := servePage(t, `<a href="/page/posts/10">a</a><a href="/page/posts/9">b</a>`)
	s := NewScraper(NewClient(logx.Nop()), ScraperConfig{
		Name:    "facebook",
		PageURL: srv.URL,
		Extract: ExtractFacebookPosts,
	}, logx.Nop())

	item, ok, err := s.Latest(context.Background())
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if item.URL != "https://www.facebook.com/page/posts/10" {
		t.Fatalf("unexpected url %q", item.URL)
	}
}

func TestExtractStatusLinks(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `<html><body>
		<a href="https://x.com/u/status/5/analytics">skip</a>
		<a href="https://x.com/u/status/5/photo/image.jpg">skip</a>
		<a href="/u/status/5">first</a>
		<a href="/u/status/5">duplicate</a>
		<a href="https://x.com/u/status/4">second</a>
		<a href="/u/likes">not a status</a>
	</body></html>`)

	got := ExtractStatusLinks(doc)
	want := []string{"https://x.com/u/status/5", "https://x.com/u/status/4"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestExtractPortalLinks(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `<html><body>
		<a href="/page/us/news/news-list">listing</a>
		<a href="/page/us/news/news-detail/8">article</a>
	</body></html>`)

	got := ExtractNewsLinks(doc)
	if len(got) != 1 || got[0] != "https://ultraman-cardgame.com/page/us/news/news-detail/8" {
		t.Fatalf("unexpected candidates %v", got)
	}
}
