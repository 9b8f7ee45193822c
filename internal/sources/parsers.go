package sources

import (
	"strings"

	"golang.org/x/net/html"
)

// Page-specific extraction functions for the generic Scraper. Each walks the
// parsed document and returns candidate post URLs in document order, which
// the origins render most-recent-first.

// ExtractFacebookPosts finds post/video permalinks on a facebook-style page.
func ExtractFacebookPosts(doc *html.Node) []string {
	var out []string
	eachAnchor(doc, func(href string) {
		if !strings.Contains(href, "/posts/") && !strings.Contains(href, "/videos/") {
			return
		}
		out = append(out, absolutize(href, "https://www.facebook.com"))
	})
	return dedupe(out)
}

// ExtractStatusLinks finds tweet permalinks on a twitter-style profile page.
// The first candidate is usually the pinned tweet; use the Scraper's
// skipPinned policy with this extractor.
func ExtractStatusLinks(doc *html.Node) []string {
	var out []string
	eachAnchor(doc, func(href string) {
		lower := strings.ToLower(href)
		if strings.Contains(lower, "image") || strings.Contains(lower, "analytics") {
			return
		}
		if !strings.Contains(href, "/status/") {
			return
		}
		out = append(out, absolutize(href, "https://x.com"))
	})
	return dedupe(out)
}

// ExtractColumnLinks finds column article links on the portal's column page.
func ExtractColumnLinks(doc *html.Node) []string {
	return extractPortalLinks(doc, "/column/", "/column-list")
}

// ExtractNewsLinks finds news article links on the portal's news page.
func ExtractNewsLinks(doc *html.Node) []string {
	return extractPortalLinks(doc, "/news/", "/news-list")
}

func extractPortalLinks(doc *html.Node, marker, listSuffix string) []string {
	var out []string
	eachAnchor(doc, func(href string) {
		if !strings.Contains(href, marker) || strings.HasSuffix(href, listSuffix) {
			return
		}
		out = append(out, absolutize(href, "https://ultraman-cardgame.com"))
	})
	return dedupe(out)
}

// eachAnchor walks every <a href> in the document in order.
func eachAnchor(n *html.Node, fn func(href string)) {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key == "href" && attr.Val != "" {
				fn(attr.Val)
				break
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		eachAnchor(c, fn)
	}
}

func absolutize(href, base string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}

// dedupe drops repeated URLs while preserving first-seen order; pages often
// wrap the same permalink around several elements.
func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, u := range in {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
