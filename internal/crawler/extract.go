package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// schemeToken matches an href that starts with a scheme such as "mailto:".
// Hrefs whose colon is followed by "//" are network URLs and are kept.
var schemeToken = regexp.MustCompile(`^[A-Za-z]+:`)

// Links is the result of extracting a single page.
type Links struct {
	// URLs are the resolved absolute candidate URLs in document order.
	// Duplicates are kept; deduplication is the frontier's job.
	URLs []string

	// Indexable is false when the page declares robots noindex.
	Indexable bool

	// NoFollow is true when the page declares robots nofollow.
	// URLs is always empty in that case.
	NoFollow bool
}

// ExtractLinks locates the robots directives and anchors of an HTML document
// and resolves every followable href against source.
//
// Design decision: We query the DOM with goquery instead of walking
// golang.org/x/net/html nodes by hand because:
//  1. Selector lookups for meta, base and anchors stay one-liners
//  2. goquery parses with golang.org/x/net/html, so malformed markup is
//     handled exactly like the browser-grade tokenizer handles it
func ExtractLinks(document string, source *url.URL) (Links, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return Links{}, err
	}

	links := Links{Indexable: true}

	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "robots") {
			return
		}
		content := strings.ToLower(s.AttrOr("content", ""))
		if strings.Contains(content, "noindex") {
			links.Indexable = false
		}
		if strings.Contains(content, "nofollow") {
			links.NoFollow = true
		}
	})

	if links.NoFollow {
		return links, nil
	}

	base := documentBase(doc, source)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if rel, ok := s.Attr("rel"); ok && strings.Contains(strings.ToLower(rel), "nofollow") {
			return
		}
		href, _ := s.Attr("href")
		if resolved, ok := resolveHref(href, source, base); ok {
			links.URLs = append(links.URLs, resolved)
		}
	})

	return links, nil
}

// documentBase returns the <base href> of the document resolved against
// source, or nil when there is none or it does not parse.
func documentBase(doc *goquery.Document, source *url.URL) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return nil
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	return source.ResolveReference(ref)
}

// resolveHref applies the anchor rules to a single href and returns the
// absolute URL, or false when the anchor must be dropped.
func resolveHref(href string, source, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)

	if loc := schemeToken.FindStringIndex(href); loc != nil && !strings.HasPrefix(href[loc[1]:], "//") {
		return "", false
	}

	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if href == "" {
		return "", false
	}

	if strings.HasPrefix(href, "//") {
		href = source.Scheme + ":" + href
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(href)
		if err != nil || u.Host == "" {
			return "", false
		}
		return u.String(), true
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	against := source
	if base != nil {
		against = base
	}
	resolved := against.ResolveReference(ref)
	if !resolved.IsAbs() {
		resolved = source.ResolveReference(resolved)
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""

	return resolved.String(), true
}
