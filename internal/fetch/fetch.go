// Package fetch defines the page-fetching contract shared by the browser and
// plain HTTP fetchers.
package fetch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Cookie is a name/value pair attached to every page request.
type Cookie struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Visit describes one page visit.
type Visit struct {
	URL string

	Cookies []Cookie

	// BlockedExtensions lists path extensions that are never loaded, neither
	// as the document nor as a sub-resource. Matching is case-insensitive and
	// the leading dot is optional.
	BlockedExtensions []string

	// Selector, when set, must appear within SelectorTimeout or the visit
	// fails.
	Selector        string
	SelectorTimeout time.Duration
}

// Page is the loaded document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
	Links      []string // absolute http(s) URLs in document order
	Duration   time.Duration
}

// Fetcher loads pages.
type Fetcher interface {
	Fetch(ctx context.Context, visit *Visit) (*Page, error)
	Close() error
}

// ExtractLinks returns the absolute http(s) targets of anchor-like elements
// in htmlContent, resolved against base and deduplicated.
func ExtractLinks(htmlContent string, base *url.URL) []string {
	links := make([]string, 0, 64)

	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return links
	}

	// <base href> overrides the document URL
	seen := make(map[string]bool)
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "base":
				if href := attr(n, "href"); href != "" {
					if parsed, err := url.Parse(href); err == nil {
						base = base.ResolveReference(parsed)
					}
				}
			case "a", "area":
				link := ResolveLink(attr(n, "href"), base)
				if link != "" && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(doc)
	return links
}

// ResolveLink resolves href against base. Non-navigational hrefs
// (fragments, javascript:, mailto:, tel:, data:) and non-http(s) results
// yield "".
func ResolveLink(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""

	return resolved.String()
}

// BlockedExtension reports whether rawURL's path ends with one of exts.
func BlockedExtension(rawURL string, exts []string) bool {
	if len(exts) == 0 {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
