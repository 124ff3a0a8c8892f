// Package scope decides which discovered links belong to the crawl and
// normalizes them for deduplication.
package scope

import (
	"net/url"
	"strings"
)

// nonPageExtensions are never enqueued as pages. Links to them are out of
// scope, not skipped.
var nonPageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".ico", ".svg", ".webp", ".avif",
	".css", ".js", ".mjs", ".map", ".woff", ".woff2", ".ttf", ".eot",
	".pdf", ".zip", ".tar", ".gz", ".rar", ".7z",
	".mp3", ".mp4", ".wav", ".avi", ".mov", ".webm",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".xml", ".json", ".rss", ".atom",
}

// Checker keeps a crawl on the start URL's origin.
type Checker struct {
	scheme string
	host   string
}

// NewChecker creates a checker for startURL's origin.
func NewChecker(startURL string) (*Checker, error) {
	normalized, err := NormalizeURL(startURL)
	if err != nil {
		return nil, err
	}
	parsed, _ := url.Parse(normalized)
	return &Checker{scheme: parsed.Scheme, host: parsed.Host}, nil
}

// Origin returns scheme://host[:port] of the crawl.
func (c *Checker) Origin() string {
	return c.scheme + "://" + c.host
}

// SameOrigin reports whether urlStr shares the crawl's scheme, host and port.
func (c *Checker) SameOrigin(urlStr string) bool {
	normalized, err := NormalizeURL(urlStr)
	if err != nil {
		return false
	}
	parsed, _ := url.Parse(normalized)
	return parsed.Scheme == c.scheme && parsed.Host == c.host
}

// IsInScope reports whether a link should be enqueued: same origin and not
// an obvious static asset.
func (c *Checker) IsInScope(urlStr string) bool {
	return IsValidURL(urlStr) && c.SameOrigin(urlStr)
}

// NormalizeURL normalizes a URL for deduplication.
func NormalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	if (parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		parsed.RawPath = ""
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}

	if parsed.RawQuery != "" {
		parsed.RawQuery = parsed.Query().Encode()
	}

	return parsed.String(), nil
}

// ResolveURL resolves a link against the page it was found on and drops the
// fragment.
func ResolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	ref, err := url.Parse(strings.TrimSpace(relativeURL))
	if err != nil {
		return "", err
	}

	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), nil
}

// IsValidURL checks that a URL is an absolute http(s) URL that does not
// point at a static asset.
func IsValidURL(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}

	path := strings.ToLower(parsed.Path)
	for _, ext := range nonPageExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}

	return true
}
