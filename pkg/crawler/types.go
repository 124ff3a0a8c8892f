// Package crawler runs a bounded crawl of one site and returns the readable
// content of every page it visited.
package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PentesterFlow/SiteCrawler/internal/errors"
	"github.com/PentesterFlow/SiteCrawler/internal/fetch"
)

// Cookie is attached to every page request of a crawl.
type Cookie = fetch.Cookie

// CrawlRequest describes one crawl. The crawler copies it on entry; later
// changes by the caller have no effect on a running crawl.
type CrawlRequest struct {
	StartURL string `json:"startUrl" yaml:"start_url"`

	// MaxRequestsPerCrawl caps page visit attempts, retries included.
	MaxRequestsPerCrawl int `json:"maxRequestsPerCrawl" yaml:"max_requests_per_crawl"`

	// CrawlSitemap seeds the crawl from the site's sitemaps instead of
	// StartURL alone.
	CrawlSitemap bool `json:"crawlSitemap" yaml:"crawl_sitemap"`

	// Selector picks the element to extract. Pages where it does not appear
	// within WaitForSelectorTimeout fail.
	Selector               string        `json:"selector,omitempty" yaml:"selector"`
	WaitForSelectorTimeout time.Duration `json:"waitForSelectorTimeout,omitempty" yaml:"wait_for_selector_timeout"`

	// Match and Exclude are URL globs. Excluded URLs are never visited;
	// when Match is non-empty, only matching links are.
	Match   []string `json:"match,omitempty" yaml:"match"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude"`

	Cookies []Cookie `json:"cookies,omitempty" yaml:"cookies"`

	// ResourceFileTypeExclusions lists file extensions that are never loaded,
	// e.g. "png" or ".woff2". Matching links are skipped without using budget
	// and matching sub-resource requests are aborted.
	ResourceFileTypeExclusions []string `json:"resourceFileTypeExclusions,omitempty" yaml:"resource_file_type_exclusions"`

	// OnProgress is called after every completed page and on every status
	// interval. Calls never overlap.
	OnProgress func(ProgressEvent) `json:"-" yaml:"-"`
}

// Validate checks the request.
func (r *CrawlRequest) Validate() error {
	if r.StartURL == "" {
		return errors.NewCrawlError(errors.Validation, "", "validate_request", "start URL is required", nil)
	}
	u, err := url.Parse(r.StartURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewCrawlError(errors.Validation, r.StartURL, "validate_request", "start URL must be an absolute http(s) URL", err)
	}
	if r.MaxRequestsPerCrawl <= 0 {
		return errors.NewCrawlError(errors.Validation, r.StartURL, "validate_request",
			fmt.Sprintf("max requests per crawl must be positive, got %d", r.MaxRequestsPerCrawl), nil)
	}
	if r.WaitForSelectorTimeout < 0 {
		return errors.NewCrawlError(errors.Validation, r.StartURL, "validate_request", "wait for selector timeout must not be negative", nil)
	}
	for _, c := range r.Cookies {
		if strings.TrimSpace(c.Name) == "" {
			return errors.NewCrawlError(errors.Validation, r.StartURL, "validate_request", "cookie name is required", nil)
		}
	}
	return nil
}

func (r CrawlRequest) clone() CrawlRequest {
	r.Match = append([]string(nil), r.Match...)
	r.Exclude = append([]string(nil), r.Exclude...)
	r.Cookies = append([]Cookie(nil), r.Cookies...)
	r.ResourceFileTypeExclusions = append([]string(nil), r.ResourceFileTypeExclusions...)
	return r
}

// CrawlPage is the record produced for every successfully visited page.
type CrawlPage struct {
	Title           string `json:"title"`
	URL             string `json:"url"`
	Text            string `json:"text"`
	Description     string `json:"description,omitempty"`
	ContentHTML     string `json:"contentHtml,omitempty"`
	ContentMarkdown string `json:"contentMarkdown,omitempty"`
	Extractor       string `json:"extractor"`
}

// ProgressEvent is a point-in-time view of a running crawl.
type ProgressEvent struct {
	CurrentURL string `json:"currentUrl"`
	InFlight   int    `json:"inFlight"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
}

// PageFailure records a page that produced no record.
type PageFailure struct {
	URL        string `json:"url"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Attempts   int    `json:"attempts"`
}

// CrawlStats summarizes a finished crawl.
type CrawlStats struct {
	Seeds     int           `json:"seeds"`
	Requests  int           `json:"requests"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Retries   int           `json:"retries"`
	Enqueued  int           `json:"enqueued"`
	Dropped   int           `json:"dropped"`
	Duration  time.Duration `json:"duration"`
}

// Result is returned by Run. It belongs to the caller.
type Result struct {
	RunID      string        `json:"runId"`
	StartURL   string        `json:"startUrl"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Pages      []CrawlPage   `json:"pages"`
	Failures   []PageFailure `json:"failures,omitempty"`
	Stats      CrawlStats    `json:"stats"`
}
