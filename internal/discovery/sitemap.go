// Package discovery resolves the crawl seed set for a site from its
// robots.txt-declared sitemaps.
package discovery

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"

	crawlerrors "github.com/PentesterFlow/SiteCrawler/internal/errors"
	"github.com/PentesterFlow/SiteCrawler/internal/logger"
)

const maxSitemapBytes = 50 << 20

// FinderConfig configures robots.txt and sitemap fetching.
type FinderConfig struct {
	UserAgent string
	Timeout   time.Duration
	MaxDepth  int // sitemap index nesting limit
}

// DefaultFinderConfig returns the defaults used by Discover.
func DefaultFinderConfig() FinderConfig {
	return FinderConfig{
		UserAgent: "SiteCrawler/1.0",
		Timeout:   30 * time.Second,
		MaxDepth:  3,
	}
}

// Finder locates a site's sitemaps.
type Finder struct {
	config FinderConfig
	log    *logger.Logger
}

// NewFinder creates a Finder. log may be nil.
func NewFinder(config FinderConfig, log *logger.Logger) *Finder {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 3
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Finder{config: config, log: log.WithComponent("discovery")}
}

// Sitemap is the set of sitemap documents declared for an origin.
type Sitemap struct {
	Locations []string

	finder *Finder
	client *http.Client
}

// FindForOrigin reads <origin>/robots.txt and returns the sitemaps it
// declares. When none are declared the conventional /sitemap.xml is used.
// A robots.txt that cannot be fetched successfully declares nothing.
func (f *Finder) FindForOrigin(ctx context.Context, startURL, proxyURL string) (*Sitemap, error) {
	u, err := url.Parse(startURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, crawlerrors.NewCrawlError(crawlerrors.Validation, startURL, "parse_start_url", "invalid start URL", err)
	}
	origin := u.Scheme + "://" + u.Host

	client, err := f.httpClient(proxyURL)
	if err != nil {
		return nil, err
	}

	sm := &Sitemap{finder: f, client: client}

	robotsURL := origin + "/robots.txt"
	status, body, err := f.get(ctx, client, robotsURL)
	if err != nil {
		return nil, crawlerrors.NewDiscoveryError(robotsURL, "fetch_robots", err)
	}

	if status == http.StatusOK {
		robots, err := robotstxt.FromStatusAndBytes(status, body)
		if err != nil {
			return nil, crawlerrors.NewDiscoveryError(robotsURL, "parse_robots", err)
		}
		for _, loc := range robots.Sitemaps {
			if resolved := resolve(u, loc); resolved != "" {
				sm.Locations = append(sm.Locations, resolved)
			}
		}
	} else {
		f.log.Debugf("robots.txt returned %d, no declared sitemaps", status)
	}

	if len(sm.Locations) == 0 {
		sm.Locations = []string{origin + "/sitemap.xml"}
	}

	f.log.Infof("Found %d sitemap(s) for %s", len(sm.Locations), origin)
	return sm, nil
}

// Parse fetches every sitemap, following sitemap indexes, and returns the
// page URLs in document order without duplicates.
func (s *Sitemap) Parse(ctx context.Context) ([]string, error) {
	p := &sitemapWalk{
		sitemap:  s,
		visited:  make(map[string]bool),
		seenURLs: make(map[string]bool),
	}
	for _, loc := range s.Locations {
		if err := p.walk(ctx, loc, 0); err != nil {
			return nil, err
		}
	}
	return p.urls, nil
}

type sitemapWalk struct {
	sitemap  *Sitemap
	visited  map[string]bool
	seenURLs map[string]bool
	urls     []string
}

func (p *sitemapWalk) walk(ctx context.Context, loc string, depth int) error {
	f := p.sitemap.finder
	if depth > f.config.MaxDepth {
		f.log.Warnf("Sitemap %s exceeds nesting depth %d, skipping", loc, f.config.MaxDepth)
		return nil
	}
	if p.visited[loc] {
		return nil
	}
	p.visited[loc] = true

	status, body, err := f.get(ctx, p.sitemap.client, loc)
	if err != nil {
		return crawlerrors.NewDiscoveryError(loc, "fetch_sitemap", err)
	}
	if status < 200 || status > 299 {
		err := crawlerrors.NewDiscoveryError(loc, "fetch_sitemap", fmt.Errorf("unexpected status %d", status))
		err.StatusCode = status
		return err
	}

	children, pages, err := decodeSitemap(body)
	if err != nil {
		return crawlerrors.NewDiscoveryError(loc, "parse_sitemap", err)
	}

	for _, page := range pages {
		if !p.seenURLs[page] {
			p.seenURLs[page] = true
			p.urls = append(p.urls, page)
		}
	}
	for _, child := range children {
		if err := p.walk(ctx, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

type locEntry struct {
	Loc string `xml:"loc"`
}

// decodeSitemap splits a urlset or sitemapindex document into child sitemap
// locations and page locations.
func decodeSitemap(body []byte) (children, pages []string, err error) {
	reader, err := maybeGunzip(body)
	if err != nil {
		return nil, nil, err
	}

	decoder := xml.NewDecoder(reader)
	sawRoot := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("malformed sitemap XML: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "urlset", "sitemapindex":
			sawRoot = true
		case "sitemap", "url":
			var entry locEntry
			if err := decoder.DecodeElement(&entry, &se); err != nil {
				return nil, nil, fmt.Errorf("malformed <%s> entry: %w", se.Name.Local, err)
			}
			loc := strings.TrimSpace(entry.Loc)
			if loc == "" {
				continue
			}
			if se.Name.Local == "sitemap" {
				children = append(children, loc)
			} else {
				pages = append(pages, loc)
			}
		}
	}

	if !sawRoot {
		return nil, nil, fmt.Errorf("document is not a sitemap")
	}
	return children, pages, nil
}

func maybeGunzip(body []byte) (io.Reader, error) {
	br := bufio.NewReader(bytes.NewReader(body))
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip sitemap: %w", err)
		}
		return io.LimitReader(gz, maxSitemapBytes), nil
	}
	return br, nil
}

func (f *Finder) httpClient(proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		pu, err := url.Parse(proxyURL)
		if err != nil {
			return nil, crawlerrors.NewCrawlError(crawlerrors.Validation, proxyURL, "parse_proxy", "invalid proxy URL", err)
		}
		transport.Proxy = http.ProxyURL(pu)
	}
	return &http.Client{Timeout: f.config.Timeout, Transport: transport}, nil
}

func (f *Finder) get(ctx context.Context, client *http.Client, target string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(r).String()
}
