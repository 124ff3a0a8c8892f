// Package discovery turns a start URL into crawl seeds from robots.txt and
// sitemaps.
package discovery

import (
	"context"
	"fmt"

	"github.com/PentesterFlow/SiteCrawler/internal/logger"
)

// DefaultMaxURLs is the discovered-set size at which discovery gives up and
// returns only the start URL.
const DefaultMaxURLs = 1000

// Options controls a discovery run.
type Options struct {
	StartURL          string
	ProxyURL          string
	DefaultLocale     string
	OnlyDefaultLocale bool
	MaxURLs           int // 0 means DefaultMaxURLs
}

// Discoverer turns a start URL into a bounded seed list.
type Discoverer struct {
	finder *Finder
	log    *logger.Logger
}

// NewDiscoverer creates a Discoverer. log may be nil.
func NewDiscoverer(config FinderConfig, log *logger.Logger) *Discoverer {
	if log == nil {
		log = logger.Nop()
	}
	return &Discoverer{
		finder: NewFinder(config, log),
		log:    log.WithComponent("discovery"),
	}
}

// Discover runs discovery with default finder settings.
func Discover(ctx context.Context, opts Options) ([]string, error) {
	return NewDiscoverer(DefaultFinderConfig(), nil).Discover(ctx, opts)
}

// Discover fetches and parses the site's sitemaps and applies the locale
// filter. An empty result, or one with MaxURLs or more entries, is replaced
// by the start URL alone. Fetch and parse failures are returned unretried.
func (d *Discoverer) Discover(ctx context.Context, opts Options) ([]string, error) {
	maxURLs := opts.MaxURLs
	if maxURLs <= 0 {
		maxURLs = DefaultMaxURLs
	}

	sitemap, err := d.finder.FindForOrigin(ctx, opts.StartURL, opts.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("find sitemaps: %w", err)
	}

	urls, err := sitemap.Parse(ctx)
	if err != nil {
		return nil, fmt.Errorf("parse sitemaps: %w", err)
	}

	if opts.OnlyDefaultLocale {
		before := len(urls)
		urls = FilterDefaultLocale(urls, opts.DefaultLocale)
		d.log.Debugf("Locale filter kept %d of %d URLs", len(urls), before)
	}

	if len(urls) == 0 || len(urls) >= maxURLs {
		d.log.Infof("Sitemap yielded %d URLs, falling back to start URL", len(urls))
		return []string{opts.StartURL}, nil
	}

	d.log.Infof("Discovered %d URLs", len(urls))
	return urls, nil
}
