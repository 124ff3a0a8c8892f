package crawler

import (
	"time"

	"github.com/PentesterFlow/SiteCrawler/internal/dataset"
	"github.com/PentesterFlow/SiteCrawler/internal/discovery"
	"github.com/PentesterFlow/SiteCrawler/internal/fetch"
	"github.com/PentesterFlow/SiteCrawler/internal/logger"
	"github.com/PentesterFlow/SiteCrawler/internal/metrics"
)

// Option is a functional option for configuring the Crawler.
type Option func(*Crawler) error

// WithConfig replaces the whole configuration.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		c.config = config
		return nil
	}
}

// WithFetcher sets the page fetcher. The crawler does not close a fetcher
// it was given.
func WithFetcher(f fetch.Fetcher) Option {
	return func(c *Crawler) error {
		c.fetcher = f
		c.ownsFetcher = false
		return nil
	}
}

// WithFetcherType selects the built-in fetcher ("browser" or "http").
func WithFetcherType(name string) Option {
	return func(c *Crawler) error {
		c.config.Fetcher = name
		return nil
	}
}

// WithConcurrency sets the autoscaling bounds.
func WithConcurrency(min, max int) Option {
	return func(c *Crawler) error {
		if min < 1 {
			min = 1
		}
		if max < min {
			max = min
		}
		c.config.Pool.MinConcurrency = min
		c.config.Pool.MaxConcurrency = max
		if c.config.Pool.DesiredConcurrency != 0 &&
			(c.config.Pool.DesiredConcurrency < min || c.config.Pool.DesiredConcurrency > max) {
			c.config.Pool.DesiredConcurrency = min
		}
		return nil
	}
}

// WithStatusInterval sets how often pool status is logged and reported.
func WithStatusInterval(d time.Duration) Option {
	return func(c *Crawler) error {
		c.config.Pool.StatusInterval = d
		return nil
	}
}

// WithMaxRetries sets how often a failed page is retried.
func WithMaxRetries(n int) Option {
	return func(c *Crawler) error {
		if n < 0 {
			n = 0
		}
		c.config.Retry.MaxRetries = n
		return nil
	}
}

// WithRateLimit enables per-host rate limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Crawler) error {
		c.config.RateLimit.RequestsPerSecond = rps
		c.config.RateLimit.Burst = burst
		return nil
	}
}

// WithProxy sets the proxy URL for discovery and page fetching.
func WithProxy(proxy string) Option {
	return func(c *Crawler) error {
		c.config.Proxy = proxy
		return nil
	}
}

// WithMaxDiscoveredURLs sets the sitemap size at which discovery falls back
// to the start URL.
func WithMaxDiscoveredURLs(n int) Option {
	return func(c *Crawler) error {
		c.config.Discovery.MaxURLs = n
		return nil
	}
}

// WithLocaleFilter keeps only sitemap URLs in locale (or without one).
func WithLocaleFilter(locale string) Option {
	return func(c *Crawler) error {
		c.config.Discovery.DefaultLocale = locale
		c.config.Discovery.OnlyDefaultLocale = true
		return nil
	}
}

// WithDiscoverer replaces the sitemap discoverer.
func WithDiscoverer(d *discovery.Discoverer) Option {
	return func(c *Crawler) error {
		c.discoverer = d
		return nil
	}
}

// WithDatasetStore mirrors every crawl's records to store, keyed by run ID.
func WithDatasetStore(store *dataset.BoltStore) Option {
	return func(c *Crawler) error {
		c.datasetStore = store
		return nil
	}
}

// WithVerbose enables info logging.
func WithVerbose(verbose bool) Option {
	return func(c *Crawler) error {
		c.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) Option {
	return func(c *Crawler) error {
		c.config.Debug = debug
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}
