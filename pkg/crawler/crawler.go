package crawler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/PentesterFlow/SiteCrawler/internal/autoscale"
	"github.com/PentesterFlow/SiteCrawler/internal/browser"
	"github.com/PentesterFlow/SiteCrawler/internal/dataset"
	"github.com/PentesterFlow/SiteCrawler/internal/discovery"
	"github.com/PentesterFlow/SiteCrawler/internal/errors"
	"github.com/PentesterFlow/SiteCrawler/internal/fetch"
	crawlhttp "github.com/PentesterFlow/SiteCrawler/internal/http"
	"github.com/PentesterFlow/SiteCrawler/internal/logger"
	"github.com/PentesterFlow/SiteCrawler/internal/metrics"
	"github.com/PentesterFlow/SiteCrawler/internal/ratelimit"
	"github.com/PentesterFlow/SiteCrawler/internal/router"
	"github.com/PentesterFlow/SiteCrawler/internal/scope"
)

// gaugeInterval is how often queue depth and concurrency gauges are sampled.
const gaugeInterval = time.Second

// Crawler runs crawls. One Crawler runs one crawl at a time; the fetcher and
// metrics are shared across its runs.
type Crawler struct {
	config *Config

	fetcher     fetch.Fetcher
	ownsFetcher bool

	discoverer   *discovery.Discoverer
	limiter      *ratelimit.Limiter
	datasetStore *dataset.BoltStore

	logger  *logger.Logger
	metrics *metrics.Collector

	running atomic.Bool
}

// New creates a new Crawler with the given options.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.logger == nil {
		cfg := logger.DefaultConfig()
		cfg.Component = "crawler"
		c.logger = logger.New(cfg)
		if c.config.Verbose {
			c.logger.SetLevel(logger.InfoLevel)
		}
		if c.config.Debug {
			c.logger.SetLevel(logger.DebugLevel)
		}
	}

	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	if c.discoverer == nil {
		c.discoverer = discovery.NewDiscoverer(c.config.finderConfig(), c.logger)
	}

	if c.config.RateLimit.Enabled() {
		c.limiter = ratelimit.NewLimiter(c.config.RateLimit)
	}

	if c.fetcher == nil {
		f, err := c.newFetcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create fetcher: %w", err)
		}
		c.fetcher = f
		c.ownsFetcher = true
	}

	return c, nil
}

func (c *Crawler) newFetcher() (fetch.Fetcher, error) {
	switch c.config.Fetcher {
	case FetcherHTTP:
		cfg := c.config.HTTP
		if cfg.ProxyURL == "" {
			cfg.ProxyURL = c.config.Proxy
		}
		return crawlhttp.NewClient(cfg)
	default:
		cfg := c.config.Browser
		if cfg.ProxyURL == "" {
			cfg.ProxyURL = c.config.Proxy
		}
		return browser.NewPool(cfg, browser.DefaultHooks()), nil
	}
}

// Config returns the crawler's configuration.
func (c *Crawler) Config() *Config {
	return c.config
}

// Metrics returns the crawler's metrics collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// Logger returns the crawler's logger.
func (c *Crawler) Logger() *logger.Logger {
	return c.logger
}

// Discover returns the seed list a sitemap crawl of startURL would use.
func (c *Crawler) Discover(ctx context.Context, startURL string) ([]string, error) {
	return c.discoverer.Discover(ctx, c.discoveryOptions(startURL))
}

func (c *Crawler) discoveryOptions(startURL string) discovery.Options {
	return discovery.Options{
		StartURL:          startURL,
		ProxyURL:          c.config.discoveryProxy(),
		DefaultLocale:     c.config.Discovery.DefaultLocale,
		OnlyDefaultLocale: c.config.Discovery.OnlyDefaultLocale,
		MaxURLs:           c.config.Discovery.MaxURLs,
	}
}

// Run crawls req under a fresh run ID.
func (c *Crawler) Run(ctx context.Context, req CrawlRequest) (*Result, error) {
	return c.RunWithID(ctx, uuid.NewString(), req)
}

// RunWithID crawls req. Page failures never abort the crawl; they are listed
// in the result. When ctx is cancelled no new visits start, running visits
// are waited for, and the partial result is returned with ctx.Err().
func (c *Crawler) RunWithID(ctx context.Context, runID string, req CrawlRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.clone()

	if !c.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("crawler is already running")
	}
	defer c.running.Store(false)

	log := c.logger.WithRun(runID)
	startedAt := time.Now()

	seeds, err := c.seeds(ctx, req, log)
	if err != nil {
		return nil, err
	}

	waitTimeout := req.WaitForSelectorTimeout
	if waitTimeout == 0 {
		waitTimeout = DefaultWaitForSelectorTimeout
	}
	rt, err := router.Build(req.Match, req.Exclude, c.config.Routes, router.Handler{
		Selector:    req.Selector,
		WaitTimeout: waitTimeout,
	})
	if err != nil {
		return nil, errors.NewCrawlError(errors.Validation, req.StartURL, "build_router", "invalid URL pattern", err)
	}

	checker, err := scope.NewChecker(req.StartURL)
	if err != nil {
		return nil, errors.NewCrawlError(errors.Validation, req.StartURL, "scope", "invalid start URL", err)
	}

	pages := dataset.New[CrawlPage]()
	if c.datasetStore != nil {
		if pages, err = dataset.NewPersistent[CrawlPage](c.datasetStore, runID); err != nil {
			return nil, fmt.Errorf("open dataset: %w", err)
		}
	}

	r := newRun(c, runID, req, rt, checker, pages, log)
	r.seed(seeds)

	pool, err := autoscale.New(c.config.Pool, log)
	if err != nil {
		return nil, err
	}
	pool.OnStatus(r.onStatus)

	log.Infof("Starting crawl of %s with %d seeds (budget %d)", req.StartURL, r.seeds, req.MaxRequestsPerCrawl)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return pool.Run(gctx, r)
	})
	g.Go(func() error {
		c.sampleGauges(r, pool, done)
		return nil
	})
	runErr := g.Wait()

	result := r.result(startedAt)
	stats := map[string]interface{}{
		"requests":  result.Stats.Requests,
		"succeeded": result.Stats.Succeeded,
		"failed":    result.Stats.Failed,
		"skipped":   result.Stats.Skipped,
		"dropped":   result.Stats.Dropped,
		"duration":  result.Stats.Duration.String(),
	}
	if c.limiter != nil {
		stats["throttled_hosts"] = c.limiter.Stats().DomainCount
	}
	log.StatsEvent(stats)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, runErr
}

// seeds returns the crawl's initial URLs.
func (c *Crawler) seeds(ctx context.Context, req CrawlRequest, log *logger.Logger) ([]string, error) {
	if !req.CrawlSitemap {
		return []string{req.StartURL}, nil
	}
	urls, err := c.discoverer.Discover(ctx, c.discoveryOptions(req.StartURL))
	if err != nil {
		return nil, errors.NewDiscoveryError(req.StartURL, "discover_seeds", err)
	}
	log.Debugf("Seeding from %d sitemap URLs", len(urls))
	return urls, nil
}

func (c *Crawler) sampleGauges(r *run, pool *autoscale.Pool, done <-chan struct{}) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			stats := pool.Stats()
			c.metrics.SetQueueDepth(0)
			c.metrics.SetConcurrency(0, int64(stats.Desired))
			return
		case <-ticker.C:
			stats := pool.Stats()
			c.metrics.SetQueueDepth(int64(r.queue.Len()))
			c.metrics.SetConcurrency(int64(stats.Running), int64(stats.Desired))
		}
	}
}

// Close releases the fetcher when the crawler created it.
func (c *Crawler) Close() error {
	if c.ownsFetcher && c.fetcher != nil {
		return c.fetcher.Close()
	}
	return nil
}
