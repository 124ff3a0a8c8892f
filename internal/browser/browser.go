// Package browser fetches pages with headless Chrome via Rod.
package browser

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/PentesterFlow/SiteCrawler/internal/errors"
	"github.com/PentesterFlow/SiteCrawler/internal/fetch"
)

// DefaultSelectorTimeout applies when a visit sets a selector but no timeout.
const DefaultSelectorTimeout = time.Second

// Config defines browser configuration.
type Config struct {
	PoolSize          int               `yaml:"pool_size" json:"pool_size"`
	Headless          bool              `yaml:"headless" json:"headless"`
	Timeout           time.Duration     `yaml:"timeout" json:"timeout"`
	UserAgent         string            `yaml:"user_agent" json:"user_agent"`
	ViewportWidth     int               `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    int               `yaml:"viewport_height" json:"viewport_height"`
	RecycleAfter      int               `yaml:"recycle_after" json:"recycle_after"`
	IgnoreHTTPSErrors bool              `yaml:"ignore_https_errors" json:"ignore_https_errors"`
	ProxyURL          string            `yaml:"proxy_url" json:"proxy_url"`
	BinPath           string            `yaml:"bin_path" json:"bin_path"`
	Headers           map[string]string `yaml:"headers" json:"headers"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize:       4,
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (compatible; SiteCrawler/1.0)",
		ViewportWidth:  1366,
		ViewportHeight: 768,
		RecycleAfter:   100,
	}
}

// Browser wraps a Rod browser instance.
type Browser struct {
	browser   *rod.Browser
	config    Config
	hooks     []Hook
	mu        sync.Mutex
	pageCount int
}

// New launches a browser. Hooks run in order before every navigation.
func New(config Config, hooks []Hook) (*Browser, error) {
	l := launcher.New().Headless(config.Headless)

	if config.BinPath != "" {
		l = l.Bin(config.BinPath)
	}
	if config.ProxyURL != "" {
		l = l.Proxy(config.ProxyURL)
	}
	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Browser{
		browser: browser,
		config:  config,
		hooks:   hooks,
	}, nil
}

// Fetch opens a tab, runs the hooks, navigates to visit.URL and waits for
// the load event and, when set, the visit selector.
func (b *Browser) Fetch(ctx context.Context, visit *fetch.Visit) (*fetch.Page, error) {
	b.mu.Lock()
	b.pageCount++
	b.mu.Unlock()

	start := time.Now()

	pageCtx := ctx
	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, errors.NewNavigationError(visit.URL, fmt.Errorf("create page: %w", err))
	}
	defer page.Close()

	page = page.Context(pageCtx)

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.config.ViewportWidth,
		Height: b.config.ViewportHeight,
	})

	if b.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: b.config.UserAgent}.Call(page)
	}

	if len(b.config.Headers) > 0 {
		headers := make(proto.NetworkHeaders, len(b.config.Headers))
		for k, v := range b.config.Headers {
			headers[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: headers}.Call(page)
	}

	for _, hook := range b.hooks {
		cleanup, err := hook(pageCtx, page, visit)
		if err != nil {
			return nil, errors.NewCrawlError(errors.Navigation, visit.URL, "pre_navigation", "pre-navigation hook failed", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
	}

	status := watchDocumentStatus(pageCtx, page)

	if err := page.Navigate(visit.URL); err != nil {
		return nil, b.pageError(ctx, pageCtx, visit.URL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, b.pageError(ctx, pageCtx, visit.URL, err)
	}

	result := &fetch.Page{
		URL:        visit.URL,
		FinalURL:   visit.URL,
		StatusCode: int(status.Load()),
	}

	if httpErr := errors.CategorizeHTTPStatus(result.StatusCode, visit.URL); httpErr != nil {
		return result, httpErr
	}

	if visit.Selector != "" {
		timeout := visit.SelectorTimeout
		if timeout <= 0 {
			timeout = DefaultSelectorTimeout
		}
		waiter := page.Timeout(timeout)
		_, err := waiter.Element(visit.Selector)
		waiter.CancelTimeout()
		if err != nil {
			if ctx.Err() != nil {
				return result, errors.Categorize(ctx.Err(), visit.URL)
			}
			return result, errors.NewSelectorError(visit.URL, visit.Selector, err)
		}
	}

	if info, err := page.Info(); err == nil && info != nil && info.URL != "" {
		result.FinalURL = info.URL
	}

	html, err := page.HTML()
	if err != nil {
		return result, errors.NewExtractionError(visit.URL, fmt.Errorf("read document: %w", err))
	}
	result.HTML = html

	if base, err := url.Parse(result.FinalURL); err == nil {
		result.Links = fetch.ExtractLinks(html, base)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// pageError maps a navigation failure to a crawl error, separating caller
// cancellation from the per-page timeout.
func (b *Browser) pageError(ctx, pageCtx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return errors.Categorize(ctx.Err(), rawURL)
	}
	if pageCtx.Err() != nil || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError(rawURL, "navigate", err)
	}
	return errors.NewNavigationError(rawURL, err)
}

// watchDocumentStatus records the status of the first document response.
// The subscription ends with ctx.
func watchDocumentStatus(ctx context.Context, page *rod.Page) *atomic.Int64 {
	var status atomic.Int64
	wait := page.Context(ctx).EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			status.CompareAndSwap(0, int64(e.Response.Status))
			return true
		}
		return false
	})
	go wait()
	return &status
}

// Close closes the browser.
func (b *Browser) Close() error {
	return b.browser.Close()
}

// PageCount returns the number of pages visited.
func (b *Browser) PageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pageCount
}

// NeedsRecycle checks if the browser needs recycling.
func (b *Browser) NeedsRecycle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.RecycleAfter > 0 && b.pageCount >= b.config.RecycleAfter
}
