// Package http provides a plain HTTP page fetcher for sites that render
// without JavaScript.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/PentesterFlow/SiteCrawler/internal/errors"
	"github.com/PentesterFlow/SiteCrawler/internal/fetch"
)

const maxBodySize = 5 * 1024 * 1024

// Config holds configuration for the HTTP fetcher.
type Config struct {
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
	UserAgent           string        `yaml:"user_agent" json:"user_agent"`
	ProxyURL            string        `yaml:"proxy_url" json:"proxy_url"`
	SkipTLSVerify       bool          `yaml:"skip_tls_verify" json:"skip_tls_verify"`
}

// DefaultConfig returns defaults suited to crawling.
func DefaultConfig() Config {
	return Config{
		Timeout:             15 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		UserAgent:           "Mozilla/5.0 (compatible; SiteCrawler/1.0)",
	}
}

// Client fetches pages over net/http. It implements fetch.Fetcher.
type Client struct {
	client    *http.Client
	userAgent string
}

var _ fetch.Fetcher = (*Client)(nil)

// NewClient creates an HTTP fetcher.
func NewClient(config Config) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}
	if config.ProxyURL != "" {
		proxy, err := url.Parse(config.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: config.UserAgent,
	}, nil
}

// Fetch performs a GET for visit.URL. Visit cookies are placed in the jar
// for the request URL before the request is sent. Responses with a 4xx or
// 5xx status fail with the categorized HTTP error. URLs with an excluded
// file extension are never requested, and a redirect onto one fails the
// visit before the body is read.
func (c *Client) Fetch(ctx context.Context, visit *fetch.Visit) (*fetch.Page, error) {
	start := time.Now()

	reqURL, err := url.Parse(visit.URL)
	if err != nil {
		return nil, errors.NewCrawlError(errors.Validation, visit.URL, "parse_url", "invalid URL", err)
	}
	if fetch.BlockedExtension(visit.URL, visit.BlockedExtensions) {
		return nil, errBlocked(visit.URL)
	}

	if len(visit.Cookies) > 0 {
		c.client.Jar.SetCookies(reqURL, jarCookies(visit.Cookies))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, visit.URL, nil)
	if err != nil {
		return nil, errors.NewCrawlError(errors.Validation, visit.URL, "request_creation", "failed to create request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Categorize(err, visit.URL)
	}
	defer resp.Body.Close()

	page := &fetch.Page{
		URL:        visit.URL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}

	if fetch.BlockedExtension(page.FinalURL, visit.BlockedExtensions) {
		return page, errBlocked(page.FinalURL)
	}

	if httpErr := errors.CategorizeHTTPStatus(resp.StatusCode, visit.URL); httpErr != nil {
		return page, httpErr
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return page, errors.NewExtractionError(visit.URL, fmt.Errorf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return page, errors.NewNetworkError(visit.URL, "body_read", err)
	}
	page.HTML = string(body)

	if visit.Selector != "" {
		if err := checkSelector(page.HTML, visit.Selector); err != nil {
			return page, errors.NewSelectorError(visit.URL, visit.Selector, err)
		}
	}

	page.Links = fetch.ExtractLinks(page.HTML, resp.Request.URL)
	page.Duration = time.Since(start)
	return page, nil
}

func errBlocked(rawURL string) error {
	return errors.NewCrawlError(errors.Validation, rawURL, "blocked_resource", "file type excluded", nil)
}

// checkSelector verifies the selector matches in a static document. There
// is nothing to wait for without a script engine.
func checkSelector(htmlContent, selector string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("selector %q not found", selector)
	}
	return nil
}

func jarCookies(cookies []fetch.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	return out
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
