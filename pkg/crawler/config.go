package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/SiteCrawler/internal/autoscale"
	"github.com/PentesterFlow/SiteCrawler/internal/browser"
	"github.com/PentesterFlow/SiteCrawler/internal/discovery"
	"github.com/PentesterFlow/SiteCrawler/internal/errors"
	crawlhttp "github.com/PentesterFlow/SiteCrawler/internal/http"
	"github.com/PentesterFlow/SiteCrawler/internal/metadata"
	"github.com/PentesterFlow/SiteCrawler/internal/ratelimit"
	"github.com/PentesterFlow/SiteCrawler/internal/router"
)

// Fetcher names.
const (
	FetcherBrowser = "browser"
	FetcherHTTP    = "http"
)

// DefaultWaitForSelectorTimeout applies when a request sets a selector but
// no timeout.
const DefaultWaitForSelectorTimeout = browser.DefaultSelectorTimeout

// Config holds all crawler configuration.
type Config struct {
	// Fetcher is "browser" (headless Chrome) or "http" (static HTML).
	Fetcher string `json:"fetcher" yaml:"fetcher"`

	// Proxy applies to discovery and page fetching unless they set their own.
	Proxy string `json:"proxy" yaml:"proxy"`

	Pool      autoscale.Config      `json:"pool" yaml:"pool"`
	Retry     RetryConfig           `json:"retry" yaml:"retry"`
	Browser   browser.Config        `json:"browser" yaml:"browser"`
	HTTP      crawlhttp.Config      `json:"http" yaml:"http"`
	Discovery DiscoveryConfig       `json:"discovery" yaml:"discovery"`
	RateLimit ratelimit.Config      `json:"rate_limit" yaml:"rate_limit"`
	Routes    []router.PatternRoute `json:"routes" yaml:"routes"`
	Content   ContentConfig         `json:"content" yaml:"content"`
	Output    OutputConfig          `json:"output" yaml:"output"`
	Metadata  MetadataConfig        `json:"metadata" yaml:"metadata"`
	Index     IndexConfig           `json:"index" yaml:"index"`

	Verbose bool `json:"verbose" yaml:"verbose"`
	Debug   bool `json:"debug" yaml:"debug"`
}

// RetryConfig controls page retries. Every retry consumes request budget.
type RetryConfig struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
}

// DiscoveryConfig controls sitemap seeding.
type DiscoveryConfig struct {
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	MaxDepth          int           `json:"max_depth" yaml:"max_depth"`
	MaxURLs           int           `json:"max_urls" yaml:"max_urls"`
	DefaultLocale     string        `json:"default_locale" yaml:"default_locale"`
	OnlyDefaultLocale bool          `json:"only_default_locale" yaml:"only_default_locale"`
	ProxyURL          string        `json:"proxy_url" yaml:"proxy_url"`
}

// ContentConfig selects the optional page record fields.
type ContentConfig struct {
	IncludeHTML     bool `json:"include_html" yaml:"include_html"`
	IncludeMarkdown bool `json:"include_markdown" yaml:"include_markdown"`
}

// OutputConfig controls where the CLI writes datasets.
type OutputConfig struct {
	Path   string `json:"path" yaml:"path"` // "" or "-" for stdout
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// MetadataConfig selects the run metadata backend.
type MetadataConfig struct {
	Backend string               `json:"backend" yaml:"backend"` // memory, bolt, redis
	Path    string               `json:"path" yaml:"path"`
	Redis   metadata.RedisConfig `json:"redis" yaml:"redis"`
}

// IndexConfig selects where understood pages are handed off.
type IndexConfig struct {
	Type      string   `json:"type" yaml:"type"` // none, jsonl, elasticsearch
	Path      string   `json:"path" yaml:"path"`
	Addresses []string `json:"addresses" yaml:"addresses"`
	Name      string   `json:"name" yaml:"name"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`
	APIKey    string   `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	finder := discovery.DefaultFinderConfig()
	return &Config{
		Fetcher: FetcherBrowser,
		Pool:    autoscale.DefaultConfig(),
		Retry: RetryConfig{
			MaxRetries:   0,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
		},
		Browser: browser.DefaultConfig(),
		HTTP:    crawlhttp.DefaultConfig(),
		Discovery: DiscoveryConfig{
			UserAgent:     finder.UserAgent,
			Timeout:       finder.Timeout,
			MaxDepth:      finder.MaxDepth,
			MaxURLs:       discovery.DefaultMaxURLs,
			DefaultLocale: "en",
		},
		Content: ContentConfig{
			IncludeHTML:     true,
			IncludeMarkdown: true,
		},
		Output: OutputConfig{
			Pretty: true,
		},
		Metadata: MetadataConfig{
			Backend: "bolt",
			Path:    "sitecrawler.db",
			Redis:   metadata.RedisConfig{Addr: "localhost:6379"},
		},
		Index: IndexConfig{
			Type: "none",
			Name: "site-pages",
		},
	}
}

// FastConfig returns a configuration for static sites: plain HTTP fetching
// and a wider pool.
func FastConfig() *Config {
	config := DefaultConfig()
	config.Fetcher = FetcherHTTP
	config.Pool.MaxConcurrency = 32
	config.Pool.DesiredConcurrency = 8
	config.Content.IncludeHTML = false
	return config
}

// LoadFromFile loads configuration from a file (YAML or JSON) on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Fetcher {
	case FetcherBrowser, FetcherHTTP:
	default:
		return fmt.Errorf("unknown fetcher %q (want browser or http)", c.Fetcher)
	}

	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	if c.Fetcher == FetcherBrowser && c.Browser.PoolSize < 1 {
		return fmt.Errorf("browser pool size must be at least 1")
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	if c.Discovery.MaxURLs < 0 {
		return fmt.Errorf("discovery max urls must not be negative")
	}

	switch c.Metadata.Backend {
	case "memory", "bolt", "redis":
	default:
		return fmt.Errorf("unknown metadata backend %q", c.Metadata.Backend)
	}

	switch c.Index.Type {
	case "", "none", "jsonl", "elasticsearch":
	default:
		return fmt.Errorf("unknown index type %q", c.Index.Type)
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}

func (c *Config) retryConfig() errors.RetryConfig {
	rc := errors.DefaultRetryConfig()
	rc.MaxRetries = c.Retry.MaxRetries
	if c.Retry.InitialDelay > 0 {
		rc.InitialDelay = c.Retry.InitialDelay
	}
	if c.Retry.MaxDelay > 0 {
		rc.MaxDelay = c.Retry.MaxDelay
	}
	return rc
}

func (c *Config) finderConfig() discovery.FinderConfig {
	return discovery.FinderConfig{
		UserAgent: c.Discovery.UserAgent,
		Timeout:   c.Discovery.Timeout,
		MaxDepth:  c.Discovery.MaxDepth,
	}
}

func (c *Config) discoveryProxy() string {
	if c.Discovery.ProxyURL != "" {
		return c.Discovery.ProxyURL
	}
	return c.Proxy
}
