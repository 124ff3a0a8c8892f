// Package ratelimit throttles page requests per host.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limit settings. A zero RequestsPerSecond disables
// limiting.
type Config struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	DomainDelay       time.Duration `yaml:"domain_delay" json:"domain_delay"`
}

// Enabled reports whether the config limits anything.
func (c Config) Enabled() bool {
	return c.RequestsPerSecond > 0 || c.DomainDelay > 0
}

// Limiter keeps one token bucket per host.
type Limiter struct {
	mu           sync.Mutex
	perDomain    map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	domainDelay  time.Duration
	lastRequest  map[string]time.Time
}

// NewLimiter creates a per-host limiter.
func NewLimiter(config Config) *Limiter {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		perDomain:    make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
		domainDelay:  config.DomainDelay,
		lastRequest:  make(map[string]time.Time),
	}
}

// Wait blocks until a request to rawURL's host is allowed or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	return l.WaitDomain(ctx, Domain(rawURL))
}

// WaitDomain blocks until a request to domain is allowed.
func (l *Limiter) WaitDomain(ctx context.Context, domain string) error {
	l.mu.Lock()
	domainLimiter := l.domainLimiter(domain)

	// reserve the next slot under the lock so concurrent callers queue up
	var delay time.Duration
	if l.domainDelay > 0 {
		now := time.Now()
		next := now
		if last, ok := l.lastRequest[domain]; ok && last.Add(l.domainDelay).After(now) {
			next = last.Add(l.domainDelay)
		}
		l.lastRequest[domain] = next
		delay = next.Sub(now)
	}
	l.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return domainLimiter.Wait(ctx)
}

func (l *Limiter) domainLimiter(domain string) *rate.Limiter {
	domainLimiter, ok := l.perDomain[domain]
	if !ok {
		domainLimiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.perDomain[domain] = domainLimiter
	}
	return domainLimiter
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		DomainCount:  len(l.perDomain),
		DefaultRate:  float64(l.defaultRate),
		DefaultBurst: l.defaultBurst,
		DomainDelay:  l.domainDelay,
	}
}

// LimiterStats contains rate limiter statistics.
type LimiterStats struct {
	DomainCount  int           `json:"domain_count"`
	DefaultRate  float64       `json:"default_rate"`
	DefaultBurst int           `json:"default_burst"`
	DomainDelay  time.Duration `json:"domain_delay"`
}

// Domain returns the lower-cased host (with port) of rawURL, or rawURL
// itself when it does not parse.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Host)
}
