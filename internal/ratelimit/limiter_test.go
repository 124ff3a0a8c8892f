package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// allow takes a token from domain's bucket without waiting.
func allow(l *Limiter, domain string) bool {
	l.mu.Lock()
	bucket := l.domainLimiter(domain)
	l.mu.Unlock()
	return bucket.Allow()
}

// =============================================================================
// Limiter Tests
// =============================================================================

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 10, Burst: 5})

	if l.perDomain == nil {
		t.Error("perDomain map is nil")
	}
	if l.defaultRate != 10.0 {
		t.Errorf("defaultRate = %v, want 10.0", l.defaultRate)
	}
	if l.defaultBurst != 5 {
		t.Errorf("defaultBurst = %d, want 5", l.defaultBurst)
	}
}

func TestNewLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})

	if l.defaultRate != rate.Inf {
		t.Errorf("defaultRate = %v, want Inf", l.defaultRate)
	}
	if l.defaultBurst != 1 {
		t.Errorf("defaultBurst = %d, want 1", l.defaultBurst)
	}
	for i := 0; i < 100; i++ {
		if !allow(l, "example.com") {
			t.Fatal("unlimited limiter should always allow")
		}
	}
}

func TestConfig_Enabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("zero config should be disabled")
	}
	if !(Config{RequestsPerSecond: 1}).Enabled() {
		t.Error("rate config should be enabled")
	}
	if !(Config{DomainDelay: time.Second}).Enabled() {
		t.Error("delay config should be enabled")
	}
}

func TestLimiter_Burst(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		if !allow(l, "a.example.com") {
			t.Errorf("request %d within the burst should be allowed", i+1)
		}
	}
	if allow(l, "a.example.com") {
		t.Error("request after the burst should be limited")
	}

	// other hosts have their own bucket
	if !allow(l, "b.example.com") {
		t.Error("a different host should have its own bucket")
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1000, Burst: 10})

	if err := l.Wait(context.Background(), "https://example.com/a"); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if l.Stats().DomainCount != 1 {
		t.Errorf("DomainCount = %d, want 1", l.Stats().DomainCount)
	}
}

func TestLimiter_Wait_ContextCancelled(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 0.1, Burst: 1})
	allow(l, "example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.WaitDomain(ctx, "example.com"); err == nil {
		t.Error("WaitDomain() should return error when context is cancelled")
	}
}

func TestLimiter_WaitDomain_WithDelay(t *testing.T) {
	l := NewLimiter(Config{DomainDelay: 30 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.WaitDomain(context.Background(), "example.com"); err != nil {
			t.Fatalf("WaitDomain() error = %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("three requests took %v, want at least 60ms", elapsed)
	}
}

func TestLimiter_WaitDomain_DelayConcurrent(t *testing.T) {
	l := NewLimiter(Config{DomainDelay: 20 * time.Millisecond})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.WaitDomain(context.Background(), "example.com")
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("four concurrent requests took %v, want at least 60ms", elapsed)
	}
}

func TestLimiter_Stats(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 5, Burst: 2, DomainDelay: time.Second})
	allow(l, "a")
	allow(l, "b")

	stats := l.Stats()
	if stats.DomainCount != 2 {
		t.Errorf("DomainCount = %d, want 2", stats.DomainCount)
	}
	if stats.DefaultRate != 5 || stats.DefaultBurst != 2 || stats.DomainDelay != time.Second {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://Example.com/a", "example.com"},
		{"http://example.com:8080/", "example.com:8080"},
		{"not a url", "not a url"},
	}

	for _, tt := range tests {
		if got := Domain(tt.url); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
