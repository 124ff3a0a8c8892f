package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/PentesterFlow/SiteCrawler/internal/fetch"
)

// Pool lends browsers to one visit at a time. Browsers are launched lazily
// up to PoolSize and relaunched after RecycleAfter pages.
type Pool struct {
	mu       sync.Mutex
	config   Config
	hooks    []Hook
	idle     chan *Browser
	launched int
	closed   bool
	all      map[*Browser]struct{}

	launch func(Config, []Hook) (*Browser, error)
}

var _ fetch.Fetcher = (*Pool)(nil)

// NewPool creates a browser pool running hooks before every navigation.
func NewPool(config Config, hooks []Hook) *Pool {
	if config.PoolSize < 1 {
		config.PoolSize = 1
	}
	return &Pool{
		config: config,
		hooks:  hooks,
		idle:   make(chan *Browser, config.PoolSize),
		all:    make(map[*Browser]struct{}),
		launch: New,
	}
}

// Acquire returns an idle browser, launching one while under PoolSize,
// otherwise waits for a release.
func (p *Pool) Acquire(ctx context.Context) (*Browser, error) {
	select {
	case b := <-p.idle:
		return p.recycle(b)
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	if p.launched < p.config.PoolSize {
		p.launched++
		p.mu.Unlock()

		b, err := p.launch(p.config, p.hooks)
		if err != nil {
			p.mu.Lock()
			p.launched--
			p.mu.Unlock()
			return nil, err
		}
		p.track(b)
		return b, nil
	}
	p.mu.Unlock()

	select {
	case b := <-p.idle:
		return p.recycle(b)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) recycle(b *Browser) (*Browser, error) {
	if !b.NeedsRecycle() {
		return b, nil
	}

	p.untrack(b)
	b.Close()

	fresh, err := p.launch(p.config, p.hooks)
	if err != nil {
		p.mu.Lock()
		p.launched--
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to recycle browser: %w", err)
	}
	p.track(fresh)
	return fresh, nil
}

func (p *Pool) track(b *Browser) {
	p.mu.Lock()
	p.all[b] = struct{}{}
	p.mu.Unlock()
}

func (p *Pool) untrack(b *Browser) {
	p.mu.Lock()
	delete(p.all, b)
	p.mu.Unlock()
}

// Release returns a browser to the pool.
func (p *Pool) Release(b *Browser) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		b.Close()
		return
	}
	p.idle <- b
}

// Fetch acquires a browser, visits the page, and releases it.
func (p *Pool) Fetch(ctx context.Context, visit *fetch.Visit) (*fetch.Page, error) {
	b, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(b)

	return b.Fetch(ctx, visit)
}

// Close closes all browsers in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var lastErr error
	for b := range p.all {
		if err := b.Close(); err != nil {
			lastErr = err
		}
	}
	p.all = map[*Browser]struct{}{}
	return lastErr
}

// PoolStats holds pool statistics.
type PoolStats struct {
	Size       int `json:"size"`
	Launched   int `json:"launched"`
	Idle       int `json:"idle"`
	TotalPages int `json:"total_pages"`
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	totalPages := 0
	for b := range p.all {
		totalPages += b.PageCount()
	}

	return PoolStats{
		Size:       p.config.PoolSize,
		Launched:   p.launched,
		Idle:       len(p.idle),
		TotalPages: totalPages,
	}
}
