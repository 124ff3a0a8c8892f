// Package autoscale runs tasks on a goroutine pool whose concurrency is
// adjusted between a minimum and a maximum based on the recent failure ratio.
package autoscale

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/SiteCrawler/internal/logger"
)

// Task is one unit of work. A non-nil error counts as a failure.
type Task func(ctx context.Context) error

// Source feeds tasks to the pool.
type Source interface {
	// Next returns the next ready task, or nil when none is ready right now.
	Next() Task
	// Finished reports that no more tasks will ever be produced by Next
	// unless running tasks produce new work.
	Finished() bool
}

// Config holds pool settings.
type Config struct {
	MinConcurrency        int           `yaml:"min_concurrency" json:"min_concurrency"`
	MaxConcurrency        int           `yaml:"max_concurrency" json:"max_concurrency"`
	DesiredConcurrency    int           `yaml:"desired_concurrency" json:"desired_concurrency"`
	ScaleInterval         time.Duration `yaml:"scale_interval" json:"scale_interval"`
	ScaleDownFailureRatio float64       `yaml:"scale_down_failure_ratio" json:"scale_down_failure_ratio"`
	StatusInterval        time.Duration `yaml:"status_interval" json:"status_interval"`
	PollInterval          time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// DefaultConfig returns the default pool settings.
func DefaultConfig() Config {
	return Config{
		MinConcurrency:        1,
		MaxConcurrency:        10,
		ScaleInterval:         2 * time.Second,
		ScaleDownFailureRatio: 0.3,
		StatusInterval:        5 * time.Second,
		PollInterval:          100 * time.Millisecond,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.MinConcurrency < 1 {
		return fmt.Errorf("min_concurrency must be at least 1")
	}
	if c.MaxConcurrency < c.MinConcurrency {
		return fmt.Errorf("max_concurrency (%d) must be >= min_concurrency (%d)", c.MaxConcurrency, c.MinConcurrency)
	}
	if c.DesiredConcurrency != 0 && (c.DesiredConcurrency < c.MinConcurrency || c.DesiredConcurrency > c.MaxConcurrency) {
		return fmt.Errorf("desired_concurrency must be between min and max concurrency")
	}
	if c.ScaleInterval <= 0 {
		return fmt.Errorf("scale_interval must be positive")
	}
	if c.ScaleDownFailureRatio <= 0 || c.ScaleDownFailureRatio > 1 {
		return fmt.Errorf("scale_down_failure_ratio must be in (0, 1]")
	}
	return nil
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Running   int
	Desired   int
	Succeeded int64
	Failed    int64
}

// Pool executes tasks from a Source with autoscaled concurrency.
type Pool struct {
	config   Config
	log      *logger.Logger
	onStatus func(Stats)

	running   atomic.Int64
	desired   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	// scaling window
	windowOK   atomic.Int64
	windowFail atomic.Int64

	notify chan struct{}
}

// New creates a pool. log may be nil.
func New(config Config, log *logger.Logger) (*Pool, error) {
	if config.PollInterval <= 0 {
		config.PollInterval = 100 * time.Millisecond
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	p := &Pool{
		config: config,
		log:    log.WithComponent("autoscale"),
		notify: make(chan struct{}, 1),
	}
	desired := config.DesiredConcurrency
	if desired == 0 {
		desired = config.MinConcurrency
	}
	p.desired.Store(int64(desired))
	return p, nil
}

// OnStatus registers a callback invoked every StatusInterval.
func (p *Pool) OnStatus(fn func(Stats)) *Pool {
	p.onStatus = fn
	return p
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Running:   int(p.running.Load()),
		Desired:   int(p.desired.Load()),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}

// Run pulls tasks from src until it is finished and no task is running, or
// until ctx is cancelled. Running tasks are always waited for. On
// cancellation Run returns ctx.Err().
func (p *Pool) Run(ctx context.Context, src Source) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	poll := time.NewTicker(p.config.PollInterval)
	defer poll.Stop()
	scale := time.NewTicker(p.config.ScaleInterval)
	defer scale.Stop()

	var statusC <-chan time.Time
	if p.config.StatusInterval > 0 {
		status := time.NewTicker(p.config.StatusInterval)
		defer status.Stop()
		statusC = status.C
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.fill(ctx, src, &wg)

		if p.running.Load() == 0 && src.Finished() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.notify:
		case <-poll.C:
		case <-scale.C:
			p.autoscale(src)
		case <-statusC:
			p.reportStatus()
		}
	}
}

// fill starts tasks until the running count reaches the desired concurrency
// or the source has nothing ready.
func (p *Pool) fill(ctx context.Context, src Source, wg *sync.WaitGroup) {
	for p.running.Load() < p.desired.Load() {
		task := src.Next()
		if task == nil {
			return
		}

		p.running.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := task(ctx)
			if err != nil {
				p.failed.Add(1)
				p.windowFail.Add(1)
			} else {
				p.succeeded.Add(1)
				p.windowOK.Add(1)
			}
			p.running.Add(-1)
			p.wake()
		}()
	}
}

func (p *Pool) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// autoscale moves the desired concurrency one step based on the failure
// ratio observed since the previous call.
func (p *Pool) autoscale(src Source) {
	ok := p.windowOK.Swap(0)
	fail := p.windowFail.Swap(0)

	var ratio float64
	if total := ok + fail; total > 0 {
		ratio = float64(fail) / float64(total)
	}

	desired := p.desired.Load()
	waiting := p.running.Load() >= desired && !src.Finished()

	switch {
	case ratio > p.config.ScaleDownFailureRatio && desired > int64(p.config.MinConcurrency):
		p.desired.Store(desired - 1)
		p.log.Debugf("Scaling down to %d (failure ratio %.2f)", desired-1, ratio)
	case ratio < p.config.ScaleDownFailureRatio && waiting && desired < int64(p.config.MaxConcurrency):
		p.desired.Store(desired + 1)
		p.log.Debugf("Scaling up to %d", desired+1)
	}
}

func (p *Pool) reportStatus() {
	stats := p.Stats()
	p.log.StatsEvent(map[string]interface{}{
		"succeeded":           stats.Succeeded,
		"failed":              stats.Failed,
		"current_concurrency": stats.Running,
		"desired_concurrency": stats.Desired,
	})
	if p.onStatus != nil {
		p.onStatus(stats)
	}
}
