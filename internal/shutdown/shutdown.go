// Package shutdown cancels a running crawl on SIGINT/SIGTERM and releases
// its resources in reverse registration order.
package shutdown

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/SiteCrawler/internal/logger"
)

// Callback is a cleanup step run during shutdown.
type Callback func(ctx context.Context) error

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	Log     *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

type namedCallback struct {
	name string
	fn   Callback
}

// Handler manages graceful shutdown.
type Handler struct {
	mu        sync.Mutex
	callbacks []namedCallback

	shuttingDown atomic.Bool
	done         chan struct{}
	timeout      time.Duration
	log          *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal
	errs    []error
}

// New creates a handler. Its context derives from parent and is cancelled
// when shutdown begins.
func New(parent context.Context, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		log:     cfg.Log.WithComponent("shutdown"),
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
	}

	signal.Notify(h.sigChan, cfg.Signals...)

	return h
}

// Register registers a cleanup callback. Callbacks run last-in first-out.
func (h *Handler) Register(name string, fn Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, namedCallback{name: name, fn: fn})
}

// RegisterCloser registers c.Close as a cleanup callback.
func (h *Handler) RegisterCloser(name string, c io.Closer) {
	h.Register(name, func(context.Context) error {
		return c.Close()
	})
}

// Context returns the shutdown context.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown returns whether shutdown is in progress.
func (h *Handler) IsShuttingDown() bool {
	return h.shuttingDown.Load()
}

// Done returns a channel that is closed when shutdown completes.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Listen shuts down on the first signal. It returns immediately.
func (h *Handler) Listen() {
	go func() {
		select {
		case sig := <-h.sigChan:
			h.log.Warnf("Received %s, stopping crawl", sig)
			h.Shutdown()
		case <-h.done:
		}
	}()
}

// Shutdown cancels the context and runs the callbacks, each bounded by the
// shutdown timeout. It returns the callbacks' errors. Later calls wait for
// the first to finish and return the same errors.
func (h *Handler) Shutdown() []error {
	if !h.shuttingDown.CompareAndSwap(false, true) {
		<-h.done
		return h.errs
	}

	start := time.Now()
	h.cancel()
	signal.Stop(h.sigChan)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), h.timeout)
	defer shutdownCancel()

	h.mu.Lock()
	callbacks := append([]namedCallback(nil), h.callbacks...)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := run(shutdownCtx, callbacks[i]); err != nil {
			h.log.WithError(err).Warnf("Cleanup %s failed", callbacks[i].name)
			errs = append(errs, err)
		}
	}

	h.log.Debugf("Shutdown finished in %s", time.Since(start))
	h.errs = errs
	close(h.done)
	return errs
}

func run(ctx context.Context, cb namedCallback) error {
	done := make(chan error, 1)
	go func() {
		done <- cb.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: cb.name}
	}
}

// TimeoutError is returned when a callback times out.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
