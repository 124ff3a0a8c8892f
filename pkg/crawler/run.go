package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/SiteCrawler/internal/autoscale"
	"github.com/PentesterFlow/SiteCrawler/internal/dataset"
	"github.com/PentesterFlow/SiteCrawler/internal/errors"
	"github.com/PentesterFlow/SiteCrawler/internal/fetch"
	"github.com/PentesterFlow/SiteCrawler/internal/logger"
	"github.com/PentesterFlow/SiteCrawler/internal/parser"
	"github.com/PentesterFlow/SiteCrawler/internal/queue"
	"github.com/PentesterFlow/SiteCrawler/internal/router"
	"github.com/PentesterFlow/SiteCrawler/internal/scope"
)

// errBudgetExhausted stops a retry loop when no budget is left for another
// attempt. The previous attempt's error is reported instead.
var errBudgetExhausted = errors.NewCrawlError(errors.Unknown, "", "retry", "request budget exhausted", nil)

// run is the state of one crawl. It is the task source of the pool.
type run struct {
	c   *Crawler
	id  string
	req CrawlRequest
	log *logger.Logger

	router  *router.Router
	scope   *scope.Checker
	retrier *errors.Retrier
	queue   *queue.MemoryQueue
	skipped *queue.Deduplicator
	pages   *dataset.Dataset[CrawlPage]

	budget int64
	issued atomic.Int64
	seeds  int

	inFlight   atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	retries    atomic.Int64
	enqueued   atomic.Int64
	dropped    atomic.Int64
	currentURL atomic.Value

	failMu   sync.Mutex
	failures []PageFailure

	progressMu sync.Mutex
}

var _ autoscale.Source = (*run)(nil)

func newRun(c *Crawler, id string, req CrawlRequest, rt *router.Router, checker *scope.Checker,
	pages *dataset.Dataset[CrawlPage], log *logger.Logger) *run {
	r := &run{
		c:       c,
		id:      id,
		req:     req,
		log:     log,
		router:  rt,
		scope:   checker,
		queue:   queue.NewMemoryQueue(req.MaxRequestsPerCrawl * 4),
		skipped: queue.NewDeduplicator(req.MaxRequestsPerCrawl),
		pages:   pages,
		budget:  int64(req.MaxRequestsPerCrawl),
	}
	r.retrier = errors.NewRetrier(c.config.retryConfig()).OnRetry(r.beforeRetry)
	r.currentURL.Store("")
	return r
}

// beforeRetry takes a unit of budget for the next attempt of a failed visit.
func (r *run) beforeRetry(attempt int, err error) error {
	if !r.acquire() {
		return errBudgetExhausted
	}
	r.retries.Add(1)
	r.c.metrics.RecordRetry()
	r.log.WithError(err).Debugf("Retrying (attempt %d)", attempt+1)
	return nil
}

// seed enqueues the initial URLs. Seeds must share the start URL's origin.
// They bypass Match but not Exclude, and are not subject to the enqueue
// ceiling; whatever the budget cannot cover is dropped at the end.
func (r *run) seed(urls []string) {
	for _, u := range urls {
		if !r.scope.IsInScope(u) {
			r.log.Debugf("Ignoring seed %s", u)
			continue
		}
		key, err := scope.NormalizeURL(u)
		if err != nil {
			continue
		}
		if r.excluded(key, u) {
			continue
		}
		added, err := r.queue.Push(&queue.QueueItem{
			URL:       u,
			UniqueKey: key,
			Seed:      true,
			Timestamp: time.Now(),
		})
		if err == nil && added {
			r.seeds++
		}
	}
}

// acquire takes one unit of budget.
func (r *run) acquire() bool {
	for {
		n := r.issued.Load()
		if n >= r.budget {
			return false
		}
		if r.issued.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Next pops queued URLs until one is routed to extraction and budget is
// available for it.
func (r *run) Next() autoscale.Task {
	for {
		if r.issued.Load() >= r.budget {
			return nil
		}

		item, err := r.queue.Pop()
		if err != nil {
			return nil
		}

		h := r.router.Route(item.URL)
		if item.Seed {
			h = r.router.RouteSeed(item.URL)
		}
		if h.Action == router.Skip {
			r.skip(item.UniqueKey, item.URL, h.Name)
			continue
		}

		if !r.acquire() {
			// a retry took the last unit
			r.dropped.Add(1)
			return nil
		}

		return func(ctx context.Context) error {
			return r.visit(ctx, item, h)
		}
	}
}

// Finished reports that no further visit can start.
func (r *run) Finished() bool {
	return r.issued.Load() >= r.budget || r.queue.IsEmpty()
}

func (r *run) skip(key, rawURL, handler string) {
	if key == "" {
		key = rawURL
	}
	if !r.skipped.Add(key) {
		return
	}
	r.c.metrics.RecordSkip()
	r.log.Debugf("Skipping %s (%s)", rawURL, handler)
}

// excluded skips URLs whose file type the request excludes. They are never
// fetched and take no budget.
func (r *run) excluded(key, rawURL string) bool {
	if !fetch.BlockedExtension(rawURL, r.req.ResourceFileTypeExclusions) {
		return false
	}
	r.skip(key, rawURL, "excluded-file-type")
	return true
}

// visit fetches, extracts and records one page.
func (r *run) visit(ctx context.Context, item *queue.QueueItem, h router.Handler) error {
	r.inFlight.Add(1)
	r.currentURL.Store(item.URL)

	err := r.process(ctx, item, h)

	r.inFlight.Add(-1)
	if ctx.Err() == nil {
		r.progress(item.URL)
	}
	return err
}

func (r *run) process(ctx context.Context, item *queue.QueueItem, h router.Handler) error {
	visit := &fetch.Visit{
		URL:               item.URL,
		Cookies:           r.req.Cookies,
		BlockedExtensions: r.req.ResourceFileTypeExclusions,
		Selector:          h.Selector,
		SelectorTimeout:   h.WaitTimeout,
	}

	var page *fetch.Page
	res := r.retrier.Do(ctx, "visit", item.URL, func(ctx context.Context, attempt int) error {
		if r.c.limiter != nil {
			if err := r.c.limiter.Wait(ctx, item.URL); err != nil {
				return errors.Categorize(err, item.URL)
			}
		}

		r.c.metrics.RecordRequest()
		p, err := r.c.fetcher.Fetch(ctx, visit)
		if p != nil && p.StatusCode > 0 {
			r.c.metrics.RecordStatusCode(p.StatusCode)
		}
		if err != nil {
			return errors.Categorize(err, item.URL)
		}
		page = p
		return nil
	})

	if !res.Success {
		return r.fail(ctx, item.URL, res.LastError, res.Attempts)
	}

	r.c.metrics.RecordResponseTime(page.Duration)
	r.c.metrics.RecordBytes(int64(len(page.HTML)))

	finalURL := page.FinalURL
	if finalURL == "" {
		finalURL = item.URL
	}
	if key, err := scope.NormalizeURL(finalURL); err == nil {
		r.queue.MarkSeen(key)
	}

	content, err := parser.Extract(page.HTML, finalURL, parser.Options{
		Selector:        h.Selector,
		IncludeHTML:     r.c.config.Content.IncludeHTML,
		IncludeMarkdown: r.c.config.Content.IncludeMarkdown,
	})
	if err != nil {
		return r.fail(ctx, item.URL, errors.NewExtractionError(item.URL, err), res.Attempts)
	}

	record := CrawlPage{
		Title:           content.Title,
		URL:             finalURL,
		Text:            content.Text,
		Description:     content.Description,
		ContentHTML:     content.HTML,
		ContentMarkdown: content.Markdown,
		Extractor:       content.Extractor,
	}
	if err := r.pages.Push(record); err != nil {
		return r.fail(ctx, item.URL, errors.NewCrawlError(errors.Unknown, item.URL, "store_page", "failed to store page", err), res.Attempts)
	}

	r.enqueueLinks(finalURL, page.Links)

	r.succeeded.Add(1)
	r.c.metrics.RecordSuccess()
	r.log.PageEvent(finalURL, page.StatusCode, page.Duration, nil)
	return nil
}

// fail records a page failure. Visits interrupted by cancellation are not
// failures of the page.
func (r *run) fail(ctx context.Context, rawURL string, err error, attempts int) error {
	if ctx.Err() != nil {
		return err
	}

	ce := errors.Categorize(err, rawURL)
	r.failed.Add(1)
	r.c.metrics.RecordFailure(ce.Type.String())
	r.log.PageEvent(rawURL, ce.StatusCode, 0, ce)

	r.failMu.Lock()
	r.failures = append(r.failures, PageFailure{
		URL:        rawURL,
		Type:       ce.Type.String(),
		Message:    ce.Error(),
		StatusCode: ce.StatusCode,
		Attempts:   attempts,
	})
	r.failMu.Unlock()

	return ce
}

// enqueueLinks queues same-origin links of a loaded page while the queue can
// still be served by the remaining budget.
func (r *run) enqueueLinks(pageURL string, links []string) {
	for _, link := range links {
		resolved, err := scope.ResolveURL(pageURL, link)
		if err != nil || !r.scope.IsInScope(resolved) {
			continue
		}
		key, err := scope.NormalizeURL(resolved)
		if err != nil || r.queue.Seen(key) {
			continue
		}

		if r.excluded(key, resolved) {
			continue
		}

		h := r.router.Route(resolved)
		if h.Action == router.Skip {
			r.skip(key, resolved, h.Name)
			continue
		}

		if r.issued.Load()+int64(r.queue.Len()) >= r.budget {
			return
		}

		added, err := r.queue.Push(&queue.QueueItem{
			URL:       resolved,
			UniqueKey: key,
			ParentURL: pageURL,
			Timestamp: time.Now(),
		})
		if err == nil && added {
			r.enqueued.Add(1)
			r.c.metrics.RecordLinkEnqueued()
		}
	}
}

// progress reports the run state. Calls are serialized.
func (r *run) progress(currentURL string) {
	if r.req.OnProgress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.req.OnProgress(r.event(currentURL))
}

func (r *run) event(currentURL string) ProgressEvent {
	return ProgressEvent{
		CurrentURL: currentURL,
		InFlight:   int(r.inFlight.Load()),
		Succeeded:  int(r.succeeded.Load()),
		Failed:     int(r.failed.Load()),
	}
}

func (r *run) onStatus(stats autoscale.Stats) {
	r.c.metrics.SetConcurrency(int64(stats.Running), int64(stats.Desired))
	r.progress(r.currentURL.Load().(string))
}

// result builds the caller-owned result. Anything still queued is dropped.
func (r *run) result(startedAt time.Time) *Result {
	dropped := int(r.dropped.Load()) + len(r.queue.Drain())
	r.queue.Close()

	r.failMu.Lock()
	failures := append([]PageFailure(nil), r.failures...)
	r.failMu.Unlock()

	finishedAt := time.Now()
	return &Result{
		RunID:      r.id,
		StartURL:   r.req.StartURL,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Pages:      r.pages.Items(),
		Failures:   failures,
		Stats: CrawlStats{
			Seeds:     r.seeds,
			Requests:  int(r.issued.Load()),
			Succeeded: int(r.succeeded.Load()),
			Failed:    int(r.failed.Load()),
			Skipped:   r.skipped.Count(),
			Retries:   int(r.retries.Load()),
			Enqueued:  int(r.enqueued.Load()),
			Dropped:   dropped,
			Duration:  finishedAt.Sub(startedAt),
		},
	}
}
