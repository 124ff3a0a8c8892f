// Package metrics collects crawl counters and exports them to Prometheus.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// responseTimeBounds are the upper bounds, in milliseconds, of the response
// time histogram buckets. The last bucket is unbounded.
var responseTimeBounds = [...]int64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

const numBuckets = len(responseTimeBounds) + 1

// Collector collects and aggregates crawl metrics.
type Collector struct {
	// Counters
	requestsTotal  atomic.Int64
	succeededTotal atomic.Int64
	failedTotal    atomic.Int64
	skippedTotal   atomic.Int64
	retriesTotal   atomic.Int64
	linksEnqueued  atomic.Int64
	bytesTotal     atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Gauges
	queueDepth         atomic.Int64
	inFlight           atomic.Int64
	desiredConcurrency atomic.Int64

	responseTimeBuckets [numBuckets]atomic.Int64

	// Error breakdown
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	// Status code breakdown
	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordRequest records a page visit attempt.
func (c *Collector) RecordRequest() {
	c.requestsTotal.Add(1)
}

// RecordSuccess records a page that produced a record.
func (c *Collector) RecordSuccess() {
	c.succeededTotal.Add(1)
}

// RecordFailure records a page that failed after all attempts.
func (c *Collector) RecordFailure(errorType string) {
	c.failedTotal.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// RecordSkip records a URL routed to a skip handler.
func (c *Collector) RecordSkip() {
	c.skippedTotal.Add(1)
}

// RecordRetry records a retry attempt.
func (c *Collector) RecordRetry() {
	c.retriesTotal.Add(1)
}

// RecordLinkEnqueued records a link accepted into the queue.
func (c *Collector) RecordLinkEnqueued() {
	c.linksEnqueued.Add(1)
}

// RecordBytes records downloaded document bytes.
func (c *Collector) RecordBytes(n int64) {
	c.bytesTotal.Add(n)
}

// RecordResponseTime records a page load time.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)
	c.responseTimeBuckets[bucketFor(ms)].Add(1)
}

func bucketFor(ms int64) int {
	for i, bound := range responseTimeBounds {
		if ms < bound {
			return i
		}
	}
	return numBuckets - 1
}

// RecordStatusCode records an HTTP status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.Lock()
	if c.statusCodes[code] == nil {
		c.statusCodes[code] = &atomic.Int64{}
	}
	c.statusCodes[code].Add(1)
	c.statusMu.Unlock()
}

// SetQueueDepth sets the current queue depth.
func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

// SetConcurrency sets the in-flight and desired concurrency gauges.
func (c *Collector) SetConcurrency(inFlight, desired int64) {
	c.inFlight.Store(inFlight)
	c.desiredConcurrency.Store(desired)
}

// GetAverageResponseTime returns the average response time.
func (c *Collector) GetAverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(c.startTime),
		RequestsTotal:       c.requestsTotal.Load(),
		SucceededTotal:      c.succeededTotal.Load(),
		FailedTotal:         c.failedTotal.Load(),
		SkippedTotal:        c.skippedTotal.Load(),
		RetriesTotal:        c.retriesTotal.Load(),
		LinksEnqueued:       c.linksEnqueued.Load(),
		BytesTotal:          c.bytesTotal.Load(),
		QueueDepth:          c.queueDepth.Load(),
		InFlight:            c.inFlight.Load(),
		DesiredConcurrency:  c.desiredConcurrency.Load(),
		AverageResponseTime: c.GetAverageResponseTime(),
		ResponseTimeSumMs:   c.responseTimesSum.Load(),
		ErrorCounts:         make(map[string]int64),
		StatusCodes:         make(map[int]int64),
		ResponseTimeHist:    make([]int64, numBuckets),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := range c.responseTimeBuckets {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	Uptime              time.Duration    `json:"uptime"`
	RequestsTotal       int64            `json:"requests_total"`
	SucceededTotal      int64            `json:"succeeded_total"`
	FailedTotal         int64            `json:"failed_total"`
	SkippedTotal        int64            `json:"skipped_total"`
	RetriesTotal        int64            `json:"retries_total"`
	LinksEnqueued       int64            `json:"links_enqueued"`
	BytesTotal          int64            `json:"bytes_total"`
	QueueDepth          int64            `json:"queue_depth"`
	InFlight            int64            `json:"in_flight"`
	DesiredConcurrency  int64            `json:"desired_concurrency"`
	AverageResponseTime time.Duration    `json:"average_response_time"`
	ResponseTimeSumMs   int64            `json:"response_time_sum_ms"`
	ErrorCounts         map[string]int64 `json:"error_counts"`
	StatusCodes         map[int]int64    `json:"status_codes"`
	ResponseTimeHist    []int64          `json:"response_time_histogram"`
}

// FailureRate returns failed/(succeeded+failed).
func (s *Snapshot) FailureRate() float64 {
	done := s.SucceededTotal + s.FailedTotal
	if done == 0 {
		return 0
	}
	return float64(s.FailedTotal) / float64(done)
}

// Summary returns a flat map for logging.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"requests_total":       s.RequestsTotal,
		"succeeded":            s.SucceededTotal,
		"failed":               s.FailedTotal,
		"skipped":              s.SkippedTotal,
		"retries":              s.RetriesTotal,
		"failure_rate":         s.FailureRate(),
		"queue_depth":          s.QueueDepth,
		"avg_response_time_ms": s.AverageResponseTime.Milliseconds(),
	}
}
