package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitecrawler"

// Exporter exposes a Collector as a prometheus.Collector. Values are read
// from the collector on every scrape.
type Exporter struct {
	source *Collector

	requests      *prometheus.Desc
	succeeded     *prometheus.Desc
	failed        *prometheus.Desc
	skipped       *prometheus.Desc
	retries       *prometheus.Desc
	linksEnqueued *prometheus.Desc
	bytes         *prometheus.Desc
	queueDepth    *prometheus.Desc
	inFlight      *prometheus.Desc
	desired       *prometheus.Desc
	statusCodes   *prometheus.Desc
	errors        *prometheus.Desc
	responseTime  *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter wraps c for registration with a Prometheus registry.
func NewExporter(c *Collector) *Exporter {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Exporter{
		source:        c,
		requests:      desc("requests_total", "Page visit attempts, including retries."),
		succeeded:     desc("pages_succeeded_total", "Pages that produced a record."),
		failed:        desc("pages_failed_total", "Pages that failed after all attempts."),
		skipped:       desc("pages_skipped_total", "URLs routed to a skip handler."),
		retries:       desc("retries_total", "Retry attempts."),
		linksEnqueued: desc("links_enqueued_total", "Links accepted into the crawl queue."),
		bytes:         desc("document_bytes_total", "Bytes of downloaded documents."),
		queueDepth:    desc("queue_depth", "URLs waiting in the crawl queue."),
		inFlight:      desc("in_flight", "Page visits currently running."),
		desired:       desc("desired_concurrency", "Concurrency the autoscaler is aiming for."),
		statusCodes:   desc("responses_total", "Document responses by status code.", "code"),
		errors:        desc("errors_total", "Failed pages by error type.", "type"),
		responseTime:  desc("response_time_seconds", "Page load time."),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		e.requests, e.succeeded, e.failed, e.skipped, e.retries, e.linksEnqueued,
		e.bytes, e.queueDepth, e.inFlight, e.desired, e.statusCodes, e.errors, e.responseTime,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.source.Snapshot()

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}

	counter(e.requests, s.RequestsTotal)
	counter(e.succeeded, s.SucceededTotal)
	counter(e.failed, s.FailedTotal)
	counter(e.skipped, s.SkippedTotal)
	counter(e.retries, s.RetriesTotal)
	counter(e.linksEnqueued, s.LinksEnqueued)
	counter(e.bytes, s.BytesTotal)
	gauge(e.queueDepth, s.QueueDepth)
	gauge(e.inFlight, s.InFlight)
	gauge(e.desired, s.DesiredConcurrency)

	for code, n := range s.StatusCodes {
		counter(e.statusCodes, n, strconv.Itoa(code))
	}
	for errType, n := range s.ErrorCounts {
		counter(e.errors, n, errType)
	}

	// const histograms take cumulative counts keyed by upper bound
	buckets := make(map[float64]uint64, len(responseTimeBounds))
	var cumulative uint64
	for i, bound := range responseTimeBounds {
		cumulative += uint64(s.ResponseTimeHist[i])
		buckets[float64(bound)/1000] = cumulative
	}
	count := cumulative + uint64(s.ResponseTimeHist[numBuckets-1])
	ch <- prometheus.MustNewConstHistogram(e.responseTime, count, float64(s.ResponseTimeSumMs)/1000, buckets)
}
