package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.RecordRequest()
	c.RecordRequest()
	c.RecordRequest()
	c.RecordSuccess()
	c.RecordSuccess()
	c.RecordFailure("timeout")
	c.RecordSkip()
	c.RecordRetry()
	c.RecordLinkEnqueued()
	c.RecordBytes(512)

	snap := c.Snapshot()
	if snap.RequestsTotal != 3 {
		t.Errorf("RequestsTotal = %d, want 3", snap.RequestsTotal)
	}
	if snap.SucceededTotal != 2 || snap.FailedTotal != 1 {
		t.Errorf("succeeded/failed = %d/%d, want 2/1", snap.SucceededTotal, snap.FailedTotal)
	}
	if snap.SkippedTotal != 1 || snap.RetriesTotal != 1 || snap.LinksEnqueued != 1 {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if snap.BytesTotal != 512 {
		t.Errorf("BytesTotal = %d, want 512", snap.BytesTotal)
	}
}

func TestCollector_RecordFailure(t *testing.T) {
	c := New()

	c.RecordFailure("network")
	c.RecordFailure("network")
	c.RecordFailure("timeout")

	snap := c.Snapshot()
	if snap.FailedTotal != 3 {
		t.Errorf("FailedTotal = %d, want 3", snap.FailedTotal)
	}
	if snap.ErrorCounts["network"] != 2 {
		t.Errorf("ErrorCounts[network] = %d, want 2", snap.ErrorCounts["network"])
	}
	if snap.ErrorCounts["timeout"] != 1 {
		t.Errorf("ErrorCounts[timeout] = %d, want 1", snap.ErrorCounts["timeout"])
	}
}

func TestCollector_RecordResponseTime(t *testing.T) {
	c := New()

	c.RecordResponseTime(100 * time.Millisecond)
	c.RecordResponseTime(200 * time.Millisecond)
	c.RecordResponseTime(300 * time.Millisecond)

	snap := c.Snapshot()
	if avgMs := snap.AverageResponseTime.Milliseconds(); avgMs != 200 {
		t.Errorf("AverageResponseTime = %dms, want 200ms", avgMs)
	}
	if snap.ResponseTimeSumMs != 600 {
		t.Errorf("ResponseTimeSumMs = %d, want 600", snap.ResponseTimeSumMs)
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		ms   int64
		want int
	}{
		{0, 0},
		{9, 0},
		{10, 1},
		{99, 2},
		{100, 3},
		{9999, 8},
		{10000, 9},
		{60000, 9},
	}

	for _, tt := range tests {
		if got := bucketFor(tt.ms); got != tt.want {
			t.Errorf("bucketFor(%d) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}

func TestCollector_Gauges(t *testing.T) {
	c := New()
	c.SetQueueDepth(42)
	c.SetConcurrency(3, 5)

	snap := c.Snapshot()
	if snap.QueueDepth != 42 || snap.InFlight != 3 || snap.DesiredConcurrency != 5 {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestCollector_StatusCodes(t *testing.T) {
	c := New()
	c.RecordStatusCode(200)
	c.RecordStatusCode(200)
	c.RecordStatusCode(404)

	snap := c.Snapshot()
	if snap.StatusCodes[200] != 2 || snap.StatusCodes[404] != 1 {
		t.Errorf("StatusCodes = %v", snap.StatusCodes)
	}
}

func TestSnapshot_FailureRate(t *testing.T) {
	s := &Snapshot{}
	if s.FailureRate() != 0 {
		t.Error("empty snapshot should have zero failure rate")
	}

	s = &Snapshot{SucceededTotal: 3, FailedTotal: 1}
	if s.FailureRate() != 0.25 {
		t.Errorf("FailureRate() = %v, want 0.25", s.FailureRate())
	}
}

func TestSnapshot_Summary(t *testing.T) {
	c := New()
	c.RecordSuccess()

	summary := c.Snapshot().Summary()
	for _, key := range []string{"succeeded", "failed", "queue_depth", "failure_rate"} {
		if _, ok := summary[key]; !ok {
			t.Errorf("Summary() missing %q", key)
		}
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestExporter_Collect(t *testing.T) {
	c := New()
	c.RecordRequest()
	c.RecordRequest()
	c.RecordSuccess()
	c.RecordFailure("selector")
	c.SetQueueDepth(7)

	exporter := NewExporter(c)

	expected := `
# HELP sitecrawler_requests_total Page visit attempts, including retries.
# TYPE sitecrawler_requests_total counter
sitecrawler_requests_total 2
# HELP sitecrawler_queue_depth URLs waiting in the crawl queue.
# TYPE sitecrawler_queue_depth gauge
sitecrawler_queue_depth 7
# HELP sitecrawler_errors_total Failed pages by error type.
# TYPE sitecrawler_errors_total counter
sitecrawler_errors_total{type="selector"} 1
`
	err := testutil.CollectAndCompare(exporter, strings.NewReader(expected),
		"sitecrawler_requests_total", "sitecrawler_queue_depth", "sitecrawler_errors_total")
	if err != nil {
		t.Errorf("CollectAndCompare() error = %v", err)
	}
}

func TestExporter_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := New()
	c.RecordResponseTime(20 * time.Millisecond)
	c.RecordStatusCode(200)

	if err := reg.Register(NewExporter(c)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "sitecrawler_response_time_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 1 {
				t.Errorf("SampleCount = %d, want 1", h.GetSampleCount())
			}
		}
	}
	if !found {
		t.Error("response time histogram not gathered")
	}
}
