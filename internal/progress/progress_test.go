package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		done, budget, want int
	}{
		{0, 10, 0},
		{5, 10, 50},
		{10, 10, 100},
		{12, 10, 100},
		{3, 0, 0},
		{1, 3, 33},
	}

	for _, tt := range tests {
		if got := Percent(tt.done, tt.budget); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.done, tt.budget, got, tt.want)
		}
	}
}

func TestDisplay_UpdateBeforeStartIsSilent(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.Update("https://example.com/", 1, 0, 1)
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestDisplay_Update(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.Start("https://example.com", 10)
	d.Update("https://example.com/docs", 4, 1, 2)

	out := buf.String()
	for _, want := range []string{" 50%", "Pages: 4", "Failed: 1", "Active: 2", "https://example.com/docs"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestDisplay_StopOnce(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.Start("https://example.com", 10)
	d.Stop()
	d.Stop()
	d.Update("https://example.com/late", 9, 0, 0)

	if got := buf.String(); got != "\n" {
		t.Errorf("output = %q, want a single newline", got)
	}
}

func TestDisplay_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.Start("https://example.com", 20)
	d.PrintSummary(Summary{Pages: 10, Failed: 2, Skipped: 3, Requests: 12, Duration: 5 * time.Second})

	out := buf.String()
	for _, want := range []string{"Requests:   12 of 20", "Pages:      10", "Skipped:    3", "2.0 pages/sec"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{4 * time.Second, "4s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateURL(t *testing.T) {
	if got := truncateURL("https://example.com/a/very/long/path", 20); got != "https://example.c..." {
		t.Errorf("truncateURL() = %q", got)
	}
	if got := truncateURL("short", 20); got != "short" {
		t.Errorf("truncateURL() = %q", got)
	}
}
