// Package progress renders a one-line crawl progress bar on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Display manages the progress bar of one crawl.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	target    string
	budget    int
	startTime time.Time

	succeeded int
	failed    int
	inFlight  int
	current   string

	lastLine string
}

// New creates a display writing to out, or to stderr when out is nil.
func New(out io.Writer) *Display {
	if out == nil {
		out = os.Stderr
	}
	return &Display{out: out}
}

// Start begins the display. budget is the crawl's request ceiling.
func (d *Display) Start(target string, budget int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.target = target
	d.budget = budget
}

// Update redraws the bar. It is safe to call from any goroutine.
func (d *Display) Update(currentURL string, succeeded, failed, inFlight int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.succeeded, d.failed, d.inFlight = succeeded, failed, inFlight
	if currentURL != "" {
		d.current = currentURL
	}

	if !d.started || d.stopped {
		return
	}

	percent := Percent(succeeded+failed, d.budget)
	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(succeeded+failed) / elapsed.Seconds()
	}

	filled := percent * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Pages: %d | Failed: %d | Active: %d | %.1f p/s | %s | %s",
		bar, percent, succeeded, failed, inFlight, speed, formatDuration(elapsed), truncateURL(d.current, 40))

	// Clear previous line and print new one
	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Stop ends the display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true
	fmt.Fprintln(d.out)
}

// Summary is printed after a crawl.
type Summary struct {
	Pages    int
	Failed   int
	Skipped  int
	Dropped  int
	Requests int
	Duration time.Duration
}

// PrintSummary prints a final summary after crawling.
func (d *Display) PrintSummary(s Summary) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "  Crawl complete")
	fmt.Fprintln(d.out)
	fmt.Fprintf(d.out, "  Target:     %s\n", truncateURL(d.target, 50))
	fmt.Fprintf(d.out, "  Duration:   %s\n", formatDuration(s.Duration))
	fmt.Fprintf(d.out, "  Requests:   %d of %d\n", s.Requests, d.budget)
	fmt.Fprintf(d.out, "  Pages:      %d\n", s.Pages)
	fmt.Fprintf(d.out, "  Failed:     %d\n", s.Failed)
	fmt.Fprintf(d.out, "  Skipped:    %d\n", s.Skipped)
	fmt.Fprintf(d.out, "  Dropped:    %d\n", s.Dropped)

	if s.Duration.Seconds() > 0 {
		fmt.Fprintf(d.out, "  Speed:      %.1f pages/sec\n", float64(s.Pages)/s.Duration.Seconds())
	}
	fmt.Fprintln(d.out)
}

// Percent is done/budget as a whole percentage in [0, 100].
func Percent(done, budget int) int {
	if budget <= 0 {
		return 0
	}
	p := done * 100 / budget
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

// truncateURL truncates a URL to maxLen characters.
func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
