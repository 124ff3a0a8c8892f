package crawler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/PentesterFlow/SiteCrawler/internal/metadata"
)

// Progress messages of the understand workflow.
const (
	StatusDiscovering = "Discovering pages"
	StatusIndexing    = "Indexing pages"
	StatusDone        = "Done"
)

// Indexer receives the pages of a finished crawl.
type Indexer interface {
	Index(ctx context.Context, runID string, pages []CrawlPage) error
}

// UnderstandOptions binds an understand run to its progress sink and
// hand-off target. Reporter and Indexer may be nil.
type UnderstandOptions struct {
	RunID    string
	Reporter *metadata.Reporter
	Indexer  Indexer
}

// Understand crawls a site while publishing progress, then hands the pages
// to the indexer. On failure the last progress value is kept and the status
// message starts with "Failed: ".
func (c *Crawler) Understand(ctx context.Context, req CrawlRequest, opts UnderstandOptions) (*Result, error) {
	runID := opts.RunID
	if runID == "" {
		if opts.Reporter != nil {
			runID = opts.Reporter.RunID()
		} else {
			runID = uuid.NewString()
		}
	}

	rep := opts.Reporter
	var lastPercent float64
	setProgress := func(percent float64, status string) {
		lastPercent = percent
		if rep != nil {
			// a cancelled run still records its final status
			rep.SetProgress(context.WithoutCancel(ctx), percent, status)
		}
	}
	failed := func(err error) {
		setProgress(lastPercent, "Failed: "+err.Error())
	}

	setProgress(0, StatusDiscovering)

	budget := req.MaxRequestsPerCrawl
	userProgress := req.OnProgress
	req.OnProgress = func(ev ProgressEvent) {
		percent := metadata.UnderstandProgress(ev.Succeeded, ev.Failed, ev.InFlight, budget)
		setProgress(percent, fmt.Sprintf("Crawled %d pages (%d failed)", ev.Succeeded, ev.Failed))
		if userProgress != nil {
			userProgress(ev)
		}
	}

	result, err := c.RunWithID(ctx, runID, req)
	if err != nil {
		failed(err)
		return result, err
	}

	if opts.Indexer != nil {
		setProgress(lastPercent, StatusIndexing)
		if err := opts.Indexer.Index(ctx, runID, result.Pages); err != nil {
			err = fmt.Errorf("index pages: %w", err)
			failed(err)
			return result, err
		}
	}

	setProgress(100, StatusDone)
	return result, nil
}

// Understand runs the understand workflow with a crawler built from opts and
// closes it afterwards.
func Understand(ctx context.Context, req CrawlRequest, uopts UnderstandOptions, opts ...Option) (*Result, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Understand(ctx, req, uopts)
}
