// Package index hands the pages of a finished crawl to downstream storage.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/PentesterFlow/SiteCrawler/pkg/crawler"
)

// Document is the indexed form of a page.
type Document struct {
	RunID     string    `json:"runId"`
	IndexedAt time.Time `json:"indexedAt"`
	crawler.CrawlPage
}

// DocumentID returns the stable ID of a page: the hex sha256 of its URL.
func DocumentID(pageURL string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return hex.EncodeToString(sum[:])
}

// NopIndexer discards pages.
type NopIndexer struct{}

// Index does nothing.
func (NopIndexer) Index(ctx context.Context, runID string, pages []crawler.CrawlPage) error {
	return nil
}

// JSONLIndexer writes one JSON document per line.
type JSONLIndexer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewJSONLIndexer creates an indexer writing to w.
func NewJSONLIndexer(w io.Writer) *JSONLIndexer {
	return &JSONLIndexer{w: w, now: time.Now}
}

// Index writes pages in order.
func (j *JSONLIndexer) Index(ctx context.Context, runID string, pages []crawler.CrawlPage) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	enc := json.NewEncoder(j.w)
	indexedAt := j.now().UTC()
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(Document{RunID: runID, IndexedAt: indexedAt, CrawlPage: p}); err != nil {
			return fmt.Errorf("write document %s: %w", p.URL, err)
		}
	}
	return nil
}

var (
	_ crawler.Indexer = NopIndexer{}
	_ crawler.Indexer = (*JSONLIndexer)(nil)
	_ crawler.Indexer = (*ElasticsearchIndexer)(nil)
)
