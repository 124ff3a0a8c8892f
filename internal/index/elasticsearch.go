package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/PentesterFlow/SiteCrawler/internal/logger"
	"github.com/PentesterFlow/SiteCrawler/pkg/crawler"
)

// DefaultBatchSize is the number of documents per bulk request.
const DefaultBatchSize = 500

// ElasticsearchConfig configures the Elasticsearch indexer.
type ElasticsearchConfig struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	APIKey    string
	BatchSize int

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// ElasticsearchIndexer bulk-indexes pages, one document per page.
type ElasticsearchIndexer struct {
	client    *es.Client
	index     string
	batchSize int
	log       *logger.Logger
	now       func() time.Time
}

// NewElasticsearchIndexer creates the indexer. log may be nil.
func NewElasticsearchIndexer(cfg ElasticsearchConfig, log *logger.Logger) (*ElasticsearchIndexer, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("elasticsearch index name is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}

	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchIndexer{
		client:    client,
		index:     cfg.Index,
		batchSize: cfg.BatchSize,
		log:       log.WithComponent("index"),
		now:       time.Now,
	}, nil
}

// bulkResponse is the part of the bulk API response we inspect.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// Index sends pages in batches. Re-indexing a URL overwrites its document.
func (e *ElasticsearchIndexer) Index(ctx context.Context, runID string, pages []crawler.CrawlPage) error {
	indexedAt := e.now().UTC()
	for start := 0; start < len(pages); start += e.batchSize {
		end := start + e.batchSize
		if end > len(pages) {
			end = len(pages)
		}
		if err := e.bulk(ctx, runID, indexedAt, pages[start:end]); err != nil {
			return err
		}
		e.log.Debugf("Indexed %d/%d pages into %s", end, len(pages), e.index)
	}
	return nil
}

func (e *ElasticsearchIndexer) bulk(ctx context.Context, runID string, indexedAt time.Time, pages []crawler.CrawlPage) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range pages {
		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": e.index,
				"_id":    DocumentID(p.URL),
			},
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode meta: %w", err)
		}
		if err := enc.Encode(Document{RunID: runID, IndexedAt: indexedAt, CrawlPage: p}); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(e.index),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk indexing error: %s", res.String())
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("error decoding bulk response: %w", err)
	}
	if !br.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			failed++
			if first == "" {
				first = fmt.Sprintf("%s: %s", result.Error.Type, result.Error.Reason)
			}
		}
	}
	return fmt.Errorf("%d of %d documents failed to index (first: %s)", failed, len(pages), first)
}
