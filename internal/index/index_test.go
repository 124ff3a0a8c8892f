package index

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PentesterFlow/SiteCrawler/pkg/crawler"
)

var testPages = []crawler.CrawlPage{
	{Title: "Home", URL: "https://example.com/", Text: "Welcome", Extractor: "document"},
	{Title: "Docs", URL: "https://example.com/docs", Text: "Read me", Extractor: "selector"},
	{Title: "Blog", URL: "https://example.com/blog", Text: "News", Extractor: "document"},
}

// =============================================================================
// Document Tests
// =============================================================================

func TestDocumentID(t *testing.T) {
	id := DocumentID("https://example.com/")
	assert.Len(t, id, 64)
	assert.Equal(t, id, DocumentID("https://example.com/"))
	assert.NotEqual(t, id, DocumentID("https://example.com/docs"))
}

func TestNopIndexer(t *testing.T) {
	assert.NoError(t, NopIndexer{}.Index(context.Background(), "run", testPages))
}

func TestJSONLIndexer(t *testing.T) {
	var buf bytes.Buffer
	idx := NewJSONLIndexer(&buf)
	idx.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, idx.Index(context.Background(), "run-1", testPages))

	scanner := bufio.NewScanner(&buf)
	var docs []map[string]interface{}
	for scanner.Scan() {
		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &doc))
		docs = append(docs, doc)
	}

	require.Len(t, docs, 3)
	assert.Equal(t, "run-1", docs[0]["runId"])
	assert.Equal(t, "Home", docs[0]["title"])
	assert.Equal(t, "https://example.com/docs", docs[1]["url"])
	assert.Equal(t, "2026-01-02T03:04:05Z", docs[2]["indexedAt"])
}

func TestJSONLIndexer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := NewJSONLIndexer(&buf).Index(ctx, "run", testPages)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

// =============================================================================
// Elasticsearch Tests
// =============================================================================

type mockTransport struct {
	mu          sync.Mutex
	requests    []string
	RoundTripFn func(req *http.Request, body string) (*http.Response, error)
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	t.mu.Lock()
	t.requests = append(t.requests, req.Method+" "+req.URL.Path)
	t.mu.Unlock()
	return t.RoundTripFn(req, body)
}

func esResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header: http.Header{
			"X-Elastic-Product": []string{"Elasticsearch"},
			"Content-Type":      []string{"application/json"},
		},
	}
}

func TestElasticsearchIndexer_RequiresIndex(t *testing.T) {
	_, err := NewElasticsearchIndexer(ElasticsearchConfig{}, nil)
	assert.Error(t, err)
}

func TestElasticsearchIndexer_BulkIndexes(t *testing.T) {
	var bodies []string
	transport := &mockTransport{
		RoundTripFn: func(req *http.Request, body string) (*http.Response, error) {
			bodies = append(bodies, body)
			return esResponse(http.StatusOK, `{"errors":false,"items":[]}`), nil
		},
	}

	idx, err := NewElasticsearchIndexer(ElasticsearchConfig{
		Addresses: []string{"http://es.local:9200"},
		Index:     "site-pages",
		BatchSize: 2,
		Transport: transport,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, idx.Index(context.Background(), "run-1", testPages))

	require.Len(t, bodies, 2, "three pages in batches of two")
	assert.Equal(t, []string{"POST /site-pages/_bulk", "POST /site-pages/_bulk"}, transport.requests)

	lines := strings.Split(strings.TrimSpace(bodies[0]), "\n")
	require.Len(t, lines, 4)

	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, DocumentID("https://example.com/"), meta["index"]["_id"])
	assert.Equal(t, "site-pages", meta["index"]["_index"])

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "Home", doc["title"])
	assert.Equal(t, "run-1", doc["runId"])
}

func TestElasticsearchIndexer_ItemErrors(t *testing.T) {
	transport := &mockTransport{
		RoundTripFn: func(req *http.Request, body string) (*http.Response, error) {
			return esResponse(http.StatusOK, `{"errors":true,"items":[
				{"index":{"_id":"a","status":201}},
				{"index":{"_id":"b","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}
			]}`), nil
		},
	}

	idx, err := NewElasticsearchIndexer(ElasticsearchConfig{Index: "site-pages", Transport: transport}, nil)
	require.NoError(t, err)

	err = idx.Index(context.Background(), "run-1", testPages[:2])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents failed")
	assert.Contains(t, err.Error(), "mapper_parsing_exception: bad field")
}

func TestElasticsearchIndexer_HTTPError(t *testing.T) {
	transport := &mockTransport{
		RoundTripFn: func(req *http.Request, body string) (*http.Response, error) {
			return esResponse(http.StatusUnauthorized, `{"error":{"type":"security_exception"}}`), nil
		},
	}

	idx, err := NewElasticsearchIndexer(ElasticsearchConfig{Index: "site-pages", Transport: transport}, nil)
	require.NoError(t, err)

	err = idx.Index(context.Background(), "run-1", testPages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk indexing error")
}

func TestElasticsearchIndexer_NoPages(t *testing.T) {
	transport := &mockTransport{
		RoundTripFn: func(req *http.Request, body string) (*http.Response, error) {
			t.Fatal("no request expected")
			return nil, nil
		},
	}

	idx, err := NewElasticsearchIndexer(ElasticsearchConfig{Index: "site-pages", Transport: transport}, nil)
	require.NoError(t, err)
	assert.NoError(t, idx.Index(context.Background(), "run-1", nil))
}
