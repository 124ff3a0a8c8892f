package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/PentesterFlow/SiteCrawler/internal/dataset"
	"github.com/PentesterFlow/SiteCrawler/internal/index"
	"github.com/PentesterFlow/SiteCrawler/internal/logger"
	"github.com/PentesterFlow/SiteCrawler/internal/metadata"
	"github.com/PentesterFlow/SiteCrawler/pkg/crawler"
)

// backends bundles the run metadata backend with the dataset store that
// shares its bbolt file, when there is one.
type backends struct {
	metadata metadata.Backend
	datasets *dataset.BoltStore
}

// openBackends opens the configured metadata backend. A read-only bbolt
// file can be shared with a running writer only through redis; bbolt holds
// an exclusive lock while written.
func openBackends(ctx context.Context, config *crawler.Config, readOnly bool) (*backends, error) {
	switch config.Metadata.Backend {
	case "memory":
		return &backends{metadata: metadata.NewMemoryBackend()}, nil

	case "redis":
		rb, err := metadata.NewRedisBackend(ctx, config.Metadata.Redis)
		if err != nil {
			return nil, err
		}
		return &backends{metadata: rb}, nil

	case "bolt", "":
		bb, err := metadata.OpenBolt(config.Metadata.Path, readOnly)
		if err != nil {
			return nil, fmt.Errorf("failed to open metadata store %s: %w", config.Metadata.Path, err)
		}
		b := &backends{metadata: bb}
		if !readOnly {
			if b.datasets, err = dataset.NewBoltStore(bb.DB()); err != nil {
				bb.Close()
				return nil, err
			}
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown metadata backend %q (want bolt, redis or memory)", config.Metadata.Backend)
	}
}

// Close closes the dataset store before the database it shares.
func (b *backends) Close() error {
	if b.datasets != nil {
		b.datasets.Close()
	}
	return b.metadata.Close()
}

// newIndexer builds the configured page hand-off target. The returned func
// releases whatever the indexer writes to.
func newIndexer(config *crawler.Config, log *logger.Logger) (crawler.Indexer, func() error, error) {
	noop := func() error { return nil }

	switch config.Index.Type {
	case "none", "":
		return index.NopIndexer{}, noop, nil

	case "jsonl":
		var w io.Writer = os.Stdout
		closeFn := noop
		if config.Index.Path != "" && config.Index.Path != "-" {
			f, err := os.Create(config.Index.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create index file: %w", err)
			}
			w, closeFn = f, f.Close
		}
		return index.NewJSONLIndexer(w), closeFn, nil

	case "elasticsearch":
		es, err := index.NewElasticsearchIndexer(index.ElasticsearchConfig{
			Addresses: config.Index.Addresses,
			Index:     config.Index.Name,
			Username:  config.Index.Username,
			Password:  config.Index.Password,
			APIKey:    config.Index.APIKey,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return es, noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown index type %q (want none, jsonl or elasticsearch)", config.Index.Type)
	}
}
