package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// BoltBackend persists run metadata in a BoltDB file. Each run gets a nested
// bucket under "runs"; values are stored as JSON.
type BoltBackend struct {
	db   *bolt.DB
	path string
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string, readOnly bool) (*BoltBackend, error) {
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:  5 * time.Second,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if !readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketRuns)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &BoltBackend{db: db, path: path}, nil
}

// DB exposes the underlying database so other components can share the file.
func (b *BoltBackend) DB() *bolt.DB {
	return b.db
}

// Scope returns the store for runID.
func (b *BoltBackend) Scope(runID string) Store {
	return &boltStore{db: b.db, runID: []byte(runID)}
}

// Runs lists the run IDs present in the database.
func (b *BoltBackend) Runs(ctx context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketRuns)
		if root == nil {
			return nil
		}
		return root.ForEach(func(k, v []byte) error {
			if v == nil {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	return ids, err
}

// Close closes the database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

type boltStore struct {
	db    *bolt.DB
	runID []byte
}

func (s *boltStore) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketRuns)
		if err != nil {
			return err
		}
		run, err := root.CreateBucketIfNotExists(s.runID)
		if err != nil {
			return err
		}
		return run.Put([]byte(key), data)
	})
}

func (s *boltStore) Current(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]any)
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketRuns)
		if root == nil {
			return nil
		}
		run := root.Bucket(s.runID)
		if run == nil {
			return nil
		}
		return run.ForEach(func(k, v []byte) error {
			var value any
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", k, err)
			}
			out[string(k)] = value
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
