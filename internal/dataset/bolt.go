package dataset

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketDatasets = []byte("datasets")

// BoltStore keeps one nested bucket per run under "datasets". Keys are
// big-endian sequence numbers so a cursor walks records in insertion order.
type BoltStore struct {
	db   *bolt.DB
	owns bool
}

// NewBoltStore uses an already open database, typically shared with the
// metadata backend. Close does not close db.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	if !db.IsReadOnly() {
		err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketDatasets)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &BoltStore{db: db}, nil
}

// OpenBoltStore opens (or creates) a database file of its own.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.owns = true
	return store, nil
}

func (s *BoltStore) append(runID string, seq uint64, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketDatasets)
		if err != nil {
			return err
		}
		run, err := root.CreateBucketIfNotExists([]byte(runID))
		if err != nil {
			return err
		}
		return run.Put(seqKey(seq), data)
	})
}

// Load reads the records stored for runID in insertion order. An unknown
// run yields an empty slice.
func Load[T any](s *BoltStore, runID string) ([]T, error) {
	items := make([]T, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketDatasets)
		if root == nil {
			return nil
		}
		run := root.Bucket([]byte(runID))
		if run == nil {
			return nil
		}
		return run.ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", runID, err)
	}
	return items, nil
}

// Runs lists run IDs with stored records.
func (s *BoltStore) Runs() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketDatasets)
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

// Close closes the database if the store opened it.
func (s *BoltStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
