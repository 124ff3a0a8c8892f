// Package dataset accumulates crawl records in an append-only, concurrency
// safe collection, optionally mirrored to BoltDB.
package dataset

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Dataset is an append-only list of records.
type Dataset[T any] struct {
	mu    sync.RWMutex
	items []T
	store *BoltStore
	runID string
}

// New creates an in-memory dataset.
func New[T any]() *Dataset[T] {
	return &Dataset[T]{}
}

// NewPersistent creates a dataset whose records are also written to store
// under runID. Records already stored for runID are loaded first.
func NewPersistent[T any](store *BoltStore, runID string) (*Dataset[T], error) {
	existing, err := Load[T](store, runID)
	if err != nil {
		return nil, err
	}
	return &Dataset[T]{items: existing, store: store, runID: runID}, nil
}

// Push appends item. With persistence the record is written before it
// becomes visible in Items.
func (d *Dataset[T]) Push(item T) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.store != nil {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := d.store.append(d.runID, uint64(len(d.items)), data); err != nil {
			return err
		}
	}

	d.items = append(d.items, item)
	return nil
}

// Items returns a copy of the records in insertion order.
func (d *Dataset[T]) Items() []T {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]T, len(d.items))
	copy(out, d.items)
	return out
}

// Len returns the number of records.
func (d *Dataset[T]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.items)
}
