// Package metadata holds per-run progress state and the backends that persist
// it. A Backend hands out Stores scoped to a single run; nothing here is
// process-global.
package metadata

import (
	"context"
	"sort"
	"sync"
)

// Keys written by the Reporter.
const (
	KeyProgress      = "progress"
	KeyStatusMessage = "statusMessage"
)

// Store is a key-value view of one run's metadata.
type Store interface {
	Set(ctx context.Context, key string, value any) error
	Current(ctx context.Context) (map[string]any, error)
}

// Backend creates run-scoped stores.
type Backend interface {
	Scope(runID string) Store
	Runs(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryBackend keeps run metadata in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	runs map[string]map[string]any
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{runs: make(map[string]map[string]any)}
}

// Scope returns the store for runID.
func (b *MemoryBackend) Scope(runID string) Store {
	return &memoryStore{backend: b, runID: runID}
}

// Runs lists run IDs with at least one key set.
func (b *MemoryBackend) Runs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.runs))
	for id := range b.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (b *MemoryBackend) Close() error { return nil }

type memoryStore struct {
	backend *MemoryBackend
	runID   string
}

func (s *memoryStore) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	run, ok := s.backend.runs[s.runID]
	if !ok {
		run = make(map[string]any)
		s.backend.runs[s.runID] = run
	}
	run[key] = value
	return nil
}

func (s *memoryStore) Current(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	out := make(map[string]any, len(s.backend.runs[s.runID]))
	for k, v := range s.backend.runs[s.runID] {
		out[k] = v
	}
	return out, nil
}
