package queue

import (
	"errors"
	"sync"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is a thread-safe FIFO queue that never yields the same
// UniqueKey twice.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []*QueueItem
	head   int
	seen   *Deduplicator
	closed bool
}

// NewMemoryQueue creates a queue sized for roughly estimatedURLs keys.
func NewMemoryQueue(estimatedURLs int) *MemoryQueue {
	return &MemoryQueue{seen: NewDeduplicator(estimatedURLs)}
}

// Push appends item unless its key was pushed before.
func (mq *MemoryQueue) Push(item *QueueItem) (bool, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return false, ErrQueueClosed
	}

	key := item.UniqueKey
	if key == "" {
		key = item.URL
	}
	if !mq.seen.Add(key) {
		return false, nil
	}

	mq.items = append(mq.items, item)
	return true, nil
}

// Pop removes and returns the oldest item.
func (mq *MemoryQueue) Pop() (*QueueItem, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil, ErrQueueClosed
	}
	if mq.head >= len(mq.items) {
		return nil, ErrQueueEmpty
	}

	item := mq.items[mq.head]
	mq.items[mq.head] = nil
	mq.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if mq.head > 64 && mq.head*2 > len(mq.items) {
		mq.items = append([]*QueueItem(nil), mq.items[mq.head:]...)
		mq.head = 0
	}
	return item, nil
}

// Len returns the number of items waiting.
func (mq *MemoryQueue) Len() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return len(mq.items) - mq.head
}

// IsEmpty returns true if nothing is waiting.
func (mq *MemoryQueue) IsEmpty() bool {
	return mq.Len() == 0
}

// Seen reports whether key was ever pushed.
func (mq *MemoryQueue) Seen(key string) bool {
	return mq.seen.HasSeen(key)
}

// MarkSeen records key without enqueueing anything, so a later Push of the
// same key is ignored. It reports whether key was new.
func (mq *MemoryQueue) MarkSeen(key string) bool {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return mq.seen.Add(key)
}

// Drain removes and returns everything still waiting.
func (mq *MemoryQueue) Drain() []*QueueItem {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	rest := append([]*QueueItem(nil), mq.items[mq.head:]...)
	mq.items = nil
	mq.head = 0
	return rest
}

// Close closes the queue.
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	mq.closed = true
	return nil
}
