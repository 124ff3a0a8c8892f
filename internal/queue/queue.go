// Package queue provides the crawl request queue and visited-URL tracking.
package queue

// Queue defines the interface for URL queues.
type Queue interface {
	// Push adds an item unless its UniqueKey was seen before. It reports
	// whether the item was added.
	Push(item *QueueItem) (bool, error)

	// Pop removes and returns the oldest item.
	Pop() (*QueueItem, error)

	// Len returns the number of items waiting.
	Len() int

	// Seen reports whether a key was ever pushed.
	Seen(key string) bool

	// Close closes the queue and releases resources.
	Close() error
}
