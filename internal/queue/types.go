package queue

import "time"

// QueueItem represents a page waiting to be visited.
type QueueItem struct {
	URL       string // as discovered
	UniqueKey string // normalized URL used for deduplication
	ParentURL string
	Seed      bool // came from discovery rather than a page link
	Timestamp time.Time
}
