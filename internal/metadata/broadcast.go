package metadata

import "sync"

const subscriberBuffer = 8

// Broadcaster fans progress updates out to in-process subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan ProgressState]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan ProgressState]struct{})}
}

// Subscribe registers for runID's updates. The returned cancel func must be
// called to release the channel.
func (b *Broadcaster) Subscribe(runID string) (<-chan ProgressState, func()) {
	ch := make(chan ProgressState, subscriberBuffer)

	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[chan ProgressState]struct{})
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[runID], ch)
			if len(b.subs[runID]) == 0 {
				delete(b.subs, runID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers state to runID's subscribers. Slow subscribers miss
// updates instead of blocking the publisher.
func (b *Broadcaster) Publish(runID string, state ProgressState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[runID] {
		select {
		case ch <- state:
		default:
		}
	}
}

// Subscribers returns the number of subscribers for runID.
func (b *Broadcaster) Subscribers(runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}
