package channel

import "sync"

type lener interface {
	Len() int
}

// Tracker samples the total number of items buffered across the channels
// attached to it and remembers the peak.
type Tracker struct {
	mu   sync.Mutex
	live map[lener]struct{}
	peak int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{live: make(map[lener]struct{})}
}

func (t *Tracker) track(c lener) {
	t.mu.Lock()
	t.live[c] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracker) untrack(c lener) {
	t.mu.Lock()
	delete(t.live, c)
	t.mu.Unlock()
}

func (t *Tracker) sample() {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for c := range t.live {
		total += c.Len()
	}
	if total > t.peak {
		t.peak = total
	}
}

// Peak returns the largest total observed.
func (t *Tracker) Peak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Live returns the number of attached channels not yet drained.
func (t *Tracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}
