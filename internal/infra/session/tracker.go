package session

import (
	"sort"
	"sync"
	"time"
)

const DefaultTTL = 30 * time.Minute

// Tracker remembers when each user last made a request. A user counts as
// active until ttl has passed since that request.
type Tracker struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	lastSeen map[int64]time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(ttl time.Duration, opts ...Option) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &Tracker{
		ttl:      ttl,
		now:      time.Now,
		lastSeen: make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Touch(userID int64) {
	t.mu.Lock()
	t.lastSeen[userID] = t.now()
	t.mu.Unlock()
}

// AnyActive also drops expired entries.
func (t *Tracker) AnyActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()
	return len(t.lastSeen) > 0
}

func (t *Tracker) ActiveUsers() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()
	ids := make([]int64, 0, len(t.lastSeen))
	for id := range t.lastSeen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) pruneLocked() {
	cutoff := t.now().Add(-t.ttl)
	for id, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			delete(t.lastSeen, id)
		}
	}
}
