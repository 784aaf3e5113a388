// Package recent maintains a bounded, time-pruned queue of recently decoded
// events for on-demand snapshots (dashboards, CLI tails, the MCP bridge).
package recent

import (
	"sync"
	"time"

	"github.com/nodewatch/linnixd/internal/wire"
)

// DefaultCapacity and DefaultMaxAge match the source daemon's defaults.
const (
	DefaultCapacity = 4096
	DefaultMaxAge   = 5 * time.Minute
)

// Entry pairs a decoded event with the time the ingest loop received it.
type Entry struct {
	Event      wire.Event
	ReceivedAt time.Time
}

// Queue is a bounded, oldest-first-pruned sequence of Entry values. Snapshot
// returns a point-in-time copy; callers never observe a torn queue.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	maxAge   time.Duration
	now      func() time.Time
}

// New creates a Queue with the given capacity and age bound.
func New(capacity int, maxAge time.Duration) *Queue {
	return &Queue{
		capacity: capacity,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// NewDefault creates a Queue using DefaultCapacity and DefaultMaxAge.
func NewDefault() *Queue {
	return New(DefaultCapacity, DefaultMaxAge)
}

// Add appends event, then prunes entries older than maxAge, then drops the
// oldest entries while the queue exceeds capacity.
func (q *Queue) Add(event wire.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.entries = append(q.entries, Entry{Event: event, ReceivedAt: now})
	q.prune(now)
}

// Snapshot returns a stable, point-in-time copy of the queue's contents,
// oldest first.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(q.now())
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len reports the current queue size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) prune(now time.Time) {
	cut := 0
	for cut < len(q.entries) && now.Sub(q.entries[cut].ReceivedAt) > q.maxAge {
		cut++
	}
	if cut > 0 {
		q.entries = q.entries[cut:]
	}
	if over := len(q.entries) - q.capacity; over > 0 {
		q.entries = q.entries[over:]
	}
}
