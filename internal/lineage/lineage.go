// Package lineage maintains a bounded, TTL-pruned mapping from a child PID
// to the parent PID observed at fork time.
package lineage

import (
	"sync"
	"time"
)

// DefaultTTL and DefaultCapacity match the source daemon's defaults.
const (
	DefaultTTL      = 60 * time.Second
	DefaultCapacity = 8192
)

type entry struct {
	parent     uint32
	recordedAt time.Time
}

type orderEntry struct {
	pid        uint32
	recordedAt time.Time
}

// Cache is a bounded-capacity, TTL-pruned child-PID -> parent-PID cache. At
// most one entry exists per PID; any entry older than ttl or beyond capacity
// is evicted before any lookup returns it, and entries never resurrect after
// eviction.
type Cache struct {
	mu       sync.Mutex
	entries  map[uint32]entry
	order    []orderEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// New creates a Cache with the given TTL and capacity.
func New(ttl time.Duration, capacity int) *Cache {
	return &Cache{
		entries:  make(map[uint32]entry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// NewDefault creates a Cache using DefaultTTL and DefaultCapacity.
func NewDefault() *Cache {
	return New(DefaultTTL, DefaultCapacity)
}

// RecordFork inserts the (child, parent) pair observed at the current time.
func (c *Cache) RecordFork(child, parent uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[child] = entry{parent: parent, recordedAt: now}
	c.order = append(c.order, orderEntry{pid: child, recordedAt: now})
	c.purge(now)
}

// Lookup returns the parent PID recorded for pid, if any entry for it is
// still live.
func (c *Cache) Lookup(pid uint32) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purge(c.now())
	e, ok := c.entries[pid]
	if !ok {
		return 0, false
	}
	return e.parent, true
}

// Len reports the number of live entries. Exposed for tests and metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purge(c.now())
	return len(c.entries)
}

// purge evicts expired/over-capacity entries and drops stale queue entries
// left behind by reinsertion. Must be called with mu held.
func (c *Cache) purge(now time.Time) {
	for len(c.order) > 0 {
		head := c.order[0]
		removeQueueEntry := false

		current, ok := c.entries[head.pid]
		switch {
		case ok && current.recordedAt.Equal(head.recordedAt):
			expired := now.Sub(head.recordedAt) > c.ttl
			overCapacity := len(c.entries) > c.capacity
			if expired || overCapacity {
				delete(c.entries, head.pid)
				removeQueueEntry = true
			}
		case ok:
			// Stale queue entry for a PID reinserted with a newer
			// timestamp: drop the queue entry only, map untouched.
			removeQueueEntry = true
		default:
			removeQueueEntry = true
		}

		if !removeQueueEntry {
			break
		}
		c.order = c.order[1:]
	}

	for len(c.entries) > c.capacity && len(c.order) > 0 {
		head := c.order[0]
		current, ok := c.entries[head.pid]
		if ok && current.recordedAt.Equal(head.recordedAt) {
			delete(c.entries, head.pid)
			c.order = c.order[1:]
		} else {
			break
		}
	}
}
