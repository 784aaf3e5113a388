package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MinBroadcastCapacity is the minimum ring capacity spec.md §4.7 requires.
const MinBroadcastCapacity = 128

// ErrClosed is returned by Subscription.Recv once the broadcast has been
// closed and no further alerts remain buffered for that subscriber.
var ErrClosed = errors.New("alerts: broadcast closed")

// ErrLagged is returned by Subscription.Recv when the subscriber fell more
// than the ring's capacity behind; Missed is a lower bound on the number of
// alerts it never saw. The subscriber's cursor is advanced to the oldest
// alert still buffered so it can keep consuming.
type ErrLagged struct {
	Missed uint64
}

func (e *ErrLagged) Error() string {
	return fmt.Sprintf("alerts: subscriber lagged by %d", e.Missed)
}

// Broadcast is a bounded multi-subscriber channel: each subscriber has an
// independent cursor, and a slow subscriber observes ErrLagged rather than
// blocking the producer (spec.md §4.7/§9). wake is closed and replaced on
// every state change so blocked subscribers wake without a dedicated
// goroutine per waiter.
type Broadcast struct {
	mu       sync.Mutex
	buf      []Alert
	capacity int
	nextSeq  uint64
	closed   bool
	wake     chan struct{}
}

// NewBroadcast creates a Broadcast with the given ring capacity, raised to
// MinBroadcastCapacity if smaller.
func NewBroadcast(capacity int) *Broadcast {
	if capacity < MinBroadcastCapacity {
		capacity = MinBroadcastCapacity
	}
	return &Broadcast{
		buf:      make([]Alert, capacity),
		capacity: capacity,
		wake:     make(chan struct{}),
	}
}

// Send publishes an alert to every subscriber. A send with no subscribers
// connected is not an error (spec.md §4.6 failure semantics); it simply
// advances the ring.
func (b *Broadcast) Send(a Alert) {
	b.mu.Lock()
	b.buf[b.nextSeq%uint64(b.capacity)] = a
	b.nextSeq++
	old := b.wake
	b.wake = make(chan struct{})
	b.mu.Unlock()
	close(old)
}

// Close marks the broadcast closed; subscribers drain any buffered alerts
// and then observe ErrClosed. Safe to call more than once.
func (b *Broadcast) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	old := b.wake
	b.wake = make(chan struct{})
	b.mu.Unlock()
	close(old)
}

// Subscribe returns a new Subscription positioned at "now" (it sees only
// alerts sent after this call).
func (b *Broadcast) Subscribe() *Subscription {
	b.mu.Lock()
	cursor := b.nextSeq
	b.mu.Unlock()
	return &Subscription{b: b, cursor: cursor}
}

// Subscription is one subscriber's independent read cursor into a Broadcast.
type Subscription struct {
	b      *Broadcast
	cursor uint64
}

// Recv blocks until an alert is available, the subscriber has lagged, or the
// broadcast is closed and drained. Delivery order for a given subscriber
// matches emission order (spec.md §5).
func (s *Subscription) Recv(ctx context.Context) (Alert, error) {
	b := s.b
	for {
		b.mu.Lock()
		if s.cursor < b.nextSeq {
			oldestAvailable := uint64(0)
			if b.nextSeq > uint64(b.capacity) {
				oldestAvailable = b.nextSeq - uint64(b.capacity)
			}
			if s.cursor < oldestAvailable {
				missed := oldestAvailable - s.cursor
				s.cursor = oldestAvailable
				b.mu.Unlock()
				return Alert{}, &ErrLagged{Missed: missed}
			}
			a := b.buf[s.cursor%uint64(b.capacity)]
			s.cursor++
			b.mu.Unlock()
			return a, nil
		}
		if b.closed {
			b.mu.Unlock()
			return Alert{}, ErrClosed
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Alert{}, ctx.Err()
		}
	}
}
