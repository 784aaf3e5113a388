package probe

import "sync"

// pageFaultMinIntervalNs is the minimum spacing between reported page
// faults for a single PID (spec.md §4.2).
const pageFaultMinIntervalNs uint64 = 50_000_000 // 50ms

// PageFaultThrottle rate-limits page-fault reporting per PID so a faulting
// process can't flood the ring. Mirrors the kernel-side PAGE_FAULT_THROTTLE
// map and its throttle_page_fault helper.
type PageFaultThrottle struct {
	mu   sync.Mutex
	last map[uint32]uint64
}

func NewPageFaultThrottle() *PageFaultThrottle {
	return &PageFaultThrottle{last: make(map[uint32]uint64)}
}

// Allow reports whether a fault for pid at nowNs should be emitted. The
// first fault for a PID is always allowed.
func (t *PageFaultThrottle) Allow(pid uint32, nowNs uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[pid]
	if !ok {
		t.last[pid] = nowNs
		return true
	}
	if nowNs < last || nowNs-last < pageFaultMinIntervalNs {
		return false
	}
	t.last[pid] = nowNs
	return true
}

// Remove clears throttle state for an exited PID.
func (t *PageFaultThrottle) Remove(pid uint32) {
	t.mu.Lock()
	delete(t.last, pid)
	t.mu.Unlock()
}
