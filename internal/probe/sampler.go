package probe

import (
	"math"
	"sync"

	"github.com/nodewatch/linnixd/internal/wire"
)

// taskStats is the per-PID CPU baseline kept between samples.
type taskStats struct {
	lastRuntimeNs   uint64
	lastTimestampNs uint64
}

// Sampler derives milli-percent CPU samples from successive
// (sum_exec_runtime_ns, wall_clock_ns) observations per PID. It mirrors the
// kernel producer's sample_cpu: the first observation for a PID always
// returns "unknown" since there is no prior baseline to delta against.
type Sampler struct {
	mu    sync.Mutex
	stats map[uint32]taskStats
}

func NewSampler() *Sampler {
	return &Sampler{stats: make(map[uint32]taskStats)}
}

// SampleCPU returns the milli-percent CPU usage since the PID's last sample,
// or wire.PercentMilliUnknown if this is the first sample or the deltas are
// non-monotonic (clock skew, PID reuse).
func (s *Sampler) SampleCPU(pid uint32, runtimeNs, nowNs uint64) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.stats[pid]
	s.stats[pid] = taskStats{lastRuntimeNs: runtimeNs, lastTimestampNs: nowNs}
	if !ok {
		return wire.PercentMilliUnknown
	}

	if nowNs <= prev.lastTimestampNs || runtimeNs < prev.lastRuntimeNs {
		return wire.PercentMilliUnknown
	}
	deltaTime := nowNs - prev.lastTimestampNs
	deltaRuntime := runtimeNs - prev.lastRuntimeNs

	const maxU64 = math.MaxUint64
	var scaledMul uint64
	if deltaRuntime > maxU64/100_000 {
		scaledMul = maxU64
	} else {
		scaledMul = deltaRuntime * 100_000
	}
	scaled := scaledMul / deltaTime
	if scaled >= uint64(wire.PercentMilliUnknown) {
		scaled = uint64(wire.PercentMilliUnknown) - 1
	}
	return uint16(scaled)
}

// Remove clears CPU baseline state for an exited PID.
func (s *Sampler) Remove(pid uint32) {
	s.mu.Lock()
	delete(s.stats, pid)
	s.mu.Unlock()
}

// RSSBytes combines file and anonymous page counts into a byte total,
// capped against overflow the way the kernel-side accumulation is.
func RSSBytes(filePages, anonPages, pageSize uint64) uint64 {
	if pageSize == 0 {
		return 0
	}
	pages := filePages + anonPages
	if filePages > math.MaxUint64-anonPages {
		pages = math.MaxUint64
	}
	maxPages := uint64(math.MaxUint64) / pageSize
	if pages > maxPages {
		pages = maxPages
	}
	return pages * pageSize
}

// SampleMem converts an RSS byte count into a milli-percent of total system
// memory, or wire.PercentMilliUnknown if the total is not known.
func SampleMem(rssBytes, totalMemoryBytes uint64) uint16 {
	if totalMemoryBytes == 0 {
		return wire.PercentMilliUnknown
	}
	const maxU64 = math.MaxUint64
	var scaledMul uint64
	if rssBytes > maxU64/100_000 {
		scaledMul = maxU64
	} else {
		scaledMul = rssBytes * 100_000
	}
	scaled := scaledMul / totalMemoryBytes
	if scaled >= uint64(wire.PercentMilliUnknown) {
		scaled = uint64(wire.PercentMilliUnknown) - 1
	}
	return uint16(scaled)
}
