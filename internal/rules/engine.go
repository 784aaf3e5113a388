package rules

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nodewatch/linnixd/internal/alerts"
	"github.com/nodewatch/linnixd/internal/wire"
)

const cooldownFloor = 100 * time.Millisecond

type completion struct {
	at       time.Time
	lifetime time.Duration
}

// state holds everything the rule engine's detectors read and write. A
// single mutex protects it; the mutex is released before any alert I/O and
// reacquired after (spec.md §4.6 lock discipline).
type state struct {
	forkEvents      []time.Time
	execEvents      []time.Time
	execStart       map[uint32]time.Time
	execCompletions []completion
	forksByPPID     map[uint32][]time.Time
	cpuExceed       map[string]time.Time
	rssExceed       map[string]time.Time
	active          map[string]time.Time
}

func newState() state {
	return state{
		execStart:   make(map[uint32]time.Time),
		forksByPPID: make(map[uint32][]time.Time),
		cpuExceed:   make(map[string]time.Time),
		rssExceed:   make(map[string]time.Time),
		active:      make(map[string]time.Time),
	}
}

// Engine is the streaming rule engine (C6).
type Engine struct {
	rules []Config

	mu sync.Mutex
	st state

	sink alerts.Sink
	host string

	forkKeep       time.Duration
	execKeep       time.Duration
	completionKeep time.Duration
	runawayKeep    time.Duration
	runawayEnabled bool

	totalMemoryBytes uint64 // 0 = unknown

	now func() time.Time
}

// NewEngine builds a rule engine from parsed rule configs. totalMemoryBytes
// is 0 if the system total could not be discovered (SubtreeRSSMb then falls
// back to treating mem_pct itself as the MB figure).
func NewEngine(cfgs []Config, sink alerts.Sink, host string, totalMemoryBytes uint64) *Engine {
	e := &Engine{
		rules:            cfgs,
		st:               newState(),
		sink:             sink,
		host:             host,
		totalMemoryBytes: totalMemoryBytes,
		now:              time.Now,
	}
	e.deriveWindows()
	return e
}

func (e *Engine) deriveWindows() {
	var forkWindowSecs, runawayWindowSecs uint64
	completionWindowSecs := uint64(60)

	for _, cfg := range e.rules {
		switch d := cfg.Detector.(type) {
		case ForksPerSec:
			forkWindowSecs = maxU64(forkWindowSecs, d.DurationS)
		case ForkBurst:
			forkWindowSecs = maxU64(forkWindowSecs, d.WindowS)
		case RunawayTree:
			forkWindowSecs = maxU64(forkWindowSecs, d.WindowS)
			runawayWindowSecs = maxU64(runawayWindowSecs, d.WindowS)
		case ShortJobFlood:
			completionWindowSecs = maxU64(completionWindowSecs, d.WindowS)
		case ExecRate:
			completionWindowSecs = maxU64(completionWindowSecs, 60)
		}
	}

	if forkWindowSecs == 0 {
		forkWindowSecs = 5
	}
	if runawayWindowSecs == 0 {
		runawayWindowSecs = forkWindowSecs
	}

	e.forkKeep = secondsMax1(forkWindowSecs)
	e.execKeep = 60 * time.Second
	e.completionKeep = secondsMax1(completionWindowSecs)
	e.runawayKeep = secondsMax1(runawayWindowSecs)
	e.runawayEnabled = runawayWindowSecs > 0
}

func maxU64(a, b uint64) uint64 {
	if b > a {
		return b
	}
	return a
}

func secondsMax1(s uint64) time.Duration {
	if s < 1 {
		s = 1
	}
	return time.Duration(s) * time.Second
}

// RuleCount returns the number of configured rules.
func (e *Engine) RuleCount() int { return len(e.rules) }

// OnEvent updates rule state from a decoded event and evaluates every rule
// against the new state, in declaration order.
func (e *Engine) OnEvent(ev wire.Event) {
	now := e.now()

	e.mu.Lock()
	switch ev.Type {
	case wire.EventFork:
		e.st.forkEvents = append(e.st.forkEvents, now)
		trimInstants(&e.st.forkEvents, e.forkKeep, now)

		if e.runawayEnabled {
			q := append(e.st.forksByPPID[ev.PPID], now)
			trimInstants(&q, e.runawayKeep, now)
			if len(q) == 0 {
				delete(e.st.forksByPPID, ev.PPID)
			} else {
				e.st.forksByPPID[ev.PPID] = q
			}
		}
	case wire.EventExec:
		e.st.execEvents = append(e.st.execEvents, now)
		trimInstants(&e.st.execEvents, e.execKeep, now)
		e.st.execStart[ev.PID] = now
	case wire.EventExit:
		if start, ok := e.st.execStart[ev.PID]; ok {
			delete(e.st.execStart, ev.PID)
			e.st.execCompletions = append(e.st.execCompletions, completion{at: now, lifetime: now.Sub(start)})
			trimCompletions(&e.st.execCompletions, e.completionKeep, now)
		}
	}

	isFork := ev.Type == wire.EventFork
	isExit := ev.Type == wire.EventExit
	cpuPct, haveCPU := ev.CPUPercent()
	memPct, haveMem := ev.MemPercent()

	for _, cfg := range e.rules {
		switch d := cfg.Detector.(type) {
		case ForksPerSec:
			if !isFork {
				continue
			}
			window := time.Duration(d.DurationS) * time.Second
			count := uint64(countRecent(e.st.forkEvents, window, now))
			target := d.Threshold
			if m := d.Threshold * d.DurationS; m > target {
				target = m
			}
			if count >= target {
				e.mu.Unlock()
				e.emitAlert(cfg, fmt.Sprintf("fork rate exceeded %d per second", d.Threshold))
				e.mu.Lock()
			}

		case ForkBurst:
			if !isFork {
				continue
			}
			window := time.Duration(d.WindowS) * time.Second
			count := uint64(countRecent(e.st.forkEvents, window, now))
			if count >= d.Threshold {
				e.mu.Unlock()
				e.emitAlert(cfg, fmt.Sprintf("fork burst: %d forks in %ds", count, d.WindowS))
				e.mu.Lock()
			}

		case ShortJobFlood:
			if !isExit {
				continue
			}
			window := time.Duration(d.WindowS) * time.Second
			maxExec := time.Duration(d.MaxExecMs) * time.Millisecond
			var count uint64
			fired := false
			for i := len(e.st.execCompletions) - 1; i >= 0; i-- {
				c := e.st.execCompletions[i]
				if now.Sub(c.at) > window {
					break
				}
				if c.lifetime <= maxExec {
					count++
					if count >= d.Threshold {
						fired = true
						break
					}
				}
			}
			if fired {
				e.mu.Unlock()
				e.emitAlert(cfg, fmt.Sprintf("%d short-lived execs (<= %dms) in %ds", d.Threshold, d.MaxExecMs, d.WindowS))
				e.mu.Lock()
			}

		case RunawayTree:
			if !isFork {
				continue
			}
			queue, ok := e.st.forksByPPID[ev.PPID]
			if !ok {
				continue
			}
			window := time.Duration(d.WindowS) * time.Second
			count := uint64(countRecent(queue, window, now))
			if count >= d.Threshold {
				e.mu.Unlock()
				e.emitAlert(cfg, fmt.Sprintf("ppid %d spawned %d forks in %ds", ev.PPID, count, d.WindowS))
				e.mu.Lock()
			}

		case SubtreeCPUPct:
			if !haveCPU {
				continue
			}
			if cpuPct > d.ThresholdPct {
				first, ok := e.st.cpuExceed[cfg.Name]
				if !ok {
					first = now
					e.st.cpuExceed[cfg.Name] = first
				}
				if now.Sub(first) > time.Duration(d.DurationS)*time.Second {
					delete(e.st.cpuExceed, cfg.Name)
					e.mu.Unlock()
					e.emitAlert(cfg, fmt.Sprintf("cpu pct %g over %ds", d.ThresholdPct, d.DurationS))
					e.mu.Lock()
				}
			} else {
				delete(e.st.cpuExceed, cfg.Name)
			}

		case SubtreeRSSMb:
			if !haveMem {
				continue
			}
			var usedMB uint64
			if e.totalMemoryBytes > 0 {
				usedBytes := (memPct / 100.0) * float64(e.totalMemoryBytes)
				usedMB = uint64(math.Round(usedBytes / (1024 * 1024)))
			} else {
				usedMB = uint64(math.Round(memPct))
			}
			if usedMB > d.ThresholdMB {
				first, ok := e.st.rssExceed[cfg.Name]
				if !ok {
					first = now
					e.st.rssExceed[cfg.Name] = first
				}
				if now.Sub(first) > time.Duration(d.DurationS)*time.Second {
					delete(e.st.rssExceed, cfg.Name)
					e.mu.Unlock()
					e.emitAlert(cfg, fmt.Sprintf("rss mb %d over %ds", d.ThresholdMB, d.DurationS))
					e.mu.Lock()
				}
			} else {
				delete(e.st.rssExceed, cfg.Name)
			}

		case ExecRate, ZombieCount:
			// Reserved: parsed for forward compatibility, inert (spec.md §9).
		}
	}
	e.mu.Unlock()
}

// emitAlert applies cooldown/dedup and, if the rule is not currently in its
// cooldown window, hands a sanitized Alert to the sink. The rule-state
// mutex is held only for the cooldown check/update, never across the sink
// call (spec.md §4.6).
func (e *Engine) emitAlert(cfg Config, message string) {
	key := e.host + ":" + cfg.Name

	e.mu.Lock()
	now := e.now()
	if until, ok := e.st.active[key]; ok && !now.After(until) {
		e.mu.Unlock()
		return
	}
	cooldown := time.Duration(cfg.Cooldown) * time.Second
	if cooldown < cooldownFloor {
		cooldown = cooldownFloor
	}
	e.st.active[key] = now.Add(cooldown)
	e.mu.Unlock()

	e.sink.Emit(alerts.Alert{
		Rule:     cfg.Name,
		Severity: cfg.Severity.String(),
		Message:  alerts.NewMessage(message),
		Host:     e.host,
	})
}

func trimInstants(queue *[]time.Time, keepFor time.Duration, now time.Time) {
	q := *queue
	i := 0
	for i < len(q) && now.Sub(q[i]) > keepFor {
		i++
	}
	if i > 0 {
		q = q[i:]
	}
	*queue = q
}

func trimCompletions(queue *[]completion, keepFor time.Duration, now time.Time) {
	q := *queue
	i := 0
	for i < len(q) && now.Sub(q[i].at) > keepFor {
		i++
	}
	if i > 0 {
		q = q[i:]
	}
	*queue = q
}

func countRecent(queue []time.Time, window time.Duration, now time.Time) int {
	count := 0
	for i := len(queue) - 1; i >= 0; i-- {
		if now.Sub(queue[i]) > window {
			break
		}
		count++
	}
	return count
}
