// Package probe is the kernel producer (C2): BTF offset discovery, native
// BPF program attachment, and translation of kernel-emitted perf records
// into wire.Event values for the ingest loop.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/cilium/ebpf/perf"

	"github.com/nodewatch/linnixd/internal/ebpf"
	"github.com/nodewatch/linnixd/internal/metrics"
	"github.com/nodewatch/linnixd/internal/sysinfo"
	"github.com/nodewatch/linnixd/internal/wire"
)

// eventsMapName is the per-CPU perf event array the compiled object
// publishes wire.Event records to.
const eventsMapName = "EVENTS"

// configMapName holds the single Offsets entry the kernel side reads before
// walking task_struct/mm_struct/signal_struct.
const configMapName = "TELEMETRY_CONFIG"

// objectFile is where the compiled CO-RE object is expected to live at
// runtime. It ships out-of-band (built by a separate C/Rust-eBPF toolchain,
// not by `go build`); the daemon simply needs it to exist at this path.
const objectFile = "internal/probe/bpf/linnixd.o"

// DefaultProgramSpec is the linnixd kernel producer: scheduler fork/exec/exit,
// block I/O queue/issue/complete, and page-fault entry points.
var DefaultProgramSpec = ebpf.ProgramSpec{
	Name:       "linnixd",
	Category:   "process",
	ObjectFile: objectFile,
	MapNames:   []string{eventsMapName, configMapName},
	Attach: []ebpf.AttachPoint{
		{Kind: ebpf.AttachTracepoint, ProgName: "handle_fork", Category: "sched", Name: "sched_process_fork"},
		{Kind: ebpf.AttachTracepoint, ProgName: "handle_exec", Category: "sched", Name: "sched_process_exec"},
		{Kind: ebpf.AttachTracepoint, ProgName: "handle_exit", Category: "sched", Name: "sched_process_exit"},
		{Kind: ebpf.AttachTracepoint, ProgName: "trace_block_queue", Category: "block", Name: "block_bio_queue"},
		{Kind: ebpf.AttachTracepoint, ProgName: "trace_block_issue", Category: "block", Name: "block_rq_issue"},
		{Kind: ebpf.AttachTracepoint, ProgName: "trace_block_complete", Category: "block", Name: "block_rq_complete"},
		{Kind: ebpf.AttachKprobe, ProgName: "trace_page_fault_user", Function: "handle_mm_fault"},
	},
}

// ErrUnavailable is returned by NewNativeProducer when the kernel cannot
// support native eBPF loading; callers should run without a kernel producer
// rather than fail startup.
var ErrUnavailable = errors.New("probe: native eBPF unavailable")

// NativeProducer attaches the compiled CO-RE object and turns its perf
// records into decoded wire.Event values.
type NativeProducer struct {
	loader  *ebpf.Loader
	prog    *ebpf.LoadedProgram
	reader  *perf.Reader
	metrics *metrics.Metrics

	events chan wire.Event
	drops  atomic.Uint64
}

// NewNativeProducer loads and attaches the kernel producer. perCPUBufferSize
// is the perf ring's per-CPU buffer size in bytes (forwarded to perf.NewReader).
// totalMemoryBytes is written into the kernel config map so mem_pct_milli
// samples are relative to this host's total RAM.
func NewNativeProducer(ctx context.Context, loader *ebpf.Loader, m *metrics.Metrics, perCPUBufferSize int, totalMemoryBytes uint64) (*NativeProducer, error) {
	if !loader.CanLoad() {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, loader.BTFInfo().KernelVersion)
	}

	prog, err := loader.TryLoad(ctx, &DefaultProgramSpec)
	if err != nil {
		return nil, err
	}

	eventsMap := prog.Map(eventsMapName)
	if eventsMap == nil {
		prog.Close()
		return nil, fmt.Errorf("probe: map %q not found in collection", eventsMapName)
	}

	if perCPUBufferSize <= 0 {
		perCPUBufferSize = 64 * 1024
	}
	rd, err := perf.NewReader(eventsMap, perCPUBufferSize)
	if err != nil {
		prog.Close()
		return nil, fmt.Errorf("probe: open perf reader: %w", err)
	}

	if cfgMap := prog.Map(configMapName); cfgMap != nil {
		off := DetectOffsets(sysinfo.PageSize(), totalMemoryBytes)
		if err := cfgMap.Put(uint32(0), off); err != nil {
			log.Printf("[probe] write %s: %v", configMapName, err)
		}
	}

	p := &NativeProducer{loader: loader, prog: prog, reader: rd, metrics: m, events: make(chan wire.Event, 1024)}
	go p.run()
	return p, nil
}

func (p *NativeProducer) run() {
	defer close(p.events)
	for {
		record, err := p.reader.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) {
				return
			}
			if p.metrics != nil {
				p.metrics.PerfPollErrors.Inc()
			}
			continue
		}

		if record.LostSamples > 0 {
			p.drops.Add(record.LostSamples)
			if p.metrics != nil {
				p.metrics.DroppedEvents.Add(float64(record.LostSamples))
			}
			continue
		}

		ev, err := wire.Decode(record.RawSample)
		if err != nil {
			if p.metrics != nil {
				p.metrics.DecodeErrors.Inc()
			}
			continue
		}
		p.events <- ev
	}
}

// Events returns the channel of decoded kernel events. It closes when the
// producer is stopped.
func (p *NativeProducer) Events() <-chan wire.Event { return p.events }

// Dropped returns the number of records lost to ring overflow so far.
func (p *NativeProducer) Dropped() uint64 { return p.drops.Load() }

// Close detaches the program and stops the read loop.
func (p *NativeProducer) Close() error {
	if p.reader != nil {
		p.reader.Close()
	}
	if p.prog != nil {
		p.prog.Close()
	}
	return nil
}
