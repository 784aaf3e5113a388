package probe

import (
	"fmt"

	"github.com/cilium/ebpf/btf"
)

// RSS source tags, matching the kernel config's rss_source field.
const (
	RSSSourceNone   uint32 = 0
	RSSSourceSignal uint32 = 1
	RSSSourceMM     uint32 = 2
)

// Offsets is the struct-field offset table the kernel producer needs to
// walk task_struct/mm_struct/signal_struct without hardcoding a kernel
// version's layout (CO-RE). It is written into the program's config map
// before attach. A zero offset means "not resolved"; every reader downstream
// treats offset==0 as "field unavailable" rather than a real offset of 0,
// matching the kernel side's own gating.
type Offsets struct {
	TaskRealParentOffset uint32
	TaskTgidOffset       uint32
	TaskSeOffset         uint32
	SeSumExecRuntimeOffset uint32
	TaskSignalOffset     uint32
	SignalRssStatOffset  uint32
	TaskMmOffset         uint32
	MmRssStatOffset      uint32
	RssItemSize          uint32
	RssFileIndex         uint32
	RssAnonIndex         uint32
	RssSource            uint32
	PageSize             uint64
	TotalMemoryBytes     uint64
}

// rssFileIndex/rssAnonIndex are the well-known mm_rss_stat member indices
// (MM_FILEPAGES, MM_ANONPAGES) stable since the counter type was introduced.
const (
	rssFileIndex = 0
	rssAnonIndex = 1
)

// DetectOffsets walks the running kernel's BTF (if available) to resolve
// the struct field offsets the producer needs. Any failure to load BTF or
// find a member leaves the corresponding offset at 0 rather than returning
// an error: callers degrade to Mode Disabled/Tracepoint rather than failing
// startup.
func DetectOffsets(pageSize, totalMemoryBytes uint64) Offsets {
	off := Offsets{
		RssFileIndex:     rssFileIndex,
		RssAnonIndex:     rssAnonIndex,
		PageSize:         pageSize,
		TotalMemoryBytes: totalMemoryBytes,
	}

	spec, err := btf.LoadKernelSpec()
	if err != nil {
		return off
	}

	if taskStruct, ok := findStruct(spec, "task_struct"); ok {
		off.TaskRealParentOffset = memberOffset(taskStruct, "real_parent")
		off.TaskTgidOffset = memberOffset(taskStruct, "tgid")
		off.TaskSeOffset = memberOffset(taskStruct, "se")
		off.TaskSignalOffset = memberOffset(taskStruct, "signal")
		off.TaskMmOffset = memberOffset(taskStruct, "mm")
	}

	if seStruct, ok := findStruct(spec, "sched_entity"); ok {
		off.SeSumExecRuntimeOffset = memberOffset(seStruct, "sum_exec_runtime")
	}

	if rssStat, ok := findStruct(spec, "mm_rss_stat"); ok {
		off.RssItemSize = rssStatItemSize(rssStat)
	}

	if signalStruct, ok := findStruct(spec, "signal_struct"); ok {
		if _, ok := memberOffsetOK(signalStruct, "rss_stat"); ok {
			off.SignalRssStatOffset = memberOffset(signalStruct, "rss_stat")
			off.RssSource = RSSSourceSignal
		}
	}
	if off.RssSource == RSSSourceNone {
		if mmStruct, ok := findStruct(spec, "mm_struct"); ok {
			if _, ok := memberOffsetOK(mmStruct, "rss_stat"); ok {
				off.MmRssStatOffset = memberOffset(mmStruct, "rss_stat")
				off.RssSource = RSSSourceMM
			}
		}
	}

	return off
}

func findStruct(spec *btf.Spec, name string) (*btf.Struct, bool) {
	var s *btf.Struct
	if err := spec.TypeByName(name, &s); err != nil {
		return nil, false
	}
	return s, true
}

func memberOffsetOK(s *btf.Struct, name string) (uint32, bool) {
	for _, m := range s.Members {
		if m.Name == name {
			return uint32(m.Offset.Bytes()), true
		}
	}
	return 0, false
}

func memberOffset(s *btf.Struct, name string) uint32 {
	off, _ := memberOffsetOK(s, name)
	return off
}

// rssStatItemSize returns the size in bytes of one mm_rss_stat counter
// element (its "count" array member's element type), used to index
// MM_FILEPAGES/MM_ANONPAGES within the stat struct.
func rssStatItemSize(s *btf.Struct) uint32 {
	for _, m := range s.Members {
		if m.Name != "count" {
			continue
		}
		arr, ok := m.Type.(*btf.Array)
		if !ok {
			continue
		}
		sz, err := btf.Sizeof(arr.Type)
		if err != nil {
			return 0
		}
		return uint32(sz)
	}
	return 0
}

func (o Offsets) String() string {
	return fmt.Sprintf("rss_source=%d rss_item_size=%d page_size=%d total_bytes=%d",
		o.RssSource, o.RssItemSize, o.PageSize, o.TotalMemoryBytes)
}
