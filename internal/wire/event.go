// Package wire defines the fixed-layout record carried from the kernel
// producer to the userspace daemon across the per-CPU ring. The layout is a
// compatibility surface: field order and width must not change once shipped,
// only grown behind a new size (see Decode).
package wire

import (
	"encoding/binary"
	"fmt"
)

// EventType enumerates the kind of observation a Event carries.
type EventType uint32

const (
	EventFork EventType = 1 + iota
	EventExec
	EventExit
	EventNet
	EventFileIO
	EventSyscall
	EventBlockIO
	EventPageFault
)

func (t EventType) String() string {
	switch t {
	case EventFork:
		return "fork"
	case EventExec:
		return "exec"
	case EventExit:
		return "exit"
	case EventNet:
		return "net"
	case EventFileIO:
		return "file_io"
	case EventSyscall:
		return "syscall"
	case EventBlockIO:
		return "block_io"
	case EventPageFault:
		return "page_fault"
	default:
		return fmt.Sprintf("event(%d)", uint32(t))
	}
}

// PercentMilliUnknown is the sentinel for "value unknown for this sample" in
// a milli-percent field. Valid samples are in [0, PercentMilliUnknown).
const PercentMilliUnknown uint16 = 0xFFFF

// commLen is the fixed width of the NUL-padded command-name field.
const commLen = 16

// Size is the compiled, on-wire size of Event in bytes. Consumers reject any
// record whose observed size differs from Size.
const Size = 4 + 4 + 4 + 4 + 4 + 8 + 8 + commLen + 8 + 2 + 2 + 8 + 8 + 4 + 4

// Event is one kernel-captured observation about a process, resource, or
// fault. All multi-byte fields are little-endian.
type Event struct {
	PID         uint32
	PPID        uint32
	UID         uint32
	GID         uint32
	Type        EventType
	TsNs        uint64
	Seq         uint64
	Comm        [commLen]byte
	ExitTimeNs  uint64
	CPUPctMilli uint16
	MemPctMilli uint16
	Data        uint64
	Data2       uint64
	Aux         uint32
	Aux2        uint32
}

// CommString returns Comm with trailing NUL padding trimmed.
func (e *Event) CommString() string {
	n := 0
	for n < len(e.Comm) && e.Comm[n] != 0 {
		n++
	}
	return string(e.Comm[:n])
}

// SetComm copies name into Comm, truncating to commLen and zero-padding the
// remainder. Producers MUST zero reserved fields; this keeps the same
// contract for any in-process construction.
func (e *Event) SetComm(name string) {
	var buf [commLen]byte
	n := copy(buf[:], name)
	_ = n
	e.Comm = buf
}

// CPUPercent returns the sampled CPU percentage (0-65.534, the largest
// milli-percent a uint16 holds below the sentinel), or false if the sample
// carries the "unknown" sentinel.
func (e *Event) CPUPercent() (float64, bool) {
	if e.CPUPctMilli == PercentMilliUnknown {
		return 0, false
	}
	return float64(e.CPUPctMilli) / 1000.0, true
}

// MemPercent returns the sampled memory percentage (0-65.534, as for
// CPUPercent), or false if the sample carries the "unknown" sentinel.
func (e *Event) MemPercent() (float64, bool) {
	if e.MemPctMilli == PercentMilliUnknown {
		return 0, false
	}
	return float64(e.MemPctMilli) / 1000.0, true
}

// Encode serializes the event into its fixed on-wire layout.
func (e *Event) Encode() []byte {
	buf := make([]byte, Size)
	o := 0
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[o:], v)
		o += 4
	}
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[o:], v)
		o += 8
	}
	putU16 := func(v uint16) {
		binary.LittleEndian.PutUint16(buf[o:], v)
		o += 2
	}

	putU32(e.PID)
	putU32(e.PPID)
	putU32(e.UID)
	putU32(e.GID)
	putU32(uint32(e.Type))
	putU64(e.TsNs)
	putU64(e.Seq)
	copy(buf[o:o+commLen], e.Comm[:])
	o += commLen
	putU64(e.ExitTimeNs)
	putU16(e.CPUPctMilli)
	putU16(e.MemPctMilli)
	putU64(e.Data)
	putU64(e.Data2)
	putU32(e.Aux)
	putU32(e.Aux2)
	return buf
}

// ErrSizeMismatch is returned by Decode when the observed record size does
// not equal the compiled layout size. This is the wire-upgrade gate: a
// future layout change must ship as a new, size-distinguishable record
// rather than silently reinterpreting bytes.
type ErrSizeMismatch struct {
	Got, Want int
}

func (e *ErrSizeMismatch) Error() string {
	return fmt.Sprintf("wire: record size %d does not match compiled size %d", e.Got, e.Want)
}

// Decode parses a fixed-layout record. It rejects any buffer whose length
// differs from Size.
func Decode(buf []byte) (Event, error) {
	var e Event
	if len(buf) != Size {
		return e, &ErrSizeMismatch{Got: len(buf), Want: Size}
	}
	o := 0
	getU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(buf[o:])
		o += 4
		return v
	}
	getU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(buf[o:])
		o += 8
		return v
	}
	getU16 := func() uint16 {
		v := binary.LittleEndian.Uint16(buf[o:])
		o += 2
		return v
	}

	e.PID = getU32()
	e.PPID = getU32()
	e.UID = getU32()
	e.GID = getU32()
	e.Type = EventType(getU32())
	e.TsNs = getU64()
	e.Seq = getU64()
	copy(e.Comm[:], buf[o:o+commLen])
	o += commLen
	e.ExitTimeNs = getU64()
	e.CPUPctMilli = getU16()
	e.MemPctMilli = getU16()
	e.Data = getU64()
	e.Data2 = getU64()
	e.Aux = getU32()
	e.Aux2 = getU32()
	return e, nil
}
