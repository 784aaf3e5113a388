// Package ebpf provides BTF/CO-RE detection and native BPF program
// loading/attachment for the kernel producer, with graceful fallback when
// the running kernel can't support it.
package ebpf

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

// AttachKind selects how a program within the collection is wired to the
// kernel: a scheduler/block tracepoint, or a kprobe on a named function.
type AttachKind int

const (
	AttachTracepoint AttachKind = iota
	AttachKprobe
)

// AttachPoint binds one program in the compiled object to a kernel hook.
type AttachPoint struct {
	Kind     AttachKind
	ProgName string // key into ebpf.Collection.Programs
	Category string // tracepoint category, e.g. "sched"
	Name     string // tracepoint name, e.g. "sched_process_fork"
	Function string // kprobe target function
}

// ProgramSpec describes a native eBPF program to load: its compiled object
// and every attach point it wires up.
type ProgramSpec struct {
	Name       string
	Category   string
	ObjectFile string // path to compiled .o
	MapNames   []string
	Attach     []AttachPoint
}

// LoadedProgram represents a running BPF program: its collection plus every
// attached link, all torn down together on Close.
type LoadedProgram struct {
	Spec       *ProgramSpec
	Collection *ebpf.Collection
	Links      []link.Link
}

// Map looks up one of the collection's maps by name.
func (p *LoadedProgram) Map(name string) *ebpf.Map {
	if p.Collection == nil {
		return nil
	}
	return p.Collection.Maps[name]
}

// Close detaches every link and releases the collection.
func (p *LoadedProgram) Close() error {
	for _, l := range p.Links {
		l.Close()
	}
	if p.Collection != nil {
		p.Collection.Close()
	}
	return nil
}

// Loader handles loading and attaching native eBPF programs.
type Loader struct {
	btfInfo *BTFInfo
	verbose bool
}

// NewLoader creates a new eBPF program loader.
func NewLoader(verbose bool) *Loader {
	return &Loader{
		btfInfo: DetectBTF(),
		verbose: verbose,
	}
}

// BTFInfo exposes the detected BTF/CO-RE capability, e.g. for doctor output.
func (l *Loader) BTFInfo() *BTFInfo { return l.btfInfo }

// CanLoad returns whether the system supports native eBPF loading.
func (l *Loader) CanLoad() bool {
	return l.btfInfo.Available && l.btfInfo.CORESupport
}

// LoadError represents a BPF program load or attach failure.
type LoadError struct {
	Program string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("BPF program %q: %v", e.Program, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TryLoad attempts to load a BPF program's object file and attach every
// configured hook. On any failure, whatever was already attached is torn
// down before returning.
func (l *Loader) TryLoad(ctx context.Context, spec *ProgramSpec) (*LoadedProgram, error) {
	if !l.CanLoad() {
		return nil, &LoadError{
			Program: spec.Name,
			Err:     fmt.Errorf("BTF/CO-RE not available (kernel %s)", l.btfInfo.KernelVersion),
		}
	}

	path := spec.ObjectFile
	if !filepath.IsAbs(path) {
		// Object files are resolved relative to the daemon's working
		// directory; callers running elsewhere should pass an absolute path.
	}

	collSpec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("load spec: %w", err)}
	}

	coll, err := ebpf.NewCollection(collSpec)
	if err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("load collection: %w", err)}
	}

	lp := &LoadedProgram{Spec: spec, Collection: coll}
	for _, ap := range spec.Attach {
		prog := coll.Programs[ap.ProgName]
		if prog == nil {
			lp.Close()
			return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("program %q not found in collection", ap.ProgName)}
		}

		var lk link.Link
		var attachErr error
		switch ap.Kind {
		case AttachTracepoint:
			lk, attachErr = link.Tracepoint(ap.Category, ap.Name, prog, nil)
		case AttachKprobe:
			lk, attachErr = link.Kprobe(ap.Function, prog, nil)
		default:
			attachErr = fmt.Errorf("unknown attach kind for %q", ap.ProgName)
		}
		if attachErr != nil {
			lp.Close()
			return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("attach %q: %w", ap.ProgName, attachErr)}
		}
		lp.Links = append(lp.Links, lk)
	}

	if l.verbose {
		log.Printf("[ebpf] loaded %s (%d attach points)", spec.Name, len(spec.Attach))
	}

	return lp, nil
}
