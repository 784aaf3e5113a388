package recent

import (
	"testing"
	"time"

	"github.com/nodewatch/linnixd/internal/wire"
)

func TestAddThenSnapshotReturnsAddedEvent(t *testing.T) {
	q := New(10, time.Minute)
	var e wire.Event
	e.PID = 5
	q.Add(e)
	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].Event.PID != 5 {
		t.Fatalf("snapshot = %+v, want one entry with pid 5", snap)
	}
}

func TestCapacityDropsOldest(t *testing.T) {
	q := New(3, time.Hour)
	for i := uint32(1); i <= 5; i++ {
		var e wire.Event
		e.PID = i
		q.Add(e)
	}
	snap := q.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snapshot) = %d, want 3", len(snap))
	}
	want := []uint32{3, 4, 5}
	for i, entry := range snap {
		if entry.Event.PID != want[i] {
			t.Fatalf("snapshot[%d].PID = %d, want %d", i, entry.Event.PID, want[i])
		}
	}
}

func TestAgeBoundPrunesOldEntries(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	q := New(100, 50*time.Millisecond)
	q.now = clk.Now

	var e1 wire.Event
	e1.PID = 1
	q.Add(e1)
	clk.Advance(100 * time.Millisecond)

	var e2 wire.Event
	e2.PID = 2
	q.Add(e2)

	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].Event.PID != 2 {
		t.Fatalf("snapshot = %+v, want only pid 2 to survive", snap)
	}
}

func TestSnapshotIsStableCopy(t *testing.T) {
	q := New(10, time.Minute)
	var e wire.Event
	e.PID = 1
	q.Add(e)
	snap := q.Snapshot()

	var e2 wire.Event
	e2.PID = 2
	q.Add(e2)

	if len(snap) != 1 {
		t.Fatalf("earlier snapshot mutated: len = %d, want 1", len(snap))
	}
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) Advance(d time.Duration) {
	f.t = f.t.Add(d)
}
