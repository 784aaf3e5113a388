package probe

import "testing"

func TestSelectModePrefersSignal(t *testing.T) {
	off := Offsets{TaskSignalOffset: 8, SignalRssStatOffset: 16, RssItemSize: 8, TaskMmOffset: 24, MmRssStatOffset: 32}
	if got := SelectMode(off, true); got != ModeCoreSignal {
		t.Errorf("SelectMode = %v, want ModeCoreSignal", got)
	}
}

func TestSelectModeFallsBackToMm(t *testing.T) {
	off := Offsets{TaskMmOffset: 24, MmRssStatOffset: 32, RssItemSize: 8}
	if got := SelectMode(off, true); got != ModeCoreMm {
		t.Errorf("SelectMode = %v, want ModeCoreMm", got)
	}
}

func TestSelectModeFallsBackToTracepoint(t *testing.T) {
	off := Offsets{}
	if got := SelectMode(off, true); got != ModeTracepoint {
		t.Errorf("SelectMode = %v, want ModeTracepoint", got)
	}
}

func TestSelectModeDisabledWithNothingAvailable(t *testing.T) {
	off := Offsets{}
	if got := SelectMode(off, false); got != ModeDisabled {
		t.Errorf("SelectMode = %v, want ModeDisabled", got)
	}
}

func TestSelectModeIncompleteSignalOffsetsSkipped(t *testing.T) {
	// Signal offsets present but RssItemSize missing: the mm path needs it
	// too, so with no tracepoint available the mode is disabled.
	off := Offsets{TaskSignalOffset: 8, SignalRssStatOffset: 16, TaskMmOffset: 24, MmRssStatOffset: 32, RssItemSize: 0}
	off.TaskMmOffset = 24
	off.MmRssStatOffset = 32
	if got := SelectMode(off, false); got != ModeDisabled {
		t.Errorf("SelectMode = %v, want ModeDisabled (no rss item size resolved for either path)", got)
	}
}

func TestModeString(t *testing.T) {
	tests := []struct {
		m    Mode
		want string
	}{
		{ModeDisabled, "disabled"},
		{ModeCoreSignal, "core:signal"},
		{ModeCoreMm, "core:mm"},
		{ModeTracepoint, "tracepoint:mm/rss_stat"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestModeMetricValue(t *testing.T) {
	tests := []struct {
		m    Mode
		want float64
	}{
		{ModeDisabled, 0},
		{ModeCoreSignal, 1},
		{ModeCoreMm, 2},
		{ModeTracepoint, 3},
	}
	for _, tt := range tests {
		if got := tt.m.MetricValue(); got != tt.want {
			t.Errorf("Mode(%d).MetricValue() = %v, want %v", tt.m, got, tt.want)
		}
	}
}
