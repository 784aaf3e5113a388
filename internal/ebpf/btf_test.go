package ebpf

import (
	"context"
	"errors"
	"testing"
)

func TestParseKernelVersion(t *testing.T) {
	tests := []struct {
		input     string
		wantMajor int
		wantMinor int
	}{
		{"6.1.0-generic", 6, 1},
		{"5.15.0-91-generic", 5, 15},
		{"5.8.0", 5, 8},
		{"4.15.0-213-generic", 4, 15},
		{"6.6.9+rpt-rpi-v8", 6, 6},
		{"", 0, 0},
		{"bad", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			major, minor := parseKernelVersion(tt.input)
			if major != tt.wantMajor || minor != tt.wantMinor {
				t.Errorf("parseKernelVersion(%q) = (%d, %d), want (%d, %d)",
					tt.input, major, minor, tt.wantMajor, tt.wantMinor)
			}
		})
	}
}

func TestDetectBTF(t *testing.T) {
	// This test runs on any OS — just verifies it doesn't panic
	info := DetectBTF()
	if info == nil {
		t.Fatal("DetectBTF returned nil")
	}

	// On macOS, BTF won't be available
	t.Logf("BTF available: %v, kernel: %s, CO-RE: %v",
		info.Available, info.KernelVersion, info.CORESupport)
}

func TestCapabilityLevel(t *testing.T) {
	tests := []struct {
		name string
		caps map[string]bool
		want int
	}{
		{
			"tier 3 - full",
			map[string]bool{
				"btf_vmlinux":           true,
				"bpf_syscall":           true,
				"config_bpf":            true,
				"config_bpf_syscall":    true,
				"config_debug_info_btf": true,
			},
			3,
		},
		{
			"tier 2 - bpf syscall without CO-RE",
			map[string]bool{
				"bpf_syscall": true,
				"config_bpf":  true,
			},
			2,
		},
		{
			"tier 1 - procfs only",
			map[string]bool{},
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := CapabilityLevel(tt.caps)
			if level != tt.want {
				t.Errorf("CapabilityLevel = %d, want %d", level, tt.want)
			}
		})
	}
}

func TestLoaderCanLoadReflectsBTF(t *testing.T) {
	loader := NewLoader(false)
	want := loader.BTFInfo().Available && loader.BTFInfo().CORESupport
	if loader.CanLoad() != want {
		t.Errorf("CanLoad() = %v, want %v", loader.CanLoad(), want)
	}
}

func TestTryLoadFailsWithoutCORE(t *testing.T) {
	loader := &Loader{btfInfo: &BTFInfo{Available: false}}
	_, err := loader.TryLoad(context.Background(), &ProgramSpec{Name: "test"})
	if err == nil {
		t.Fatal("expected error when BTF/CO-RE unavailable")
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error type = %T, want *LoadError", err)
	}
}

func TestFormatCapabilities(t *testing.T) {
	caps := map[string]bool{
		"bpf_syscall": true,
		"config_bpf":  true,
		"kprobes":     false,
	}

	output := FormatCapabilities(caps)
	if output == "" {
		t.Error("empty capabilities output")
	}
	if !containsString(output, "Tier") {
		t.Error("missing tier level")
	}
}

func containsString(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
