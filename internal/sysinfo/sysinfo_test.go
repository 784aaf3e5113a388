package sysinfo

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMeminfo(t *testing.T, dir, content string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "meminfo"), []byte(content), 0o644); err != nil {
		t.Fatalf("write meminfo: %v", err)
	}
	return dir
}

func TestTotalMemoryBytesParsesMemTotal(t *testing.T) {
	dir := writeMeminfo(t, t.TempDir(), "MemTotal:       16384000 kB\nMemFree:        1000 kB\n")
	got := TotalMemoryBytes(dir)
	want := uint64(16384000 * 1024)
	if got != want {
		t.Errorf("TotalMemoryBytes = %d, want %d", got, want)
	}
}

func TestTotalMemoryBytesMissingFile(t *testing.T) {
	got := TotalMemoryBytes(t.TempDir())
	if got != 0 {
		t.Errorf("TotalMemoryBytes with no meminfo = %d, want 0", got)
	}
}

func TestTotalMemoryBytesMalformedLine(t *testing.T) {
	dir := writeMeminfo(t, t.TempDir(), "MemTotal:\n")
	got := TotalMemoryBytes(dir)
	if got != 0 {
		t.Errorf("TotalMemoryBytes with malformed line = %d, want 0", got)
	}
}

func TestPageSizeReturnsDefault(t *testing.T) {
	if got := PageSize(); got != DefaultPageSize {
		t.Errorf("PageSize() = %d, want %d", got, DefaultPageSize)
	}
}
