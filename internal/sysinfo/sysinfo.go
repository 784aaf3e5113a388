// Package sysinfo reads host-level facts the rule engine and kernel
// producer need but that have no place in the wire record itself: total
// system memory (for SubtreeRSSMb and TELEMETRY_CONFIG) and the kernel page
// size.
package sysinfo

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPageSize is the page size PageSize reports.
const DefaultPageSize = 4096

// TotalMemoryBytes reads /proc/meminfo's MemTotal field (reported in kB) and
// returns it in bytes. Returns 0 if the file can't be read or parsed, which
// callers treat as "unknown" (rules.SubtreeRSSMb falls back to treating
// mem_pct as the MB figure directly).
func TotalMemoryBytes(procRoot string) uint64 {
	if procRoot == "" {
		procRoot = "/proc"
	}
	f, err := os.Open(filepath.Join(procRoot, "meminfo"))
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

// PageSize returns the page size in bytes used for the kernel producer's
// offset table. It is pinned to DefaultPageSize (the usual x86_64/arm64
// Linux value) and does not query the running system; DetectOffsets takes
// the page size as a parameter, so a different value can be threaded
// through without touching this function.
func PageSize() uint64 {
	return DefaultPageSize
}
