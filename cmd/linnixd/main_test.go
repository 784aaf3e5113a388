package main

import (
	"path/filepath"
	"testing"

	"github.com/nodewatch/linnixd/internal/config"
	"github.com/nodewatch/linnixd/internal/daemon"
	"github.com/nodewatch/linnixd/internal/mcpbridge"
)

// TestMCPBridgeWiring simulates what runMCP does without blocking on stdio:
// build a Daemon the same way runMCP does, then confirm its Bus.Broadcast
// and Recent fields construct a working mcpbridge.Server.
func TestMCPBridgeWiring(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.RulesFile = filepath.Join(dir, "does-not-exist.yaml")
	cfg.AlertsFile = filepath.Join(dir, "alerts.jsonl")

	d, err := daemon.New(cfg)
	if err != nil {
		t.Fatalf("daemon.New() error: %v", err)
	}

	if d.Bus == nil || d.Bus.Broadcast == nil {
		t.Fatal("daemon's alert bus/broadcast must be non-nil for the mcp bridge to subscribe to")
	}
	if d.Recent == nil {
		t.Fatal("daemon's recent-event queue must be non-nil for the mcp bridge's recent_events tool")
	}

	bridge := mcpbridge.NewServer(version, d.Bus.Broadcast, d.Recent)
	if bridge == nil {
		t.Fatal("mcpbridge.NewServer returned nil")
	}
}
