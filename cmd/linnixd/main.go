// linnixd — node-level process-behavior observability agent.
//
// Attaches a bounded in-kernel producer (scheduler fork/exec/exit, block
// I/O, page faults), ingests its events into a lineage cache and a
// recent-event memory, evaluates a streaming rule engine over them, and
// fans out any fired alerts to subscribers and an external notifier.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nodewatch/linnixd/internal/config"
	"github.com/nodewatch/linnixd/internal/daemon"
	"github.com/nodewatch/linnixd/internal/ebpf"
	"github.com/nodewatch/linnixd/internal/mcpbridge"
)

var version = "0.1.0"

func main() {
	var configPath string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:     "linnixd",
		Short:   "Node-level process-behavior observability agent",
		Version: version,
		Long: `linnixd — bounded in-kernel producer, lineage cache, streaming rule
engine, and alert fan-out for node-level process-behavior observability.

run     start the daemon in the foreground
doctor  report probe-mode detection and kernel capability
mcp     start the MCP bridge over stdio`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to linnixd.yaml config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath, verbose)
		},
	}

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report probe-mode detection and kernel capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the Model Context Protocol (MCP) bridge",
		Long: `Starts a read-only MCP server over stdio exposing tail_alerts and
recent_events to an external collaborator (e.g. Claude Desktop, Cursor).

The daemon's kernel producer and rule engine run in the background so the
bridge reflects live alert and event state; it performs no analysis itself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(configPath, verbose)
		},
	}

	rootCmd.AddCommand(runCmd, doctorCmd, mcpCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("[linnixd] starting, host=%s stream=%s metrics=%s", cfg.Host, cfg.StreamAddr, cfg.MetricsAddr)
	return d.Run(ctx)
}

func runMCP(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if d.Loop != nil {
		go d.Loop.Run(ctx)
	}

	bridge := mcpbridge.NewServer(version, d.Bus.Broadcast, d.Recent)
	log.Printf("[linnixd] mcp bridge starting over stdio, host=%s", cfg.Host)
	return bridge.Start(ctx)
}

func runDoctor() error {
	loader := ebpf.NewLoader(false)
	info := loader.BTFInfo()

	fmt.Printf("Kernel: %s\n", info.KernelVersion)
	fmt.Printf("BTF available: %v\n", info.Available)
	fmt.Printf("CO-RE support: %v\n", info.CORESupport)
	fmt.Printf("Can load native probe: %v\n", loader.CanLoad())

	caps := ebpf.DetectBPFCapabilities()
	fmt.Print(ebpf.FormatCapabilities(caps))
	return nil
}
