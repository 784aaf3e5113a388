// Package daemon wires C1-C8 and the ambient stack into a single runnable
// process: it owns startup ordering, graceful shutdown, and the lifetime of
// every long-running goroutine.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nodewatch/linnixd/internal/alerts"
	"github.com/nodewatch/linnixd/internal/config"
	"github.com/nodewatch/linnixd/internal/ebpf"
	"github.com/nodewatch/linnixd/internal/ingest"
	"github.com/nodewatch/linnixd/internal/lineage"
	"github.com/nodewatch/linnixd/internal/metrics"
	"github.com/nodewatch/linnixd/internal/notifier"
	"github.com/nodewatch/linnixd/internal/probe"
	"github.com/nodewatch/linnixd/internal/recent"
	"github.com/nodewatch/linnixd/internal/rules"
	"github.com/nodewatch/linnixd/internal/stream"
	"github.com/nodewatch/linnixd/internal/sysinfo"
)

// shutdownTimeout bounds how long an HTTP server is given to drain
// in-flight requests before Run returns.
const shutdownTimeout = 5 * time.Second

// Daemon holds every long-lived component wired together for a single run.
type Daemon struct {
	cfg config.Config

	Metrics  *metrics.Metrics
	Lineage  *lineage.Cache
	Recent   *recent.Queue
	Engine   *rules.Engine
	Bus      *alerts.Bus
	Stream   *stream.Server
	Producer *probe.NativeProducer
	Loop     *ingest.Loop

	httpServers []*http.Server
	wg          sync.WaitGroup
}

// New builds a Daemon from cfg. It loads the rules file, opens the alerts
// bus, and attempts the native kernel producer; a producer load failure is
// logged and the daemon continues without kernel events (graceful degrade,
// per spec.md §4.2/§9).
func New(cfg config.Config) (*Daemon, error) {
	m := metrics.New()

	rulesText, err := os.ReadFile(cfg.RulesFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon: read rules file %s: %w", cfg.RulesFile, err)
	}
	var cfgs []rules.Config
	if err == nil {
		cfgs, err = rules.ParseRules(string(rulesText), cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("daemon: parse rules file %s: %w", cfg.RulesFile, err)
		}
	} else {
		log.Printf("[daemon] rules file %s not found, starting with no rules", cfg.RulesFile)
	}

	var n alerts.Notifier
	if ln, err := notifier.NewLoggerNotifier("linnixd"); err != nil {
		log.Printf("[daemon] logger notifier unavailable, alerts will not be forwarded to syslog: %v", err)
	} else {
		n = ln
	}

	bus := alerts.NewBus(cfg.AlertsFile, cfg.BroadcastCapacity, n, m)

	totalMem := sysinfo.TotalMemoryBytes("/proc")
	engine := rules.NewEngine(cfgs, bus, cfg.Host, totalMem)

	lc := lineage.New(cfg.LineageTTL, cfg.LineageCapacity)
	rq := recent.New(cfg.RecentCapacity, cfg.RecentMaxAge)

	streamSrv := stream.New(bus.Broadcast, rq)

	d := &Daemon{
		cfg:     cfg,
		Metrics: m,
		Lineage: lc,
		Recent:  rq,
		Engine:  engine,
		Bus:     bus,
		Stream:  streamSrv,
	}

	loader := ebpf.NewLoader(cfg.Verbose)
	m.KernelBTFAvailable.Set(boolToFloat(loader.BTFInfo().Available))

	producer, err := probe.NewNativeProducer(context.Background(), loader, m, cfg.PerCPUBufferSize, totalMem)
	if err != nil {
		log.Printf("[daemon] native kernel producer unavailable, running without process events: %v", err)
	} else {
		d.Producer = producer
		d.Loop = ingest.New(producer, lc, rq, engine, m)
	}

	return d, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Run starts every background component and blocks until ctx is canceled,
// then shuts everything down in reverse order.
func (d *Daemon) Run(ctx context.Context) error {
	if d.Loop != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.Loop.Run(ctx)
		}()
	}

	d.serve(d.cfg.StreamAddr, d.Stream.Handler(), "stream")
	d.serve(d.cfg.MetricsAddr, d.Metrics.Handler(), "metrics")

	<-ctx.Done()
	d.shutdown()
	return nil
}

func (d *Daemon) serve(addr string, handler http.Handler, name string) {
	if addr == "" {
		return
	}
	srv := &http.Server{Addr: addr, Handler: handler}
	d.httpServers = append(d.httpServers, srv)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		log.Printf("[daemon] %s listening on %s", name, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[daemon] %s server error: %v", name, err)
		}
	}()
}

func (d *Daemon) shutdown() {
	for _, srv := range d.httpServers {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[daemon] server shutdown error: %v", err)
		}
		cancel()
	}
	if d.Producer != nil {
		if err := d.Producer.Close(); err != nil {
			log.Printf("[daemon] producer close error: %v", err)
		}
	}
	d.Bus.Close()
	d.wg.Wait()
}
