// Package metrics exposes the daemon's runtime counters (§6) over a
// dedicated Prometheus registry, independent of the default global one so
// multiple daemon instances can coexist in a single test binary.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge named in spec.md §6.
type Metrics struct {
	registry *prometheus.Registry

	AlertsEmitted      prometheus.Counter
	EventsTotal        *prometheus.CounterVec
	DroppedEvents      prometheus.Counter
	DecodeErrors       prometheus.Counter
	PerfPollErrors     prometheus.Counter
	RSSProbeMode       prometheus.Gauge
	KernelBTFAvailable prometheus.Gauge
}

// New creates a Metrics bundle registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		AlertsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_emitted_total",
			Help: "Total number of alerts emitted by the rule engine.",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_total",
			Help: "Total number of decoded events ingested, by event type.",
		}, []string{"type"}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropped_events_total",
			Help: "Total number of events dropped at the producer ring due to backpressure.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decode_errors_total",
			Help: "Total number of wire records rejected by the size-check gate.",
		}),
		PerfPollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perf_poll_errors_total",
			Help: "Total number of ring/perf poll errors observed by the ingest loop.",
		}),
		RSSProbeMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rss_probe_mode",
			Help: "Active RSS probe mode (0=disabled, 1=core:signal, 2=core:mm, 3=tracepoint).",
		}),
		KernelBTFAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernel_btf_available",
			Help: "1 if kernel BTF was discovered at startup, 0 otherwise.",
		}),
	}
	reg.MustRegister(
		m.AlertsEmitted,
		m.EventsTotal,
		m.DroppedEvents,
		m.DecodeErrors,
		m.PerfPollErrors,
		m.RSSProbeMode,
		m.KernelBTFAvailable,
	)
	return m
}

// Handler returns the HTTP handler serving this bundle's registry in the
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
