package alerts

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/nodewatch/linnixd/internal/metrics"
)

// Notifier forwards an emitted alert to an external collaborator (e.g. the
// journald/logger(1) bridge). Spawn failures are logged and never block
// rule evaluation (spec.md §4.6/§7 SinkError).
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Bus is the C7 alert fan-out: it appends every alert to a durable JSON
// log, forwards it to an optional external notifier, and publishes it on
// the broadcast channel, in that order, per the source daemon's
// emit_alert composition.
type Bus struct {
	Broadcast *Broadcast

	alertsFile string
	notifier   Notifier
	metrics    *metrics.Metrics

	dirOnce sync.Once
}

// NewBus creates a Bus writing to alertsFile with the given broadcast ring
// capacity. notifier and m may be nil.
func NewBus(alertsFile string, capacity int, notifier Notifier, m *metrics.Metrics) *Bus {
	return &Bus{
		Broadcast:  NewBroadcast(capacity),
		alertsFile: alertsFile,
		notifier:   notifier,
		metrics:    m,
	}
}

// Emit implements Sink. It is intentionally best-effort on the file/notifier
// paths: an alerts-file or notifier failure is logged and does not prevent
// other subscribers from seeing the alert.
func (b *Bus) Emit(a Alert) {
	b.appendFile(a)
	b.notify(a)
	b.Broadcast.Send(a)
	if b.metrics != nil {
		b.metrics.AlertsEmitted.Inc()
	}
}

// Close shuts down the broadcast channel; subscribers observe end-of-stream
// after draining whatever remains buffered.
func (b *Bus) Close() {
	b.Broadcast.Close()
}

func (b *Bus) appendFile(a Alert) {
	if b.alertsFile == "" {
		return
	}
	b.dirOnce.Do(func() {
		if dir := filepath.Dir(b.alertsFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Printf("[alerts] create alerts dir %s: %v", dir, err)
			}
		}
	})

	line, err := json.Marshal(a)
	if err != nil {
		log.Printf("[alerts] marshal alert: %v", err)
		return
	}
	f, err := os.OpenFile(b.alertsFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[alerts] open alerts file %s: %v", b.alertsFile, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Printf("[alerts] append alerts file %s: %v", b.alertsFile, err)
	}
}

func (b *Bus) notify(a Alert) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Notify(context.Background(), a); err != nil {
		log.Printf("[alerts] notifier failed for rule %s: %v", a.Rule, err)
	}
}
