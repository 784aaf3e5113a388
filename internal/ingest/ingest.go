// Package ingest is the C3 ingest loop: it drains decoded kernel events from
// a producer, updates lineage/recent-event state, feeds the rule engine, and
// keeps the ingest-side metrics current. Ordering from a single producer is
// preserved end to end — events are dispatched to every downstream consumer
// in the order they were received, one at a time, never fanned out onto
// goroutines that could reorder them.
package ingest

import (
	"context"

	"github.com/nodewatch/linnixd/internal/lineage"
	"github.com/nodewatch/linnixd/internal/metrics"
	"github.com/nodewatch/linnixd/internal/recent"
	"github.com/nodewatch/linnixd/internal/rules"
	"github.com/nodewatch/linnixd/internal/wire"
)

// Producer is anything that yields a stream of decoded kernel events on a
// channel that closes when the producer stops. probe.NativeProducer
// satisfies this.
type Producer interface {
	Events() <-chan wire.Event
}

// Loop drains a Producer's events and dispatches each one, in order, to the
// lineage cache, the recent-event queue, and the rule engine.
type Loop struct {
	producer Producer
	lineage  *lineage.Cache
	recent   *recent.Queue
	engine   *rules.Engine
	metrics  *metrics.Metrics

	done chan struct{}
}

// New builds an ingest loop over the given producer and consumers. lineage,
// recent, engine, and m may be nil; a nil consumer is simply skipped.
func New(producer Producer, lc *lineage.Cache, rq *recent.Queue, engine *rules.Engine, m *metrics.Metrics) *Loop {
	return &Loop{
		producer: producer,
		lineage:  lc,
		recent:   rq,
		engine:   engine,
		metrics:  m,
		done:     make(chan struct{}),
	}
}

// Run drains events until the producer's channel closes or ctx is canceled.
// It blocks; callers typically invoke it in its own goroutine and select on
// Done() to notice completion.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	events := l.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.dispatch(ev)
		}
	}
}

// Done returns a channel that closes once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) dispatch(ev wire.Event) {
	if l.metrics != nil {
		l.metrics.EventsTotal.WithLabelValues(ev.Type.String()).Inc()
	}

	if l.lineage != nil && ev.Type == wire.EventFork {
		l.lineage.RecordFork(ev.PID, ev.PPID)
	}

	if l.recent != nil {
		l.recent.Add(ev)
	}

	if l.engine != nil {
		l.engine.OnEvent(ev)
	}
}
