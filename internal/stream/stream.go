// Package stream is C8: plain HTTP chunked text endpoints that tail the
// alert fan-out and the recent-event memory, for external collaborators
// that can't or shouldn't embed the daemon's Go packages directly.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nodewatch/linnixd/internal/alerts"
	"github.com/nodewatch/linnixd/internal/recent"
)

// heartbeatInterval is how often an idle stream writes a comment frame so
// intermediaries and slow clients don't time the connection out.
const heartbeatInterval = 15 * time.Second

// Server exposes the streaming endpoints over HTTP.
type Server struct {
	broadcast *alerts.Broadcast
	recent    *recent.Queue
	router    *mux.Router
}

// New builds a stream Server. broadcast and rq may be nil; the
// corresponding route then responds 503.
func New(broadcast *alerts.Broadcast, rq *recent.Queue) *Server {
	s := &Server{broadcast: broadcast, recent: rq, router: mux.NewRouter()}
	s.router.HandleFunc("/stream/alerts", s.handleAlerts).Methods(http.MethodGet)
	s.router.HandleFunc("/stream/events", s.handleEvents).Methods(http.MethodGet)
	return s
}

// Handler returns the server's http.Handler, for embedding in a larger mux
// or passing directly to http.ListenAndServe.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.broadcast == nil {
		http.Error(w, "alert stream unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	sub := s.broadcast.Subscribe()
	enc := json.NewEncoder(w)

	for {
		recvCtx, cancel := context.WithTimeout(ctx, heartbeatInterval)
		alert, err := sub.Recv(recvCtx)
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return
			case err == context.DeadlineExceeded:
				if _, werr := w.Write([]byte(": heartbeat\n")); werr != nil {
					return
				}
				flusher.Flush()
				continue
			case err == alerts.ErrClosed:
				return
			default:
				// ErrLagged: the subscriber's cursor was advanced past the
				// records it missed; keep consuming from there.
				continue
			}
		}
		if encErr := enc.Encode(alert); encErr != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for _, entry := range s.recent.Snapshot() {
		if err := enc.Encode(eventRecord{
			PID:        entry.Event.PID,
			PPID:       entry.Event.PPID,
			Type:       entry.Event.Type.String(),
			Comm:       entry.Event.CommString(),
			ReceivedAt: entry.ReceivedAt,
		}); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	select {
	case <-ticker.C:
		w.Write([]byte(": heartbeat\n"))
		flusher.Flush()
	case <-r.Context().Done():
	}
}

// eventRecord is the wire shape for a single tailed event on /stream/events.
type eventRecord struct {
	PID        uint32    `json:"pid"`
	PPID       uint32    `json:"ppid"`
	Type       string    `json:"type"`
	Comm       string    `json:"comm"`
	ReceivedAt time.Time `json:"received_at"`
}
