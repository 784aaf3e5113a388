package stream

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nodewatch/linnixd/internal/alerts"
	"github.com/nodewatch/linnixd/internal/recent"
	"github.com/nodewatch/linnixd/internal/wire"
)

func TestHandleAlertsUnavailableWithoutBroadcast(t *testing.T) {
	s := New(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/stream/alerts", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleEventsUnavailableWithoutQueue(t *testing.T) {
	s := New(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/stream/events", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleEventsReturnsSnapshot(t *testing.T) {
	rq := recent.New(10, time.Minute)
	ev := wire.Event{PID: 42, PPID: 1, Type: wire.EventExec}
	ev.SetComm("sh")
	rq.Add(ev)

	s := New(nil, rq)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/stream/events", nil)
	req.Header.Set("Connection", "close")
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	if !scanner.Scan() {
		t.Fatalf("expected at least one line, scan error: %v", scanner.Err())
	}
	var got eventRecord
	if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if got.PID != 42 || got.Comm != "sh" || got.Type != "exec" {
		t.Fatalf("got record %+v, want pid=42 comm=sh type=exec", got)
	}
}

func TestHandleAlertsStreamsEmittedAlert(t *testing.T) {
	bc := alerts.NewBroadcast(128)
	s := New(bc, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/stream/alerts", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Give the handler a moment to subscribe before sending.
	time.Sleep(50 * time.Millisecond)
	bc.Send(alerts.Alert{Rule: "r1", Severity: "high", Message: "m", Host: "h"})

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == ": heartbeat" {
			continue
		}
		var got alerts.Alert
		if err := json.Unmarshal([]byte(line), &got); err != nil {
			t.Fatalf("unmarshal line %q: %v", line, err)
		}
		if got.Rule != "r1" || got.Host != "h" {
			t.Fatalf("got alert %+v, want rule=r1 host=h", got)
		}
		return
	}
	t.Fatalf("stream ended without an alert: %v", scanner.Err())
}
