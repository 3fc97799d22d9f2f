package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stride-data/activity.report/internal/capture"
	"github.com/stride-data/activity.report/internal/har"
)

func TestSelectPhases(t *testing.T) {
	programme := capture.DefaultPhases()

	phases, err := selectPhases(programme, "walking,JOGGING")
	if err != nil {
		t.Fatalf("selectPhases: %v", err)
	}
	if len(phases) != 2 {
		t.Fatalf("got %d phases, want 2", len(phases))
	}
	if phases[0].Label != "Walking" || phases[1].Label != "Jogging" {
		t.Errorf("got %q then %q, want programme order Walking, Jogging", phases[0].Label, phases[1].Label)
	}

	phases, err = selectPhases(programme, " Sitting ")
	if err != nil {
		t.Fatalf("selectPhases with padding: %v", err)
	}
	if len(phases) != 1 || phases[0].Label != "Sitting" {
		t.Errorf("got %v, want just Sitting", phases)
	}

	if _, err := selectPhases(programme, "flying"); err == nil {
		t.Error("expected error for unknown activity")
	}
	if _, err := selectPhases(programme, " , "); err == nil {
		t.Error("expected error for empty list")
	}
}

func TestStdoutSinkFrames(t *testing.T) {
	var buf bytes.Buffer
	s := newStdoutSink(&buf, 50)

	samples := []har.Sample{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}, {X: 7, Y: 8, Z: 9}}
	if err := s.Send(samples); err != nil {
		t.Fatalf("Send: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	var prev int64
	for i, line := range lines {
		var frame struct {
			T int64 `json:"t"`
			har.Sample
		}
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			t.Fatalf("line %d does not parse: %v", i, err)
		}
		if frame.Sample != samples[i] {
			t.Errorf("line %d axes = %+v, want %+v", i, frame.Sample, samples[i])
		}
		// batch members sit one nominal period apart
		if i > 0 && frame.T-prev != 20 {
			t.Errorf("line %d: step %dms, want 20", i, frame.T-prev)
		}
		prev = frame.T
	}
}

func TestHTTPSinkSend(t *testing.T) {
	var gotMethod, gotPath string
	var gotSamples []har.Sample
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotSamples, _ = har.ParseFrameBatch(body)
		json.NewEncoder(w).Encode(map[string]int{"accepted": len(gotSamples)})
	}))
	defer srv.Close()

	s, err := newHTTPSink(srv.URL, false)
	if err != nil {
		t.Fatalf("newHTTPSink: %v", err)
	}
	if err := s.Send([]har.Sample{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/api/samples" {
		t.Errorf("got %s %s, want POST /api/samples", gotMethod, gotPath)
	}
	if len(gotSamples) != 2 || gotSamples[1].Z != 6 {
		t.Errorf("server decoded %+v", gotSamples)
	}
}

func TestHTTPSinkNoSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "no capture session"})
	}))
	defer srv.Close()

	s, err := newHTTPSink(srv.URL, false)
	if err != nil {
		t.Fatalf("newHTTPSink: %v", err)
	}
	err = s.Send([]har.Sample{{X: 1}})
	if err == nil || !strings.Contains(err.Error(), "capture session") {
		t.Fatalf("expected a no-session hint, got %v", err)
	}
}

func TestHTTPSinkCaptureLifecycle(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/api/capture/start":
			json.NewEncoder(w).Encode(map[string]interface{}{"running": true, "session_id": "sess-1"})
		case "/api/capture/stop":
			json.NewEncoder(w).Encode(map[string]interface{}{"running": false, "session_id": "sess-1"})
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s, err := newHTTPSink(srv.URL, true)
	if err != nil {
		t.Fatalf("newHTTPSink: %v", err)
	}
	if s.session != "sess-1" {
		t.Errorf("session = %q, want sess-1", s.session)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []string{"POST /api/capture/start", "POST /api/capture/stop"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

// recordingSink captures every delivered batch.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]har.Sample
}

func (r *recordingSink) Send(samples []har.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := make([]har.Sample, len(samples))
	copy(batch, samples)
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestStreamFlushesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recordingSink{}
	wave := capture.NewWaveform(500, 1)

	done := make(chan struct{})
	var sent int
	var streamErr error
	go func() {
		sent, streamErr = stream(ctx, wave, rec, 500, 7)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for rec.total() < 20 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for samples to arrive")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if streamErr != nil {
		t.Fatalf("stream: %v", streamErr)
	}
	if sent != rec.total() {
		t.Errorf("stream reported %d sent, sink saw %d", sent, rec.total())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, b := range rec.batches {
		if i < len(rec.batches)-1 && len(b) != 7 {
			t.Errorf("batch %d has %d samples, want 7", i, len(b))
		}
		if len(b) == 0 || len(b) > 7 {
			t.Errorf("batch %d has %d samples, want 1..7", i, len(b))
		}
	}
}
