// Package api serves the daemon's HTTP surface: daemon status, capture
// control, sample ingest, prediction history, source administration,
// and the WebSocket upgrades for live dashboards and phone streams.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/stride-data/activity.report/internal/capture"
	"github.com/stride-data/activity.report/internal/config"
	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/live"
	"github.com/stride-data/activity.report/internal/sensormux"
	"github.com/stride-data/activity.report/internal/units"
	"github.com/stride-data/activity.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Unit conversion for pushed sample batches.
// The pipeline, trainer, and database all operate on m/s^2, so batches
// arriving in g or milli-g are converted once, here at the boundary.
func convertSamples(samples []har.Sample, sourceUnits string) []har.Sample {
	if sourceUnits == units.MPS2 {
		return samples
	}
	for i := range samples {
		samples[i].X = units.ToMPS2(samples[i].X, sourceUnits)
		samples[i].Y = units.ToMPS2(samples[i].Y, sourceUnits)
		samples[i].Z = units.ToMPS2(samples[i].Z, sourceUnits)
	}
	return samples
}

// Config wires a Server. Every dependency is optional: routes whose
// dependency is absent answer 503 instead of panicking, so a daemon
// running without a database or a wired sensor still serves the rest.
type Config struct {
	DB       *db.DB
	Pipeline *har.Pipeline
	Capture  *capture.Controller
	Hub      *live.Hub
	Sensor   sensormux.SensorMuxInterface
	Loader   har.AssetLoader
	Tuning   *config.TuningConfig
}

type Server struct {
	db       *db.DB
	pipeline *har.Pipeline
	capture  *capture.Controller
	hub      *live.Hub
	sensor   sensormux.SensorMuxInterface
	loader   har.AssetLoader
	tuning   *config.TuningConfig
	units    string
	started  time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Tuning == nil {
		cfg.Tuning = config.EmptyTuningConfig()
	}
	return &Server{
		db:       cfg.DB,
		pipeline: cfg.Pipeline,
		capture:  cfg.Capture,
		hub:      cfg.Hub,
		sensor:   cfg.Sensor,
		loader:   cfg.Loader,
		tuning:   cfg.Tuning,
		units:    cfg.Tuning.GetUnits(),
		started:  time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux lays out the HTTP surface. The /api and /ws prefixes are
// advertised in the mDNS TXT records, so they must not drift.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/capture", s.showCaptureStatus)
	mux.HandleFunc("/api/capture/start", s.startCapture)
	mux.HandleFunc("/api/capture/stop", s.stopCapture)
	mux.HandleFunc("/api/samples", s.ingestSamples)
	mux.HandleFunc("/api/assets/reload", s.reloadAssets)
	mux.HandleFunc("/api/predictions", s.listPredictions)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/sources", s.handleSourcesOrCreate)
	mux.HandleFunc("/api/sources/", s.handleSourceByID)
	mux.HandleFunc("/api/sources/devices", s.handleSourceDevices)
	mux.HandleFunc("/api/sources/test", s.handleSourceTest)
	mux.HandleFunc("/api/command", s.sendCommandHandler)

	if s.hub != nil {
		mux.Handle("/ws", live.NewHandler(s.hub))
		mux.Handle("/ws/ingest", &live.IngestHandler{Push: s.pushSamples})
	}

	return mux
}

// pushSamples is the single ingest gate shared by POST /api/samples and
// the WebSocket ingest handler: convert to m/s^2, then hand the batch
// to the capture controller.
func (s *Server) pushSamples(ctx context.Context, samples []har.Sample) error {
	if s.capture == nil {
		return capture.ErrNotCapturing
	}
	return s.capture.Push(ctx, convertSamples(samples, s.units))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusResponse is the daemon-wide snapshot served at /api/status.
type statusResponse struct {
	Version  string         `json:"version"`
	UptimeMS int64          `json:"uptime_ms"`
	Units    string         `json:"units"`
	Pipeline har.Stats      `json:"pipeline"`
	Capture  capture.Status `json:"capture"`
	Live     *live.Stats    `json:"live,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := statusResponse{
		Version:  version.String(),
		UptimeMS: time.Since(s.started).Milliseconds(),
		Units:    s.units,
	}
	if s.pipeline != nil {
		resp.Pipeline = s.pipeline.Stats()
	}
	if s.capture != nil {
		resp.Capture = s.capture.Status()
	}
	if s.hub != nil {
		stats := s.hub.Stats()
		resp.Live = &stats
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"window_size":          s.tuning.GetWindowSize(),
		"inference_interval":   s.tuning.GetInferenceInterval().String(),
		"not_ready_interval":   s.tuning.GetNotReadyInterval().String(),
		"asset_dir":            s.tuning.GetAssetDir(),
		"sample_rate_hz":       s.tuning.GetSampleRateHz(),
		"units":                s.units,
		"record_raw":           s.tuning.GetRecordRaw(),
		"raw_batch_size":       s.tuning.GetRawBatchSize(),
		"mqtt_topic_prefix":    s.tuning.GetMQTTTopicPrefix(),
		"redis_key_prefix":     s.tuning.GetRedisKeyPrefix(),
		"redis_result_ttl":     s.tuning.GetRedisResultTTL().String(),
		"result_history_limit": s.tuning.GetResultHistoryLimit(),
		"live_sample_every":    s.tuning.GetLiveSampleEvery(),
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
