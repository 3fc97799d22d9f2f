package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/stride-data/activity.report/internal/capture"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/sensormux"
)

// maxSampleBatchBytes caps one POSTed sample batch, matching the
// WebSocket ingest limit.
const maxSampleBatchBytes = 512 * 1024

// captureResponse reports the outcome of a start or stop request.
type captureResponse struct {
	Running   bool   `json:"running"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) showCaptureStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.capture == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Capture is not configured")
		return
	}

	if err := json.NewEncoder(w).Encode(s.capture.Status()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write capture status")
		return
	}
}

func (s *Server) startCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.capture == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Capture is not configured")
		return
	}

	id, err := s.capture.Start()
	if err != nil {
		log.Printf("Error starting capture: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to start capture: %v", err))
		return
	}

	json.NewEncoder(w).Encode(captureResponse{Running: true, SessionID: id})
}

func (s *Server) stopCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.capture == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Capture is not configured")
		return
	}

	id, err := s.capture.Stop()
	if err != nil {
		// Capture has stopped either way; the session row just kept its
		// open end time.
		log.Printf("Error stopping capture: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Capture stopped but session was not finalized: %v", err))
		return
	}

	json.NewEncoder(w).Encode(captureResponse{Running: false, SessionID: id})
}

// ingestSamples handles POST /api/samples - batch sample ingest for
// clients that cannot hold a WebSocket open. The body is one JSON
// sample object or an array of them, in the configured input units.
func (s *Server) ingestSamples(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSampleBatchBytes))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	samples, err := har.ParseFrameBatch(body)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid sample batch: %v", err))
		return
	}
	if len(samples) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "Empty sample batch")
		return
	}

	if err := s.pushSamples(r.Context(), samples); err != nil {
		if errors.Is(err, capture.ErrNotCapturing) {
			s.writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("Error ingesting samples: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to ingest samples")
		return
	}

	json.NewEncoder(w).Encode(map[string]int{"accepted": len(samples)})
}

// reloadAssets handles POST /api/assets/reload - the operator's retry
// trigger after a failed asset load. The pipeline never retries on its
// own.
func (s *Server) reloadAssets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.pipeline == nil || s.loader == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "No asset loader configured")
		return
	}

	if err := s.pipeline.LoadAssets(r.Context(), s.loader); err != nil {
		// "already loaded" and "already in progress" are operator
		// races, not load failures.
		if strings.Contains(err.Error(), "already") {
			s.writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("Error reloading assets: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Asset load failed: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"state": s.pipeline.State().String()})
}

// sendCommandHandler handles POST /api/command - forwards a control
// command to the wired IMU module. Commands outside the allow list
// never reach the device.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sensor == nil {
		http.Error(w, "No wired sensor attached", http.StatusServiceUnavailable)
		return
	}

	command := r.FormValue("command")
	if !sensormux.IsAllowedCommand(command) {
		http.Error(w, "Command not allowed", http.StatusBadRequest)
		return
	}

	if err := s.sensor.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}
