package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/stride-data/activity.report/internal/db"
)

// SourceConfigRequest represents the request body for creating/updating sample sources
type SourceConfigRequest struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	PortPath    string `json:"port_path"`
	BaudRate    int    `json:"baud_rate"`
	DataBits    int    `json:"data_bits"`
	StopBits    int    `json:"stop_bits"`
	Parity      string `json:"parity"`
	Topic       string `json:"topic"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// handleSourcesOrCreate handles GET and POST to /api/sources
func (s *Server) handleSourcesOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSources(w, r)
	case http.MethodPost:
		s.handleCreateSource(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSources handles GET /api/sources - List all configured sample sources
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "Database is not configured", http.StatusServiceUnavailable)
		return
	}

	configs, err := s.db.GetSourceConfigs()
	if err != nil {
		log.Printf("Error fetching source configs: %v", err)
		http.Error(w, "Failed to fetch source configurations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}

// handleSourceByID handles GET/PUT/DELETE /api/sources/:id
func (s *Server) handleSourceByID(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "Database is not configured", http.StatusServiceUnavailable)
		return
	}

	// Extract ID from URL path
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sources/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Missing source ID", http.StatusBadRequest)
		return
	}

	id, err := strconv.Atoi(pathParts[0])
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSource(w, r, id)
	case http.MethodPut:
		s.handleUpdateSource(w, r, id)
	case http.MethodDelete:
		s.handleDeleteSource(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetSource handles GET /api/sources/:id
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request, id int) {
	config, err := s.db.GetSourceConfig(id)
	if err != nil {
		log.Printf("Error fetching source config %d: %v", id, err)
		http.Error(w, "Failed to fetch source configuration", http.StatusInternalServerError)
		return
	}

	if config == nil {
		http.Error(w, "Source not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(config)
}

// validateSourceRequest applies the kind-specific field checks shared by
// create and update. A non-empty return is the client-facing problem.
func validateSourceRequest(req *SourceConfigRequest) string {
	if req.Name == "" {
		return "Name is required"
	}

	switch req.Kind {
	case db.SourceKindSerial:
		if req.PortPath == "" {
			return "Port path is required for serial sources"
		}
		if !isValidPortPath(req.PortPath) {
			return "Invalid port path. Must start with /dev/tty or /dev/serial"
		}
	case db.SourceKindMQTT:
		if req.PortPath == "" {
			return "Broker URL is required for mqtt sources"
		}
		if !isValidBrokerURL(req.PortPath) {
			return "Invalid broker URL. Must start with tcp://, ssl://, ws://, or mqtt://"
		}
	case db.SourceKindSim:
		// nothing to check; the simulator needs no endpoint
	default:
		return fmt.Sprintf("Unsupported source kind: %s", req.Kind)
	}

	return ""
}

// handleCreateSource handles POST /api/sources
func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SourceConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if msg := validateSourceRequest(&req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	// Set defaults if not provided
	if req.BaudRate == 0 {
		req.BaudRate = 115200
	}
	if req.DataBits == 0 {
		req.DataBits = 8
	}
	if req.StopBits == 0 {
		req.StopBits = 1
	}
	if req.Parity == "" {
		req.Parity = "N"
	}

	config := &db.SourceConfig{
		Name:        req.Name,
		Kind:        req.Kind,
		PortPath:    req.PortPath,
		BaudRate:    req.BaudRate,
		DataBits:    req.DataBits,
		StopBits:    req.StopBits,
		Parity:      req.Parity,
		Topic:       req.Topic,
		Enabled:     req.Enabled,
		Description: req.Description,
	}

	id, err := s.db.CreateSourceConfig(config)
	if err != nil {
		log.Printf("Error creating source config: %v", err)
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			http.Error(w, "Source with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create source configuration", http.StatusInternalServerError)
		return
	}

	// Fetch the created config to return it
	created, err := s.db.GetSourceConfig(int(id))
	if err != nil {
		log.Printf("Error fetching created config: %v", err)
		http.Error(w, "Source created but failed to fetch", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// handleUpdateSource handles PUT /api/sources/:id
func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request, id int) {
	var req SourceConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if msg := validateSourceRequest(&req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	config := &db.SourceConfig{
		ID:          id,
		Name:        req.Name,
		Kind:        req.Kind,
		PortPath:    req.PortPath,
		BaudRate:    req.BaudRate,
		DataBits:    req.DataBits,
		StopBits:    req.StopBits,
		Parity:      req.Parity,
		Topic:       req.Topic,
		Enabled:     req.Enabled,
		Description: req.Description,
	}

	err := s.db.UpdateSourceConfig(config)
	if err != nil {
		log.Printf("Error updating source config %d: %v", id, err)
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			http.Error(w, "Source with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to update source configuration", http.StatusInternalServerError)
		return
	}

	// Fetch the updated config to return it
	updated, err := s.db.GetSourceConfig(id)
	if err != nil {
		log.Printf("Error fetching updated config: %v", err)
		http.Error(w, "Source updated but failed to fetch", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// handleDeleteSource handles DELETE /api/sources/:id
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request, id int) {
	err := s.db.DeleteSourceConfig(id)
	if err != nil {
		log.Printf("Error deleting source config %d: %v", id, err)
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete source configuration", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// isValidPortPath validates that a port path is in an allowed format
func isValidPortPath(path string) bool {
	return strings.HasPrefix(path, "/dev/tty") || strings.HasPrefix(path, "/dev/serial")
}

// isValidBrokerURL validates that an MQTT broker URL carries a scheme
// the client understands
func isValidBrokerURL(url string) bool {
	for _, scheme := range []string{"tcp://", "ssl://", "ws://", "wss://", "mqtt://"} {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}
