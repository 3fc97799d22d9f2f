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

// Query limits for the history routes. Dashboards poll these, so
// unbounded reads are never served.
const (
	defaultPredictionLimit = 50
	maxPredictionLimit     = 1000
	defaultSessionLimit    = 20
)

// parseLimit reads an optional positive 'limit' query parameter.
func parseLimit(r *http.Request, fallback, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}

// listPredictions handles GET /api/predictions - recent predictions,
// newest first, optionally scoped to one session.
func (s *Server) listPredictions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Database is not configured")
		return
	}

	limit, err := parseLimit(r, defaultPredictionLimit, maxPredictionLimit)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var predictions []db.Prediction
	if session := r.URL.Query().Get("session"); session != "" {
		predictions, err = s.db.ListPredictions(session, limit)
	} else {
		predictions, err = s.db.RecentPredictions(limit)
	}
	if err != nil {
		log.Printf("Error fetching predictions: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve predictions: %v", err))
		return
	}
	if predictions == nil {
		predictions = []db.Prediction{}
	}

	if err := json.NewEncoder(w).Encode(predictions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write predictions")
		return
	}
}

// listSessions handles GET /api/sessions - capture sessions, newest
// first.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Database is not configured")
		return
	}

	limit, err := parseLimit(r, defaultSessionLimit, maxPredictionLimit)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := s.db.ListSessions(limit)
	if err != nil {
		log.Printf("Error fetching sessions: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}

	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
		return
	}
}

// handleSessionByID handles GET /api/sessions/:id and its /summary and
// /levels subresources.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Database is not configured")
		return
	}

	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing session ID")
		return
	}
	id := pathParts[0]

	session, err := s.db.GetSession(id)
	if err != nil {
		log.Printf("Error fetching session %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to fetch session")
		return
	}
	if session == nil {
		s.writeJSONError(w, http.StatusNotFound, "Session not found")
		return
	}

	switch {
	case len(pathParts) == 1:
		if err := json.NewEncoder(w).Encode(session); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write session")
		}
	case len(pathParts) == 2 && pathParts[1] == "summary":
		s.showSessionSummary(w, id)
	case len(pathParts) == 2 && pathParts[1] == "levels":
		s.showSessionLevels(w, r, id)
	default:
		s.writeJSONError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) showSessionSummary(w http.ResponseWriter, id string) {
	summary, err := s.db.SummarizeSession(id)
	if err != nil {
		log.Printf("Error summarizing session %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to summarize session")
		return
	}

	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write summary")
		return
	}
}

func (s *Server) showSessionLevels(w http.ResponseWriter, r *http.Request, id string) {
	bucketMS := int64(0) // LevelSeries applies its own default
	if raw := r.URL.Query().Get("bucket_ms"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'bucket_ms' parameter")
			return
		}
		bucketMS = parsed
	}

	buckets, err := s.db.LevelSeries(id, bucketMS)
	if err != nil {
		log.Printf("Error building level series for session %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to build level series")
		return
	}
	if buckets == nil {
		buckets = []db.LevelBucket{}
	}

	if err := json.NewEncoder(w).Encode(buckets); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write level series")
		return
	}
}
