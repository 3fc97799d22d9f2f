// Package monitor renders server-side chart pages for recorded
// activity data using go-echarts. These are operator debugging views:
// no auth, plain HTML, reachable from any browser on the LAN without
// the phone app.
package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/stride-data/activity.report/internal/db"
)

// Chart pages load the echarts bundle from this host. Deployments on
// an isolated LAN can point this at a local mirror and rebuild.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Charts serves the chart pages off the prediction store.
type Charts struct {
	db *db.DB
}

// NewCharts creates the chart handler set around a database.
func NewCharts(database *db.DB) *Charts {
	return &Charts{db: database}
}

// AttachRoutes mounts the chart pages. The dashboard frames the three
// chart pages, so all four live under the same prefix.
func (c *Charts) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/charts", c.handleDashboard)
	mux.HandleFunc("/charts/timeline", c.handleTimelineChart)
	mux.HandleFunc("/charts/levels", c.handleLevelChart)
	mux.HandleFunc("/charts/confidence", c.handleConfidenceChart)
}

func (c *Charts) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// fetchPredictions returns chart-ready predictions in chronological
// order: a session's rows when session is set, otherwise the most
// recent rows across all sessions.
func (c *Charts) fetchPredictions(session string, limit int) ([]db.Prediction, error) {
	if session != "" {
		return c.db.ListPredictions(session, limit)
	}

	preds, err := c.db.RecentPredictions(limit)
	if err != nil {
		return nil, err
	}

	// RecentPredictions is newest-first; charts read left to right.
	for i, j := 0, len(preds)-1; i < j; i, j = i+1, j-1 {
		preds[i], preds[j] = preds[j], preds[i]
	}
	return preds, nil
}

// chartLimit reads the 'limit' query parameter, keeping the fallback
// when the value is absent, unparseable, or out of range.
func chartLimit(r *http.Request, fallback, max int) int {
	limit := fallback
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= max {
			limit = v
		}
	}
	return limit
}
