package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/activity.report/internal/capture"
	"github.com/stride-data/activity.report/internal/config"
	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/units"
)

// setupTestServer builds a Server over a cloned database, a fresh
// pipeline, and a capture controller. The seeded simulator source is
// disabled so tests drive ingest by hand.
func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()

	database, err := db.NewDB(cloneAPITestDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec("UPDATE source_config SET enabled = 0")
	require.NoError(t, err)

	pipeline := har.NewPipeline(har.PipelineConfig{})
	controller := capture.NewController(capture.Config{
		Pipeline: pipeline,
		DB:       database,
	})
	t.Cleanup(func() { controller.Stop() })

	server := NewServer(Config{
		DB:       database,
		Pipeline: pipeline,
		Capture:  controller,
		Loader:   har.DemoAssetLoader{},
		Tuning:   config.MustLoadDefaultConfig(),
	})
	return server, database
}

// doJSON runs one request through the full route table and decodes a
// JSON object response when there is one.
func doJSON(t *testing.T, server *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	decoded := map[string]interface{}{}
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestConvertSamples(t *testing.T) {
	tests := []struct {
		name      string
		units     string
		inX       float64
		expectedX float64
	}{
		{"mps2 passthrough", units.MPS2, 9.81, 9.81},
		{"g to mps2", units.G, 1.0, 9.80665},
		{"mg to mps2", units.MG, 1000.0, 9.80665},
		{"zero stays zero", units.G, 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converted := convertSamples([]har.Sample{{X: tt.inX}}, tt.units)
			require.Len(t, converted, 1)
			assert.InDelta(t, tt.expectedX, converted[0].X, 1e-9)
		})
	}
}

func TestShowStatus(t *testing.T) {
	server, _ := setupTestServer(t)

	w, body := doJSON(t, server, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "dev", body["version"])
	assert.Equal(t, units.MPS2, body["units"])

	pipeline, ok := body["pipeline"].(map[string]interface{})
	require.True(t, ok, "status must carry a pipeline block")
	assert.Equal(t, "uninitialized", pipeline["state"])
	assert.EqualValues(t, 200, pipeline["window_size"])

	captureBlock, ok := body["capture"].(map[string]interface{})
	require.True(t, ok, "status must carry a capture block")
	assert.Equal(t, false, captureBlock["running"])
}

func TestShowStatusMethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)

	w, body := doJSON(t, server, http.MethodPost, "/api/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method not allowed", body["error"])
}

func TestShowConfig(t *testing.T) {
	server, _ := setupTestServer(t)

	w, body := doJSON(t, server, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.EqualValues(t, 200, body["window_size"])
	assert.Equal(t, "800ms", body["inference_interval"])
	assert.Equal(t, "2s", body["not_ready_interval"])
	assert.EqualValues(t, 50, body["sample_rate_hz"])
	assert.Equal(t, units.MPS2, body["units"])
	assert.Equal(t, "har", body["mqtt_topic_prefix"])
	assert.Equal(t, "10m0s", body["redis_result_ttl"])
	assert.EqualValues(t, 100, body["result_history_limit"])
	assert.EqualValues(t, 5, body["live_sample_every"])
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"301"+colorReset, statusCodeColor(301))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}

func TestLoggingMiddlewarePreservesStatus(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "short and stout", w.Body.String())
}
