package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/activity.report/internal/db"
)

func seedSession(t *testing.T, database *db.DB, id string, startedMS int64) {
	t.Helper()
	require.NoError(t, database.CreateSession(&db.Session{
		ID:            id,
		Source:        "push",
		StartedUnixMS: startedMS,
	}))
}

func seedPrediction(t *testing.T, database *db.DB, session, label string, level int, recordedMS int64) {
	t.Helper()
	require.NoError(t, database.RecordPrediction(&db.Prediction{
		SessionID:      session,
		Label:          label,
		Confidence:     0.9,
		Level:          level,
		RecordedUnixMS: recordedMS,
	}))
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	return rows
}

func TestListPredictions(t *testing.T) {
	server, database := setupTestServer(t)

	seedSession(t, database, "sess-a", 1000)
	seedSession(t, database, "sess-b", 2000)
	seedPrediction(t, database, "sess-a", "Walking", 3, 1100)
	seedPrediction(t, database, "sess-a", "Jogging", 5, 1900)
	seedPrediction(t, database, "sess-b", "Sitting", 1, 2100)

	w, _ := doJSON(t, server, http.MethodGet, "/api/predictions?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows := decodeList(t, w)
	require.Len(t, rows, 2)
	assert.Equal(t, "Sitting", rows[0]["label"], "recent predictions run newest first")
	assert.Equal(t, "Jogging", rows[1]["label"])

	w, _ = doJSON(t, server, http.MethodGet, "/api/predictions?session=sess-a", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows = decodeList(t, w)
	require.Len(t, rows, 2)
	assert.Equal(t, "Walking", rows[0]["label"], "session history runs oldest first")
}

func TestListPredictionsEmptyIsArray(t *testing.T) {
	server, _ := setupTestServer(t)

	w, _ := doJSON(t, server, http.MethodGet, "/api/predictions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestListPredictionsInvalidLimit(t *testing.T) {
	server, _ := setupTestServer(t)

	for _, limit := range []string{"0", "-3", "many"} {
		w, body := doJSON(t, server, http.MethodGet, "/api/predictions?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
		assert.Contains(t, body["error"], "limit")
	}
}

func TestListSessions(t *testing.T) {
	server, database := setupTestServer(t)

	seedSession(t, database, "older", 1000)
	seedSession(t, database, "newer", 5000)

	w, _ := doJSON(t, server, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows := decodeList(t, w)
	require.Len(t, rows, 2)
	assert.Equal(t, "newer", rows[0]["id"])
	assert.Equal(t, "older", rows[1]["id"])

	w, _ = doJSON(t, server, http.MethodGet, "/api/sessions?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)
}

func TestSessionByID(t *testing.T) {
	server, database := setupTestServer(t)

	seedSession(t, database, "morning-run", 1000)

	w, body := doJSON(t, server, http.MethodGet, "/api/sessions/morning-run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "morning-run", body["id"])
	assert.Equal(t, "push", body["source"])
}

func TestSessionByIDNotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	w, body := doJSON(t, server, http.MethodGet, "/api/sessions/no-such-session", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Session not found", body["error"])
}

func TestSessionSummary(t *testing.T) {
	server, database := setupTestServer(t)

	seedSession(t, database, "walk", 1000)
	seedPrediction(t, database, "walk", "Walking", 3, 1100)
	seedPrediction(t, database, "walk", "Walking", 3, 1900)
	seedPrediction(t, database, "walk", "Jogging", 5, 2700)

	w, body := doJSON(t, server, http.MethodGet, "/api/sessions/walk/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["total"])
	assert.Equal(t, "Walking", body["dominant_label"])

	counts, ok := body["label_counts"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, counts["Walking"])
	assert.EqualValues(t, 1, counts["Jogging"])
}

func TestSessionLevels(t *testing.T) {
	server, database := setupTestServer(t)

	seedSession(t, database, "walk", 0)
	// Two predictions in the first 10s bucket, one in the second.
	seedPrediction(t, database, "walk", "Walking", 2, 1_000)
	seedPrediction(t, database, "walk", "Walking", 4, 9_000)
	seedPrediction(t, database, "walk", "Jogging", 5, 12_000)

	w, _ := doJSON(t, server, http.MethodGet, "/api/sessions/walk/levels", "")
	require.Equal(t, http.StatusOK, w.Code)
	buckets := decodeList(t, w)
	require.Len(t, buckets, 2)
	assert.EqualValues(t, 0, buckets[0]["bucket_unix_ms"])
	assert.InDelta(t, 3.0, buckets[0]["mean_level"].(float64), 1e-9)
	assert.EqualValues(t, 2, buckets[0]["count"])
	assert.EqualValues(t, 10_000, buckets[1]["bucket_unix_ms"])

	// A custom bucket width folds everything together.
	w, _ = doJSON(t, server, http.MethodGet, "/api/sessions/walk/levels?bucket_ms=60000", "")
	require.Equal(t, http.StatusOK, w.Code)
	buckets = decodeList(t, w)
	require.Len(t, buckets, 1)
	assert.EqualValues(t, 3, buckets[0]["count"])
}

func TestSessionLevelsInvalidBucket(t *testing.T) {
	server, database := setupTestServer(t)
	seedSession(t, database, "walk", 0)

	w, body := doJSON(t, server, http.MethodGet, "/api/sessions/walk/levels?bucket_ms=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "bucket_ms")
}

func TestSessionUnknownSubresource(t *testing.T) {
	server, database := setupTestServer(t)
	seedSession(t, database, "walk", 0)

	w, body := doJSON(t, server, http.MethodGet, "/api/sessions/walk/spectrogram", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", body["error"])
}

func TestSessionMissingID(t *testing.T) {
	server, _ := setupTestServer(t)

	w, body := doJSON(t, server, http.MethodGet, "/api/sessions/", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing session ID", body["error"])
}

func TestPredictionHistoryRoundTrip(t *testing.T) {
	server, database := setupTestServer(t)

	// A full day of half-hour sessions keeps the pagination honest.
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("sess-%d", i)
		seedSession(t, database, id, int64(i)*1800_000)
		seedPrediction(t, database, id, "Standing", 1, int64(i)*1800_000+500)
	}

	w, _ := doJSON(t, server, http.MethodGet, "/api/predictions?limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows := decodeList(t, w)
	require.Len(t, rows, 3)
	assert.Equal(t, "sess-4", rows[0]["session_id"])
	assert.Equal(t, "sess-2", rows[2]["session_id"])
}
