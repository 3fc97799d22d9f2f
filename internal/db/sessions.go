package db

import (
	"database/sql"
	"fmt"
)

// Session is one capture run: a span of time during which samples were
// streamed and classified. EndedUnixMS is nil while the session is
// still open.
type Session struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	Notes         string `json:"notes"`
	StartedUnixMS int64  `json:"started_unix_ms"`
	EndedUnixMS   *int64 `json:"ended_unix_ms"`
}

// CreateSession inserts a new session row. The caller supplies the ID
// (the capture controller uses a UUID).
func (db *DB) CreateSession(s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("session id required")
	}

	query := `INSERT INTO sessions (id, source, notes, started_unix_ms, ended_unix_ms)
	          VALUES (?, ?, ?, ?, ?)`

	_, err := db.Exec(query, s.ID, s.Source, s.Notes, s.StartedUnixMS, s.EndedUnixMS)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// EndSession stamps the end time on an open session. Ending an
// already-ended session is a no-op; a missing session is an error.
func (db *DB) EndSession(id string, endedUnixMS int64) error {
	result, err := db.Exec(`UPDATE sessions SET ended_unix_ms = ? WHERE id = ? AND ended_unix_ms IS NULL`,
		endedUnixMS, id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	existing, err := db.GetSession(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// GetSession returns a session by ID, or nil if it does not exist.
func (db *DB) GetSession(id string) (*Session, error) {
	query := `SELECT id, source, notes, started_unix_ms, ended_unix_ms
	          FROM sessions
	          WHERE id = ?`

	var s Session
	err := db.QueryRow(query, id).Scan(&s.ID, &s.Source, &s.Notes, &s.StartedUnixMS, &s.EndedUnixMS)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &s, nil
}

// ListSessions returns sessions newest-first. A limit <= 0 returns all.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unlimited
	}

	query := `SELECT id, source, notes, started_unix_ms, ended_unix_ms
	          FROM sessions
	          ORDER BY started_unix_ms DESC
	          LIMIT ?`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Source, &s.Notes, &s.StartedUnixMS, &s.EndedUnixMS); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, nil
}

// SessionSummary is the rollup of a session's predictions, computed in
// SQL so the monitor and report endpoints don't have to page rows.
type SessionSummary struct {
	SessionID      string           `json:"session_id"`
	Total          int64            `json:"total"`
	LabelCounts    map[string]int64 `json:"label_counts"`
	DominantLabel  string           `json:"dominant_label"`
	MeanConfidence float64          `json:"mean_confidence"`
	MeanLevel      float64          `json:"mean_level"`
	FirstUnixMS    int64            `json:"first_unix_ms"`
	LastUnixMS     int64            `json:"last_unix_ms"`
}

// SummarizeSession rolls up the predictions recorded under a session.
// A session with no predictions yields a summary with Total 0.
func (db *DB) SummarizeSession(sessionID string) (*SessionSummary, error) {
	summary := &SessionSummary{
		SessionID:   sessionID,
		LabelCounts: make(map[string]int64),
	}

	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(AVG(confidence), 0),
		       COALESCE(AVG(level), 0),
		       COALESCE(MIN(recorded_unix_ms), 0),
		       COALESCE(MAX(recorded_unix_ms), 0)
		FROM predictions
		WHERE session_id = ?
	`, sessionID).Scan(&summary.Total, &summary.MeanConfidence, &summary.MeanLevel,
		&summary.FirstUnixMS, &summary.LastUnixMS)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize session: %w", err)
	}

	rows, err := db.Query(`
		SELECT label, COUNT(*)
		FROM predictions
		WHERE session_id = ?
		GROUP BY label
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	defer rows.Close()

	var bestN int64
	for rows.Next() {
		var label string
		var n int64
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		summary.LabelCounts[label] = n
		// Ties break toward the lexicographically smaller label so the
		// dominant label is stable across runs.
		if n > bestN || (n == bestN && bestN > 0 && label < summary.DominantLabel) {
			bestN = n
			summary.DominantLabel = label
		}
	}

	return summary, nil
}

// LevelBucket is one time bucket of the activity-level series.
type LevelBucket struct {
	BucketUnixMS   int64   `json:"bucket_unix_ms"`
	MeanLevel      float64 `json:"mean_level"`
	MeanConfidence float64 `json:"mean_confidence"`
	Count          int64   `json:"count"`
}

// LevelSeries buckets a session's predictions by time and averages the
// activity level per bucket. The monitor charts this directly. A
// bucketMS <= 0 defaults to 10 seconds.
func (db *DB) LevelSeries(sessionID string, bucketMS int64) ([]LevelBucket, error) {
	if bucketMS <= 0 {
		bucketMS = 10_000
	}

	query := `SELECT (recorded_unix_ms / ?) * ? AS bucket_ms,
	                 AVG(level),
	                 AVG(confidence),
	                 COUNT(*)
	          FROM predictions
	          WHERE session_id = ?
	          GROUP BY bucket_ms
	          ORDER BY bucket_ms ASC`

	rows, err := db.Query(query, bucketMS, bucketMS, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query level series: %w", err)
	}
	defer rows.Close()

	var series []LevelBucket
	for rows.Next() {
		var b LevelBucket
		if err := rows.Scan(&b.BucketUnixMS, &b.MeanLevel, &b.MeanConfidence, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan level bucket: %w", err)
		}
		series = append(series, b)
	}

	return series, nil
}
