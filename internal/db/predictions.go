package db

import (
	"fmt"
)

// Prediction is one classified window as stored. SessionID is empty
// for predictions made outside a capture session (ad-hoc API pushes).
type Prediction struct {
	ID             int64   `json:"id"`
	SessionID      string  `json:"session_id"`
	Label          string  `json:"label"`
	Confidence     float64 `json:"confidence"`
	Level          int     `json:"level"`
	RecordedUnixMS int64   `json:"recorded_unix_ms"`
}

// RecordPrediction inserts a prediction and fills in its row ID.
func (db *DB) RecordPrediction(p *Prediction) error {
	query := `INSERT INTO predictions (session_id, label, confidence, level, recorded_unix_ms)
	          VALUES (?, ?, ?, ?, ?)`

	result, err := db.Exec(query, p.SessionID, p.Label, p.Confidence, p.Level, p.RecordedUnixMS)
	if err != nil {
		return fmt.Errorf("failed to record prediction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	p.ID = id

	return nil
}

// ListPredictions returns a session's predictions in chronological
// order. A limit <= 0 returns all of them.
func (db *DB) ListPredictions(sessionID string, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT id, session_id, label, confidence, level, recorded_unix_ms
	          FROM predictions
	          WHERE session_id = ?
	          ORDER BY id ASC
	          LIMIT ?`

	rows, err := db.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var predictions []Prediction
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Label, &p.Confidence, &p.Level, &p.RecordedUnixMS); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}

	return predictions, nil
}

// RecentPredictions returns the newest predictions across all
// sessions, newest first. This feeds the live monitor view.
func (db *DB) RecentPredictions(limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, session_id, label, confidence, level, recorded_unix_ms
	          FROM predictions
	          ORDER BY id DESC
	          LIMIT ?`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent predictions: %w", err)
	}
	defer rows.Close()

	var predictions []Prediction
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Label, &p.Confidence, &p.Level, &p.RecordedUnixMS); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}

	return predictions, nil
}

// PredictionCount returns how many predictions a session holds.
func (db *DB) PredictionCount(sessionID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM predictions WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}
