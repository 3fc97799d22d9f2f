package db

import (
	"path/filepath"
	"testing"
)

// newTestDB opens a fully migrated database in a temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// seedSession inserts a session row for tests.
func seedSession(t *testing.T, db *DB, id string, startedUnixMS int64) *Session {
	t.Helper()

	s := &Session{
		ID:            id,
		Source:        "test",
		StartedUnixMS: startedUnixMS,
	}
	if err := db.CreateSession(s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	return s
}

// seedPrediction inserts a prediction row for tests.
func seedPrediction(t *testing.T, db *DB, sessionID, label string, confidence float64, level int, recordedUnixMS int64) *Prediction {
	t.Helper()

	p := &Prediction{
		SessionID:      sessionID,
		Label:          label,
		Confidence:     confidence,
		Level:          level,
		RecordedUnixMS: recordedUnixMS,
	}
	if err := db.RecordPrediction(p); err != nil {
		t.Fatalf("RecordPrediction failed: %v", err)
	}

	return p
}

// tableExists reports whether a table is present in sqlite_master.
func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?`, name).Scan(&count)
	if err != nil {
		t.Fatalf("failed to check for table %s: %v", name, err)
	}
	return count > 0
}
