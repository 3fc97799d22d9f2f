package db

import (
	"sync"

	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
	"github.com/stride-data/activity.report/internal/timeutil"
)

// Recorder persists pipeline predictions, stamping each with the
// recording time and the currently active capture session. The capture
// controller swaps the session in and out around a run; with no
// session set, predictions are stored with an empty session ID.
type Recorder struct {
	db    *DB
	clock timeutil.Clock

	mu        sync.Mutex
	sessionID string
}

var _ har.Sink = (*Recorder)(nil)

// NewRecorder returns a Recorder writing to db. A nil clock uses wall
// time.
func NewRecorder(db *DB, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{db: db, clock: clock}
}

// SetSession sets the session predictions are stamped with. Pass ""
// when the session ends.
func (r *Recorder) SetSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

// Session returns the currently active session ID.
func (r *Recorder) Session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// PublishResult stores one classified window. Insert failures are
// logged rather than propagated; the pipeline must not stall on
// storage.
func (r *Recorder) PublishResult(result har.PredictionResult) {
	r.mu.Lock()
	session := r.sessionID
	r.mu.Unlock()

	p := &Prediction{
		SessionID:      session,
		Label:          result.Label,
		Confidence:     result.Confidence,
		Level:          result.Level,
		RecordedUnixMS: r.clock.Now().UnixMilli(),
	}
	if err := r.db.RecordPrediction(p); err != nil {
		monitoring.Logf("db: failed to record prediction: %v", err)
	}
}

// PublishStatus is a no-op: status notices are transient operator
// feedback carried by the live hub, not data worth persisting.
func (r *Recorder) PublishStatus(status string) {}
