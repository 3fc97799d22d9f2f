package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/stride-data/activity.report/internal/fsutil"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
	"github.com/stride-data/activity.report/internal/security"
	"github.com/stride-data/activity.report/internal/timeutil"
)

// Raw recording defaults.
const (
	DefaultRawDir       = "data/raw"
	DefaultRawBatchSize = 250
)

// rawFrame is one NDJSON line in a session recording: the arrival time
// in Unix milliseconds plus the three axes.
type rawFrame struct {
	T int64 `json:"t"`
	har.Sample
}

// RawRecorder streams raw accelerometer frames to one NDJSON file per
// capture session. Frames accumulate in a batch buffer and hit the file
// every batchSize records, so a 50 Hz stream costs a handful of writes
// per second. Record never returns an error: a broken disk must not
// stall the sampling path, so failures are logged and the frames lost.
type RawRecorder struct {
	fs    fsutil.FileSystem
	dir   string
	batch int
	clock timeutil.Clock

	mu      sync.Mutex
	w       io.WriteCloser
	buf     bytes.Buffer
	pending int
	path    string
	frames  uint64
}

// NewRawRecorder builds a recorder writing under dir. Zero values fall
// back to defaults; a nil fs writes to the real filesystem.
func NewRawRecorder(fsys fsutil.FileSystem, dir string, batchSize int, clock timeutil.Clock) *RawRecorder {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if dir == "" {
		dir = DefaultRawDir
	}
	if batchSize < 1 {
		batchSize = DefaultRawBatchSize
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RawRecorder{fs: fsys, dir: dir, batch: batchSize, clock: clock}
}

// Open starts a recording at <dir>/<sessionID>.ndjson, creating the
// directory if needed. An already-open recording is closed first. The
// file name is the sanitized session ID, so an ID arriving from outside
// the uuid generator cannot place the file anywhere but dir.
func (r *RawRecorder) Open(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w != nil {
		r.closeLocked()
	}
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating raw capture dir: %w", err)
	}
	path := filepath.Join(r.dir, security.SanitizeFilename(sessionID)+".ndjson")
	w, err := r.fs.Create(path)
	if err != nil {
		return fmt.Errorf("creating raw capture file: %w", err)
	}
	r.w = w
	r.path = path
	r.buf.Reset()
	r.pending = 0
	r.frames = 0
	return nil
}

// Record buffers one frame stamped with the current time. A no-op when
// no recording is open. Frames that cannot marshal (NaN axes from
// corrupt CSV input) are dropped.
func (r *RawRecorder) Record(s har.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return
	}
	line, err := json.Marshal(rawFrame{T: r.clock.Now().UnixMilli(), Sample: s})
	if err != nil {
		monitoring.Logf("capture: dropping unencodable raw frame: %v", err)
		return
	}
	r.buf.Write(line)
	r.buf.WriteByte('\n')
	r.frames++
	r.pending++
	if r.pending >= r.batch {
		r.flushLocked()
	}
}

// Close flushes the remaining batch and closes the session file.
// Closing a recorder that is not open is a no-op.
func (r *RawRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

// Path reports the file of the current (or most recent) recording.
func (r *RawRecorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Frames reports how many frames the current recording has accepted.
func (r *RawRecorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *RawRecorder) flushLocked() {
	if r.w == nil || r.buf.Len() == 0 {
		r.pending = 0
		return
	}
	if _, err := r.w.Write(r.buf.Bytes()); err != nil {
		monitoring.Logf("capture: raw write failed, %d frames lost: %v", r.pending, err)
	}
	r.buf.Reset()
	r.pending = 0
}

func (r *RawRecorder) closeLocked() error {
	if r.w == nil {
		return nil
	}
	r.flushLocked()
	err := r.w.Close()
	r.w = nil
	return err
}
