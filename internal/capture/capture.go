// Package capture owns the recording session lifecycle: it starts the
// configured sample sources, routes their frames into the
// classification pipeline, gates push ingest from phones, and keeps the
// session bookkeeping (database rows, raw NDJSON recordings) straight.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/fsutil"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
	"github.com/stride-data/activity.report/internal/timeutil"
)

// ErrNotCapturing is returned by Push while no session is running.
var ErrNotCapturing = errors.New("no capture session is running")

// Config wires a Controller. Pipeline must be non-nil; everything else
// is optional, with zero values falling back to defaults.
type Config struct {
	// Pipeline receives every ingested sample.
	Pipeline *har.Pipeline

	// DB persists session rows and provides the source configuration.
	// A nil DB runs sessions without persistence or wired sources.
	DB *db.DB

	// Recorder, when set, is retargeted at each session so stored
	// predictions carry the right session ID.
	Recorder *db.Recorder

	// Sink hears session status changes (started, stopped, source
	// failures). Default NopSink.
	Sink har.Sink

	// Clock stamps sessions and raw frames. Default RealClock.
	Clock timeutil.Clock

	// BuildSource turns enabled source rows into runnable sources.
	// Default DefaultSourceBuilder, which knows serial and sim.
	BuildSource SourceBuilder

	// SampleRateHz is the rate simulator sources emit at. Default 50.
	SampleRateHz int

	// RecordRaw enables NDJSON recording of every ingested frame.
	RecordRaw bool

	// RawDir is where session recordings land. Default "data/raw".
	RawDir string

	// RawBatchSize is the flush threshold for raw recording. Default 250.
	RawBatchSize int

	// FS backs the raw recorder. Default the real filesystem.
	FS fsutil.FileSystem

	// SampleSink, when set, receives every SampleEvery-th ingested
	// sample. The live hub uses it to show raw motion without
	// shipping the full 50 Hz stream to browsers.
	SampleSink func(har.Sample)

	// SampleEvery is the SampleSink decimation factor. Default 5.
	SampleEvery int
}

// Controller runs capture sessions. Start and Stop are idempotent;
// Push and the source goroutines may ingest concurrently.
type Controller struct {
	cfg Config
	raw *RawRecorder

	mu          sync.RWMutex
	running     bool
	sessionID   string
	startedMS   int64
	sourceNames []string
	cancel      context.CancelFunc
	wg          *sync.WaitGroup

	samples        atomic.Uint64
	sourceFailures atomic.Uint64
}

// NewController builds a Controller around a pipeline.
func NewController(cfg Config) *Controller {
	if cfg.Sink == nil {
		cfg.Sink = har.NopSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 50
	}
	if cfg.SampleEvery <= 0 {
		cfg.SampleEvery = 5
	}
	if cfg.BuildSource == nil {
		cfg.BuildSource = DefaultSourceBuilder(cfg.SampleRateHz)
	}
	c := &Controller{cfg: cfg}
	if cfg.RecordRaw {
		c.raw = NewRawRecorder(cfg.FS, cfg.RawDir, cfg.RawBatchSize, cfg.Clock)
	}
	return c
}

// Start opens a capture session: a fresh session row, a clean window,
// the raw recording, and one goroutine per enabled source. Starting a
// running controller returns the current session ID. Sources outlive
// the caller; Stop ends them.
func (c *Controller) Start() (string, error) {
	c.mu.Lock()
	if c.running {
		id := c.sessionID
		c.mu.Unlock()
		return id, nil
	}

	id := uuid.NewString()
	sources, names := c.buildSources()
	startedMS := c.cfg.Clock.Now().UnixMilli()

	if c.cfg.DB != nil {
		origin := strings.Join(names, ",")
		if origin == "" {
			origin = "push"
		}
		sess := &db.Session{ID: id, Source: origin, StartedUnixMS: startedMS}
		if err := c.cfg.DB.CreateSession(sess); err != nil {
			c.mu.Unlock()
			return "", fmt.Errorf("creating capture session: %w", err)
		}
	}

	if c.raw != nil {
		if err := c.raw.Open(id); err != nil {
			// storage trouble must not block the session itself
			monitoring.Logf("capture: raw recording disabled for session %s: %v", id, err)
		}
	}
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.SetSession(id)
	}
	c.cfg.Pipeline.ResetWindow()

	runCtx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	c.cancel, c.wg = cancel, wg
	c.sessionID, c.startedMS, c.sourceNames = id, startedMS, names
	c.samples.Store(0)
	c.sourceFailures.Store(0)
	c.running = true

	for _, src := range sources {
		wg.Add(1)
		go c.runSource(runCtx, wg, src)
	}
	c.mu.Unlock()

	monitoring.Logf("capture: session %s started (%d sources)", id, len(sources))
	c.cfg.Sink.PublishStatus("capture started")
	return id, nil
}

// Stop ends the running session: sources drain, the raw recording
// flushes, the recorder detaches, and the session row gets its end
// time. Stopping a stopped controller returns an empty ID. A returned
// error means only that the end time could not be persisted; capture
// has stopped regardless.
func (c *Controller) Stop() (string, error) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return "", nil
	}
	id := c.sessionID
	cancel, wg := c.cancel, c.wg
	c.running = false
	c.mu.Unlock()

	cancel()
	wg.Wait()

	if c.raw != nil {
		if err := c.raw.Close(); err != nil {
			monitoring.Logf("capture: closing raw recording: %v", err)
		}
	}
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.SetSession("")
	}
	// stale motion must not bleed into the next session
	c.cfg.Pipeline.ResetWindow()

	var err error
	if c.cfg.DB != nil {
		if e := c.cfg.DB.EndSession(id, c.cfg.Clock.Now().UnixMilli()); e != nil {
			err = fmt.Errorf("ending capture session: %w", e)
		}
	}

	monitoring.Logf("capture: session %s stopped (%d samples)", id, c.samples.Load())
	c.cfg.Sink.PublishStatus("capture stopped")
	return id, err
}

// Push ingests a batch of samples from the HTTP or WebSocket boundary.
// Rejected with ErrNotCapturing while no session runs, so phones learn
// to start one first.
func (c *Controller) Push(ctx context.Context, samples []har.Sample) error {
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return ErrNotCapturing
	}
	for _, s := range samples {
		c.ingest(ctx, s)
	}
	return nil
}

// Running reports whether a session is active.
func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// SessionID reports the active session, or "" when stopped.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running {
		return ""
	}
	return c.sessionID
}

// Status is a point-in-time snapshot for the status API.
type Status struct {
	Running        bool     `json:"running"`
	SessionID      string   `json:"session_id,omitempty"`
	StartedUnixMS  int64    `json:"started_unix_ms,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	SamplesIn      uint64   `json:"samples_in"`
	SourceFailures uint64   `json:"source_failures,omitempty"`
	RawPath        string   `json:"raw_path,omitempty"`
	RawFrames      uint64   `json:"raw_frames,omitempty"`
}

// Status returns a snapshot of the session counters.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{
		Running:        c.running,
		SamplesIn:      c.samples.Load(),
		SourceFailures: c.sourceFailures.Load(),
	}
	if c.running {
		st.SessionID = c.sessionID
		st.StartedUnixMS = c.startedMS
		st.Sources = append([]string(nil), c.sourceNames...)
	}
	if c.raw != nil {
		st.RawPath = c.raw.Path()
		st.RawFrames = c.raw.Frames()
	}
	return st
}

// buildSources resolves the enabled source rows into runnable sources.
// Rows that cannot build are skipped with a log line rather than
// failing the whole session; capture without sources still serves push
// ingest.
func (c *Controller) buildSources() ([]Source, []string) {
	if c.cfg.DB == nil {
		return nil, nil
	}
	cfgs, err := c.cfg.DB.GetEnabledSourceConfigs()
	if err != nil {
		monitoring.Logf("capture: loading source configs: %v", err)
		return nil, nil
	}
	var sources []Source
	var names []string
	for _, sc := range cfgs {
		src, err := c.cfg.BuildSource(sc)
		if err != nil {
			monitoring.Logf("capture: skipping source %s: %v", sc.Name, err)
			continue
		}
		sources = append(sources, src)
		names = append(names, src.Name())
	}
	return sources, names
}

func (c *Controller) runSource(ctx context.Context, wg *sync.WaitGroup, src Source) {
	defer wg.Done()

	err := src.Run(ctx, func(s har.Sample) { c.ingest(ctx, s) })
	if err == nil || errors.Is(err, context.Canceled) {
		monitoring.Logf("capture: source %s stopped", src.Name())
		return
	}

	c.sourceFailures.Add(1)
	monitoring.Logf("capture: source %s failed: %v", src.Name(), err)
	var denied *har.PermissionDeniedError
	if errors.As(err, &denied) {
		c.cfg.Sink.PublishStatus(denied.Error())
		return
	}
	c.cfg.Sink.PublishStatus("source " + src.Name() + " failed: " + err.Error())
}

// ingest routes one frame to the pipeline, the raw recording, and the
// decimated live feed. Samples from a cancelled session context are
// dropped so a draining source cannot write into the next session.
func (c *Controller) ingest(ctx context.Context, s har.Sample) {
	if ctx.Err() != nil {
		return
	}
	n := c.samples.Add(1)
	c.cfg.Pipeline.AddSample(ctx, s)
	if c.raw != nil {
		c.raw.Record(s)
	}
	if c.cfg.SampleSink != nil && n%uint64(c.cfg.SampleEvery) == 0 {
		c.cfg.SampleSink(s)
	}
}
