package har

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stride-data/activity.report/internal/timeutil"
)

// State tracks the pipeline lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateAssetsLoading
	StateAssetsFailed
	StateReady
	StatePredicting
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAssetsLoading:
		return "assets-loading"
	case StateAssetsFailed:
		return "assets-failed"
	case StateReady:
		return "ready"
	case StatePredicting:
		return "predicting"
	default:
		return "invalid"
	}
}

// PredictionResult is one classified window: the winning label, its
// probability, and the mapped 1-5 intensity level.
type PredictionResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Level      int     `json:"level"`
}

// Pipeline defaults.
const (
	// DefaultInferenceInterval is the minimum spacing between
	// inference starts.
	DefaultInferenceInterval = 800 * time.Millisecond

	// DefaultNotReadyInterval throttles "not ready" notices while
	// samples buffer without a loaded bundle.
	DefaultNotReadyInterval = 2 * time.Second
)

// PipelineConfig tunes a Pipeline. Zero values fall back to defaults.
type PipelineConfig struct {
	// WindowSize is the number of samples per inference window.
	// Default 200 (4 s at 50 Hz).
	WindowSize int

	// InferenceInterval is the minimum spacing between inference
	// starts. Default 800 ms.
	InferenceInterval time.Duration

	// NotReadyInterval throttles the "not ready" notice emitted while
	// samples arrive before assets are loaded. Default 2 s.
	NotReadyInterval time.Duration

	// Clock drives rate limiting and timing. Default RealClock.
	Clock timeutil.Clock

	// Sink receives status lines and prediction results. Default
	// NopSink.
	Sink Sink
}

// Pipeline owns the sample window and the classification state
// machine. AddSample is safe for concurrent use; at most one inference
// runs at a time.
type Pipeline struct {
	cfg PipelineConfig

	mu            sync.Mutex
	state         State
	window        *Window
	bundle        *AssetBundle
	lastInference time.Time
	lastNotice    time.Time

	samplesIn  uint64
	inferences uint64
	throttled  uint64
	failures   uint64
}

// NewPipeline builds a Pipeline in StateUninitialized. It accepts
// samples immediately; predictions start once LoadAssets succeeds.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.InferenceInterval <= 0 {
		cfg.InferenceInterval = DefaultInferenceInterval
	}
	if cfg.NotReadyInterval <= 0 {
		cfg.NotReadyInterval = DefaultNotReadyInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	return &Pipeline{
		cfg:    cfg,
		state:  StateUninitialized,
		window: NewWindow(cfg.WindowSize),
	}
}

// State reports the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats is a point-in-time counter snapshot for the status API.
type Stats struct {
	State      string `json:"state"`
	Model      string `json:"model,omitempty"`
	WindowLen  int    `json:"window_len"`
	WindowSize int    `json:"window_size"`
	SamplesIn  uint64 `json:"samples_in"`
	Inferences uint64 `json:"inferences"`
	Throttled  uint64 `json:"throttled"`
	Failures   uint64 `json:"failures"`
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{
		State:      p.state.String(),
		WindowLen:  p.window.Len(),
		WindowSize: p.window.Size(),
		SamplesIn:  p.samplesIn,
		Inferences: p.inferences,
		Throttled:  p.throttled,
		Failures:   p.failures,
	}
	if p.bundle != nil {
		st.Model = p.bundle.Classifier.Model()
	}
	return st
}

// ResetWindow discards buffered samples, typically at a session
// boundary so stale motion does not bleed into the next session.
func (p *Pipeline) ResetWindow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window.Reset()
}

// LoadAssets fetches the model bundle through loader and moves the
// pipeline to StateReady. Callable from StateUninitialized and, for
// operator-triggered retries, from StateAssetsFailed. Loading never
// blocks capture: AddSample keeps buffering while this runs.
func (p *Pipeline) LoadAssets(ctx context.Context, loader AssetLoader) error {
	p.mu.Lock()
	switch p.state {
	case StateUninitialized, StateAssetsFailed:
		p.state = StateAssetsLoading
	case StateAssetsLoading:
		p.mu.Unlock()
		return fmt.Errorf("asset load already in progress")
	default:
		// the bundle is immutable once loaded
		p.mu.Unlock()
		return fmt.Errorf("assets already loaded")
	}
	p.mu.Unlock()

	opsf("loading classifier assets")
	p.cfg.Sink.PublishStatus("loading classifier assets")

	bundle, err := loader.Load(ctx)
	if err != nil {
		p.mu.Lock()
		p.state = StateAssetsFailed
		p.mu.Unlock()
		opsf("asset load failed: %v", err)
		p.cfg.Sink.PublishStatus("classifier assets failed: " + err.Error())
		return err
	}
	if err := bundle.Validate(); err != nil {
		p.mu.Lock()
		p.state = StateAssetsFailed
		p.mu.Unlock()
		opsf("asset bundle invalid: %v", err)
		p.cfg.Sink.PublishStatus("classifier assets failed: " + err.Error())
		return err
	}

	p.mu.Lock()
	p.bundle = bundle
	p.state = StateReady
	p.mu.Unlock()
	opsf("assets loaded: model %s, %d labels", bundle.Classifier.Model(), len(bundle.Labels))
	p.cfg.Sink.PublishStatus("ready")
	return nil
}

// AddSample buffers one reading and starts an inference cycle when the
// pipeline is Ready, the window is full, and the rate limiter allows
// it. The inference runs on the calling goroutine outside the pipeline
// lock, so a slow classifier never stalls other callers: they observe
// StatePredicting, buffer their sample, and return.
func (p *Pipeline) AddSample(ctx context.Context, s Sample) {
	p.mu.Lock()
	p.window.Push(s)
	p.samplesIn++
	tracef("sample %d: x=%.3f y=%.3f z=%.3f (window %d/%d)",
		p.samplesIn, s.X, s.Y, s.Z, p.window.Len(), p.window.Size())

	switch p.state {
	case StateReady:
		// fall through to the inference gate below
	case StatePredicting:
		// single-flight: buffer only while an inference is running
		p.mu.Unlock()
		return
	default:
		notice := ""
		now := p.cfg.Clock.Now()
		if p.lastNotice.IsZero() || now.Sub(p.lastNotice) >= p.cfg.NotReadyInterval {
			p.lastNotice = now
			notice = "classifier not ready (" + p.state.String() + "); buffering samples"
		}
		p.mu.Unlock()
		if notice != "" {
			diagf("%s", notice)
			p.cfg.Sink.PublishStatus(notice)
		}
		return
	}

	if !p.window.Full() {
		p.mu.Unlock()
		return
	}
	now := p.cfg.Clock.Now()
	if !p.lastInference.IsZero() && now.Sub(p.lastInference) < p.cfg.InferenceInterval {
		p.throttled++
		p.mu.Unlock()
		return
	}
	p.lastInference = now
	p.state = StatePredicting
	snapshot := p.window.Snapshot()
	bundle := p.bundle
	p.mu.Unlock()

	p.runInference(ctx, snapshot, bundle)
}

// runInference executes one prediction cycle over a window snapshot.
// Every failure is absorbed here: the state returns to Ready, the sink
// hears about it, and the buffered window is untouched.
func (p *Pipeline) runInference(ctx context.Context, samples []Sample, bundle *AssetBundle) {
	start := p.cfg.Clock.Now()
	result, err := classifyWindow(ctx, samples, bundle)

	p.mu.Lock()
	p.state = StateReady
	if err != nil {
		p.failures++
	} else {
		p.inferences++
	}
	p.mu.Unlock()

	if err != nil {
		opsf("inference failed: %v", err)
		p.cfg.Sink.PublishStatus("prediction failed: " + err.Error())
		return
	}
	diagf("inference: %s conf=%.3f level=%d in %s",
		result.Label, result.Confidence, result.Level, p.cfg.Clock.Since(start))
	p.cfg.Sink.PublishResult(result)
}

var errEmptyDistribution = errors.New("classifier returned an empty distribution")

// classifyWindow runs the extract, standardize, classify, arg-max, map
// sequence over one window snapshot.
func classifyWindow(ctx context.Context, samples []Sample, bundle *AssetBundle) (PredictionResult, error) {
	if bundle == nil || bundle.Scaler == nil {
		return PredictionResult{}, &MissingScalerError{}
	}
	features, err := ExtractFeatures(samples)
	if err != nil {
		return PredictionResult{}, err
	}
	scaled, err := bundle.Scaler.Transform(features)
	if err != nil {
		return PredictionResult{}, err
	}
	dist, err := safePredict(ctx, bundle.Classifier, scaled[:])
	if err != nil {
		return PredictionResult{}, &PredictionRuntimeError{Err: err}
	}
	idx := ArgMax(dist)
	if idx < 0 {
		return PredictionResult{}, &PredictionRuntimeError{Err: errEmptyDistribution}
	}
	label := bundle.Labels.Label(idx)
	return PredictionResult{
		Label:      label,
		Confidence: clampConfidence(dist[idx], 0, 1),
		Level:      LevelForActivity(label),
	}, nil
}

// safePredict contains classifier panics; a misbehaving model
// implementation must not take down the sampling loop.
func safePredict(ctx context.Context, c Classifier, features []float64) (dist []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return c.Predict(ctx, features)
}

// clampConfidence bounds a probability into [min, max].
func clampConfidence(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
