package har

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/activity.report/internal/timeutil"
)

type recordingSink struct {
	mu       sync.Mutex
	statuses []string
	results  []PredictionResult
}

func (s *recordingSink) PublishStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) PublishResult(r PredictionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *recordingSink) snapshot() ([]string, []PredictionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...), append([]PredictionResult(nil), s.results...)
}

type staticLoader struct {
	bundle *AssetBundle
	err    error
}

func (l staticLoader) Load(context.Context) (*AssetBundle, error) { return l.bundle, l.err }

// testBundle builds a 3-class bundle whose Sitting row dominates for a
// still, gravity-only window.
func testBundle(t *testing.T) *AssetBundle {
	t.Helper()
	classifier, err := ParseSoftmaxClassifier([]byte(`{
		"model": "pipeline-test",
		"weights": [
			[0, 0, 0.5, -1, -1, -1, 0.2],
			[0, 0, 0, 0.5, 0.5, 0.5, 0],
			[0, 0, 0, 1, 1, 1, 0.5]
		],
		"bias": [0, 0, 0]
	}`))
	require.NoError(t, err)
	return &AssetBundle{
		Classifier: classifier,
		Scaler: &ScalerParams{
			Mean:  make([]float64, FeatureCount),
			Scale: []float64{1, 1, 1, 1, 1, 1, 1},
		},
		Labels: LabelSet{"Sitting", "Walking", "Jogging"},
	}
}

func newTestPipeline(t *testing.T, cfg PipelineConfig, loader AssetLoader) (*Pipeline, *recordingSink, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	cfg.Clock = clock
	cfg.Sink = sink
	p := NewPipeline(cfg)
	if loader != nil {
		require.NoError(t, p.LoadAssets(context.Background(), loader))
	}
	return p, sink, clock
}

func TestPipelineEndToEndStationaryWindow(t *testing.T) {
	p, sink, _ := newTestPipeline(t, PipelineConfig{}, staticLoader{bundle: testBundle(t)})

	ctx := context.Background()
	for i := 0; i < DefaultWindowSize; i++ {
		p.AddSample(ctx, Sample{X: 0, Y: 0, Z: 9.8})
	}

	_, results := sink.snapshot()
	require.Len(t, results, 1, "exactly one inference for one full window")
	r := results[0]
	assert.Equal(t, "Sitting", r.Label)
	assert.Equal(t, LevelSedentary, r.Level)
	assert.GreaterOrEqual(t, r.Confidence, 0.0)
	assert.LessOrEqual(t, r.Confidence, 1.0)
	assert.Equal(t, StateReady, p.State())

	stats := p.Stats()
	assert.Equal(t, uint64(DefaultWindowSize), stats.SamplesIn)
	assert.Equal(t, uint64(1), stats.Inferences)
	assert.Equal(t, "pipeline-test", stats.Model)
}

func TestPipelineNoInferenceBeforeWindowFull(t *testing.T) {
	p, sink, _ := newTestPipeline(t, PipelineConfig{WindowSize: 10}, staticLoader{bundle: testBundle(t)})
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	_, results := sink.snapshot()
	assert.Empty(t, results, "no inference on a partial window")

	p.AddSample(ctx, Sample{Z: 9.8})
	_, results = sink.snapshot()
	assert.Len(t, results, 1)
}

func TestPipelineRateLimit(t *testing.T) {
	p, sink, clock := newTestPipeline(t, PipelineConfig{WindowSize: 4}, staticLoader{bundle: testBundle(t)})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	_, results := sink.snapshot()
	require.Len(t, results, 1)

	// a full window arriving 100 ms later is inside the 800 ms limit
	clock.Advance(100 * time.Millisecond)
	p.AddSample(ctx, Sample{Z: 9.8})
	_, results = sink.snapshot()
	assert.Len(t, results, 1, "second inference suppressed inside the interval")
	assert.Equal(t, uint64(1), p.Stats().Throttled)

	// 900 ms after the first inference the limiter opens again
	clock.Advance(800 * time.Millisecond)
	p.AddSample(ctx, Sample{Z: 9.8})
	_, results = sink.snapshot()
	assert.Len(t, results, 2)
}

func TestPipelineCustomInferenceInterval(t *testing.T) {
	p, sink, clock := newTestPipeline(t,
		PipelineConfig{WindowSize: 4, InferenceInterval: 100 * time.Millisecond},
		staticLoader{bundle: testBundle(t)})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	clock.Advance(100 * time.Millisecond)
	p.AddSample(ctx, Sample{Z: 9.8})

	_, results := sink.snapshot()
	assert.Len(t, results, 2, "100 ms spacing allowed with a 100 ms interval")
}

func TestPipelineNotReadyNoticeThrottled(t *testing.T) {
	p, sink, clock := newTestPipeline(t, PipelineConfig{WindowSize: 4}, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	statuses, results := sink.snapshot()
	assert.Empty(t, results)
	require.Len(t, statuses, 1, "one notice per NotReadyInterval")
	assert.Contains(t, statuses[0], "not ready")

	clock.Advance(2 * time.Second)
	p.AddSample(ctx, Sample{Z: 9.8})
	statuses, _ = sink.snapshot()
	assert.Len(t, statuses, 2)

	// samples kept buffering the whole time
	assert.Equal(t, 4, p.Stats().WindowLen)
	assert.Equal(t, uint64(11), p.Stats().SamplesIn)
}

func TestPipelineAssetFailureAndRetry(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	p := NewPipeline(PipelineConfig{WindowSize: 4, Clock: clock, Sink: sink})
	ctx := context.Background()

	loadErr := &AssetLoadError{Asset: "model", Err: fmt.Errorf("corrupt bundle")}
	err := p.LoadAssets(ctx, staticLoader{err: loadErr})
	require.Error(t, err)
	assert.Equal(t, StateAssetsFailed, p.State())

	// capture is not blocked: samples buffer, inference is skipped
	for i := 0; i < 6; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	_, results := sink.snapshot()
	assert.Empty(t, results)
	assert.Equal(t, 4, p.Stats().WindowLen)
	assert.Equal(t, StateAssetsFailed, p.State(), "no automatic retry")

	// operator-triggered retry succeeds and predictions resume
	require.NoError(t, p.LoadAssets(ctx, staticLoader{bundle: testBundle(t)}))
	assert.Equal(t, StateReady, p.State())
	p.AddSample(ctx, Sample{Z: 9.8})
	_, results = sink.snapshot()
	assert.Len(t, results, 1)

	statuses, _ := sink.snapshot()
	joined := strings.Join(statuses, "\n")
	assert.Contains(t, joined, "classifier assets failed")
	assert.Contains(t, joined, "ready")
}

func TestPipelineAssetsImmutableOnceLoaded(t *testing.T) {
	p, _, _ := newTestPipeline(t, PipelineConfig{WindowSize: 4}, staticLoader{bundle: testBundle(t)})
	err := p.LoadAssets(context.Background(), staticLoader{bundle: testBundle(t)})
	require.Error(t, err)
	assert.Equal(t, StateReady, p.State())
}

type erroringClassifier struct{ err error }

func (c erroringClassifier) Predict(context.Context, []float64) ([]float64, error) {
	return nil, c.err
}
func (c erroringClassifier) Model() string { return "erroring" }

func TestPipelinePredictionFailureRecovers(t *testing.T) {
	bundle := testBundle(t)
	bundle.Classifier = erroringClassifier{err: fmt.Errorf("weights exploded")}
	p, sink, _ := newTestPipeline(t, PipelineConfig{WindowSize: 4}, staticLoader{bundle: bundle})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	statuses, results := sink.snapshot()
	assert.Empty(t, results)
	require.NotEmpty(t, statuses)
	assert.Contains(t, statuses[len(statuses)-1], "prediction failed")
	assert.Equal(t, StateReady, p.State(), "failure returns the pipeline to Ready")
	assert.Equal(t, 4, p.Stats().WindowLen, "window untouched by the failure")
	assert.Equal(t, uint64(1), p.Stats().Failures)
}

type panickyClassifier struct{}

func (panickyClassifier) Predict(context.Context, []float64) ([]float64, error) {
	panic("bad matrix")
}
func (panickyClassifier) Model() string { return "panicky" }

func TestPipelineClassifierPanicContained(t *testing.T) {
	bundle := testBundle(t)
	bundle.Classifier = panickyClassifier{}
	p, sink, _ := newTestPipeline(t, PipelineConfig{WindowSize: 4}, staticLoader{bundle: bundle})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	statuses, results := sink.snapshot()
	assert.Empty(t, results)
	require.NotEmpty(t, statuses)
	assert.Contains(t, statuses[len(statuses)-1], "classifier panic")
	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, uint64(1), p.Stats().Failures)
}

type fixedDistClassifier struct{ dist []float64 }

func (c fixedDistClassifier) Predict(context.Context, []float64) ([]float64, error) {
	return c.dist, nil
}
func (c fixedDistClassifier) Model() string { return "fixed" }

func TestPipelineEmptyDistributionIsFailure(t *testing.T) {
	bundle := testBundle(t)
	bundle.Classifier = fixedDistClassifier{dist: []float64{}}
	p, sink, _ := newTestPipeline(t, PipelineConfig{WindowSize: 4}, staticLoader{bundle: bundle})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	statuses, results := sink.snapshot()
	assert.Empty(t, results)
	require.NotEmpty(t, statuses)
	assert.Contains(t, statuses[len(statuses)-1], "empty distribution")
}

func TestPipelineUnknownLabelSentinel(t *testing.T) {
	bundle := testBundle(t)
	// distribution wider than the label set, winner out of range
	bundle.Classifier = fixedDistClassifier{dist: []float64{0.1, 0.2, 0.1, 0.6}}
	bundle.Labels = LabelSet{"Sitting", "Walking"}
	p, sink, _ := newTestPipeline(t, PipelineConfig{WindowSize: 4}, staticLoader{bundle: bundle})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	_, results := sink.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, UnknownLabel, results[0].Label)
	assert.Equal(t, LevelModerate, results[0].Level)
	assert.InDelta(t, 0.6, results[0].Confidence, 1e-12)
}

func TestPipelineConfidenceClamped(t *testing.T) {
	bundle := testBundle(t)
	// a sloppy classifier can emit values outside [0,1]
	bundle.Classifier = fixedDistClassifier{dist: []float64{1.2, -0.1, 0.3}}
	p, sink, _ := newTestPipeline(t, PipelineConfig{WindowSize: 4}, staticLoader{bundle: bundle})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	_, results := sink.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Confidence)
}

type blockingClassifier struct {
	started  chan struct{}
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (c *blockingClassifier) Predict(context.Context, []float64) ([]float64, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		old := c.maxSeen.Load()
		if n <= old || c.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	select {
	case c.started <- struct{}{}:
	default:
	}
	<-c.release
	return []float64{1, 0, 0}, nil
}
func (c *blockingClassifier) Model() string { return "blocking" }

func TestPipelineSingleFlight(t *testing.T) {
	bundle := testBundle(t)
	bc := &blockingClassifier{started: make(chan struct{}, 1), release: make(chan struct{})}
	bundle.Classifier = bc
	p, sink, _ := newTestPipeline(t, PipelineConfig{WindowSize: 8}, staticLoader{bundle: bundle})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p.AddSample(ctx, Sample{Z: 9.8})
			}
		}()
	}

	// one inference is now in flight; bursts may only buffer
	<-bc.started
	for i := 0; i < 100; i++ {
		p.AddSample(ctx, Sample{Z: 9.8})
	}
	close(bc.release)
	wg.Wait()

	assert.Equal(t, int32(1), bc.maxSeen.Load(), "no concurrent prediction")
	_, results := sink.snapshot()
	assert.Len(t, results, 1)
}

func TestPipelineResetWindow(t *testing.T) {
	p, _, _ := newTestPipeline(t, PipelineConfig{WindowSize: 4}, nil)
	ctx := context.Background()
	p.AddSample(ctx, Sample{Z: 9.8})
	p.AddSample(ctx, Sample{Z: 9.8})
	require.Equal(t, 2, p.Stats().WindowLen)

	p.ResetWindow()
	assert.Equal(t, 0, p.Stats().WindowLen)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "assets-loading", StateAssetsLoading.String())
	assert.Equal(t, "assets-failed", StateAssetsFailed.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "predicting", StatePredicting.String())
	assert.Equal(t, "invalid", State(99).String())
}
