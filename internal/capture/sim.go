package capture

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/units"
)

// WavePhase is one segment of the synthetic activity programme.
type WavePhase struct {
	Label    string        // activity being imitated
	Duration time.Duration // how long the phase lasts
	StrideHz float64       // dominant step frequency, 0 for rest
	Amp      float64       // vertical oscillation amplitude, m/s^2
	Noise    float64       // gaussian jitter sigma, m/s^2
}

// DefaultPhases is a looping programme that walks the classifier through
// every label the demo bundle knows. Amplitudes approximate phone-in-
// pocket recordings: still phases read gravity plus jitter, moving
// phases add a stride oscillation.
func DefaultPhases() []WavePhase {
	return []WavePhase{
		{Label: "Sitting", Duration: 8 * time.Second, StrideHz: 0, Amp: 0, Noise: 0.03},
		{Label: "Standing", Duration: 6 * time.Second, StrideHz: 0, Amp: 0, Noise: 0.08},
		{Label: "Walking", Duration: 16 * time.Second, StrideHz: 1.8, Amp: 3.2, Noise: 0.4},
		{Label: "Jogging", Duration: 12 * time.Second, StrideHz: 2.6, Amp: 8.5, Noise: 1.1},
		{Label: "Upstairs", Duration: 8 * time.Second, StrideHz: 1.4, Amp: 4.6, Noise: 0.8},
		{Label: "Downstairs", Duration: 8 * time.Second, StrideHz: 1.5, Amp: 4.1, Noise: 0.7},
	}
}

// Waveform generates a synthetic accelerometer stream for testing and
// demos. The phone is imagined upright in a front pocket, so gravity
// rides the Y axis; walking bounces Y at the stride frequency with a
// quarter-phase lateral sway on X and a double-rate fore-aft component
// on Z for the two heel strikes per stride.
type Waveform struct {
	// Phases is the activity programme, looped forever. Replace it
	// before the first Next call to script a custom session.
	Phases []WavePhase

	rate       int
	tick       int64
	phase      int
	phaseStart int64
	rng        *rand.Rand
}

// NewWaveform creates a generator at the given sample rate. The same
// seed reproduces the same stream.
func NewWaveform(rateHz int, seed int64) *Waveform {
	if rateHz <= 0 {
		rateHz = 50
	}
	return &Waveform{
		Phases: DefaultPhases(),
		rate:   rateHz,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Phase reports the label of the activity currently being generated.
func (w *Waveform) Phase() string {
	return w.Phases[w.phase].Label
}

// Next produces the next sample, advancing the phase programme on
// duration boundaries.
func (w *Waveform) Next() har.Sample {
	p := w.Phases[w.phase]
	if float64(w.tick-w.phaseStart) >= p.Duration.Seconds()*float64(w.rate) {
		w.phase = (w.phase + 1) % len(w.Phases)
		w.phaseStart = w.tick
		p = w.Phases[w.phase]
	}

	t := float64(w.tick) / float64(w.rate)
	var x, y, z float64
	if p.StrideHz > 0 {
		omega := 2 * math.Pi * p.StrideHz * t
		y = p.Amp * math.Sin(omega)
		x = 0.5 * p.Amp * math.Sin(omega+math.Pi/2)
		z = 0.3 * p.Amp * math.Sin(2*omega)
	}

	s := har.Sample{
		X: x + w.rng.NormFloat64()*p.Noise,
		Y: units.StandardGravity + y + w.rng.NormFloat64()*p.Noise,
		Z: z + w.rng.NormFloat64()*p.Noise,
	}
	w.tick++
	return s
}

// SimSource runs a Waveform at its sample rate as a capture source. It
// backs the seeded "Built-in simulator" database row, the only source
// that produces data on hardware-free development machines.
type SimSource struct {
	name string
	rate int
	wave *Waveform
}

// NewSimSource builds a simulator source emitting at rateHz.
func NewSimSource(name string, rateHz int) *SimSource {
	if name == "" {
		name = "sim"
	}
	if rateHz <= 0 {
		rateHz = 50
	}
	return &SimSource{
		name: name,
		rate: rateHz,
		wave: NewWaveform(rateHz, time.Now().UnixNano()),
	}
}

// Name implements Source.
func (s *SimSource) Name() string { return s.name }

// Run implements Source, ticking out samples until the context ends.
func (s *SimSource) Run(ctx context.Context, emit func(har.Sample)) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			emit(s.wave.Next())
		}
	}
}
