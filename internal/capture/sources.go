package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"

	"go.bug.st/serial"

	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
	"github.com/stride-data/activity.report/internal/sensormux"
)

// Source produces accelerometer samples for the duration of a capture
// session. Run blocks until the context ends or the source fails,
// delivering every decoded sample through emit.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(har.Sample)) error
}

// SourceBuilder turns an enabled source row into a runnable Source.
type SourceBuilder func(cfg db.SourceConfig) (Source, error)

// DefaultSourceBuilder handles the serial and sim kinds. The wiring
// layer wraps it to add transports this package cannot see, such as
// MQTT subscriptions.
func DefaultSourceBuilder(rateHz int) SourceBuilder {
	return func(cfg db.SourceConfig) (Source, error) {
		switch cfg.Kind {
		case db.SourceKindSerial:
			return NewSerialSource(cfg), nil
		case db.SourceKindSim:
			return NewSimSource(cfg.Name, rateHz), nil
		default:
			return nil, fmt.Errorf("no builder for source kind %q", cfg.Kind)
		}
	}
}

// parse failures are counted per source and logged on this cadence so a
// wedged device does not flood the log at 50 Hz.
const parseFailureLogEvery = 250

// SerialSource reads frame lines from a wired IMU pod through a sensor
// mux. The port opens lazily in Run, so a missing or locked device
// surfaces as a session status message rather than a failed build.
type SerialSource struct {
	cfg           db.SourceConfig
	openMux       func() (sensormux.SensorMuxInterface, error)
	parseFailures atomic.Uint64
}

// NewSerialSource builds a source for one serial source row.
func NewSerialSource(cfg db.SourceConfig) *SerialSource {
	s := &SerialSource{cfg: cfg}
	s.openMux = s.openRealMux
	return s
}

// Name implements Source.
func (s *SerialSource) Name() string {
	if s.cfg.Name != "" {
		return s.cfg.Name
	}
	return s.cfg.PortPath
}

func (s *SerialSource) openRealMux() (sensormux.SensorMuxInterface, error) {
	opts := sensormux.PortOptions{
		BaudRate: s.cfg.BaudRate,
		DataBits: s.cfg.DataBits,
		StopBits: s.cfg.StopBits,
		Parity:   s.cfg.Parity,
	}
	mux, err := sensormux.NewRealSensorMux(s.cfg.PortPath, opts)
	if err != nil {
		return nil, wrapOpenErr(s.cfg.PortPath, err)
	}
	return mux, nil
}

// Run implements Source: open the port, run the IMU handshake, then
// decode frame lines until the context ends.
func (s *SerialSource) Run(ctx context.Context, emit func(har.Sample)) error {
	mux, err := s.openMux()
	if err != nil {
		return err
	}
	defer mux.Close()

	if err := mux.Initialize(); err != nil {
		return fmt.Errorf("initializing %s: %w", s.Name(), err)
	}

	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	monitorErr := make(chan error, 1)
	go func() { monitorErr <- mux.Monitor(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-monitorErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s.handleLine(line, emit)
		}
	}
}

func (s *SerialSource) handleLine(line string, emit func(har.Sample)) {
	switch sensormux.ClassifyPayload(line) {
	case sensormux.EventTypeSampleFrame, sensormux.EventTypeSampleBatch:
		samples, err := sensormux.ParseSampleLine(line)
		if err != nil {
			if n := s.parseFailures.Add(1); n == 1 || n%parseFailureLogEvery == 0 {
				monitoring.Logf("capture: %s: %d unparseable frames (latest: %v)", s.Name(), n, err)
			}
			return
		}
		for _, sample := range samples {
			emit(sample)
		}
	case sensormux.EventTypeDeviceInfo:
		if err := sensormux.HandleDeviceInfo(line); err != nil {
			monitoring.Logf("capture: %s: bad device info line: %v", s.Name(), err)
		}
	default:
		// boot banners and command echoes pass through the tail
		// stream but carry no samples
	}
}

// wrapOpenErr maps access-refused port opens onto the error the status
// surface reports, leaving everything else untouched.
func wrapOpenErr(source string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PermissionDenied {
		return &har.PermissionDeniedError{Source: source, Err: err}
	}
	if errors.Is(err, fs.ErrPermission) {
		return &har.PermissionDeniedError{Source: source, Err: err}
	}
	return err
}
