package sensormux

import (
	"io"
	"time"
)

// SensorPorter defines the minimal interface needed for a sensor serial port.
// This abstraction enables unit testing without real IMU hardware.
type SensorPorter interface {
	io.ReadWriter
	io.Closer
}

// SensorPortMode defines serial port configuration parameters.
type SensorPortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// Parity defines serial port parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits defines serial port stop bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// DefaultSensorPortMode returns the default mode for IMU breakout boards.
func DefaultSensorPortMode() *SensorPortMode {
	return &SensorPortMode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

// SensorPortFactory defines an interface for creating sensor ports.
// This abstraction enables dependency injection of port creation.
type SensorPortFactory interface {
	// Open opens a sensor port at the specified path with the given mode.
	Open(path string, mode *SensorPortMode) (SensorPorter, error)
}

// SensorPortOpener is a function type for opening sensor ports.
// This allows for easier testing by replacing the opener function.
type SensorPortOpener func(path string, mode *SensorPortMode) (SensorPorter, error)

// TimeoutSensorPorter extends SensorPorter with timeout capabilities.
// This is an optional interface that sensor ports may implement.
type TimeoutSensorPorter interface {
	SensorPorter
	// SetReadTimeout sets the read timeout for the sensor port.
	SetReadTimeout(timeout time.Duration) error
}
