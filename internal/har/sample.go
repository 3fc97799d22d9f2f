// Package har implements the human activity recognition pipeline:
// windowed accelerometer samples are reduced to a fixed feature vector,
// standardized, classified, and mapped to a 1-5 intensity level.
package har

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Sample is one triaxial accelerometer reading in m/s^2. Wire frames
// marshal as {"x":..,"y":..,"z":..}.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the 3-D vector magnitude of the reading.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// ParseFrame decodes a single JSON sample frame. Sparse frames are
// legal: a missing axis reads 0.0, and {} is the all-zero sample.
// Phone sensor bridges routinely drop axes that have not changed.
func ParseFrame(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return Sample{}, fmt.Errorf("decoding sample frame: %w", err)
	}
	return s, nil
}

// ParseFrameBatch decodes either one frame object or a JSON array of
// frames.
func ParseFrameBatch(data []byte) ([]Sample, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []Sample
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decoding sample batch: %w", err)
		}
		return batch, nil
	}
	s, err := ParseFrame(trimmed)
	if err != nil {
		return nil, err
	}
	return []Sample{s}, nil
}
