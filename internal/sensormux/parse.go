package sensormux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stride-data/activity.report/internal/har"
)

const (
	EventTypeSampleFrame = "sample_frame"
	EventTypeSampleBatch = "sample_batch"
	EventTypeDeviceInfo  = "device_info"
	EventTypeUnknown     = "unknown"
)

// ClassifyPayload inspects a payload string and returns a simple event type
// token. The classification is intentionally conservative: JSON arrays are
// batches, JSON objects carrying axis keys are sample frames, other JSON
// objects are device info responses, and bare triples are CSV sample frames.
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "[") {
		return EventTypeSampleBatch
	}
	if strings.HasPrefix(payload, "{") {
		if strings.Contains(payload, `"x"`) || strings.Contains(payload, `"y"`) || strings.Contains(payload, `"z"`) {
			return EventTypeSampleFrame
		}
		return EventTypeDeviceInfo
	}
	if strings.Count(payload, ",") == 2 {
		return EventTypeSampleFrame
	}
	return EventTypeUnknown
}

// ParseSampleLine converts one frame line into accelerometer samples.
// JSON objects decode as single frames, JSON arrays as batches, and
// bare x,y,z triples as CSV frames. Older pod firmware speaks only CSV.
func ParseSampleLine(line string) ([]har.Sample, error) {
	payload := strings.TrimSpace(line)
	if payload == "" {
		return nil, fmt.Errorf("empty sample line")
	}

	if strings.HasPrefix(payload, "{") || strings.HasPrefix(payload, "[") {
		return har.ParseFrameBatch([]byte(payload))
	}

	parts := strings.Split(payload, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected x,y,z triple, got %d fields", len(parts))
	}
	var axes [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing axis %d of %q: %w", i, payload, err)
		}
		axes[i] = v
	}
	return []har.Sample{{X: axes[0], Y: axes[1], Z: axes[2]}}, nil
}
