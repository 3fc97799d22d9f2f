package live

import (
	"context"
	"net/http"
	"time"

	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
)

// maxIngestMessageSize caps one inbound sample batch. A 200-sample
// batch is around 8 KB, so this leaves generous headroom.
const maxIngestMessageSize = 512 * 1024

// DefaultNoticeInterval throttles error frames back to an ingest
// client.
const DefaultNoticeInterval = 2 * time.Second

// IngestHandler upgrades phone connections that stream accelerometer
// frames over /ws/ingest. Each text frame is one JSON sample object or
// an array of them; decoded samples go to Push. Decode and gate
// failures are reported back as error frames, throttled so a phone
// streaming into a stopped session does not get fifty notices a
// second.
type IngestHandler struct {
	// Push receives each decoded batch. The API layer supplies the
	// capture controller here, behind its unit conversion.
	Push func(ctx context.Context, samples []har.Sample) error

	// NoticeInterval overrides the error-frame throttle. Zero means
	// DefaultNoticeInterval.
	NoticeInterval time.Duration
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("live: ingest upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	monitoring.Logf("live: ingest stream from %s", r.RemoteAddr)

	interval := h.NoticeInterval
	if interval <= 0 {
		interval = DefaultNoticeInterval
	}
	conn.SetReadLimit(maxIngestMessageSize)

	var lastNotice time.Time
	for {
		// A phone that goes silent for a minute is gone; it will
		// reconnect when it wakes.
		conn.SetReadDeadline(time.Now().Add(pongWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		samples, err := har.ParseFrameBatch(data)
		if err == nil {
			err = h.Push(r.Context(), samples)
		}
		if err == nil {
			continue
		}
		if time.Since(lastNotice) < interval {
			continue
		}
		lastNotice = time.Now()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(errorMessage{Type: TypeError, Error: err.Error(), TS: nowMS()})
	}
}
