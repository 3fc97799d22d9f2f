// Package live fans pipeline output to WebSocket dashboard clients and
// accepts accelerometer streams from phone clients. Every publish is
// serialized once and broadcast to all connections; a client that
// cannot keep up is dropped rather than allowed to stall the rest.
package live

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"sync/atomic"

	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
)

var _ har.Sink = (*Hub)(nil)

// Hub owns the client set and the broadcast queue. It implements
// har.Sink, so the pipeline and the capture controller publish into it
// directly.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*client]bool

	lastMu         sync.Mutex
	lastStatus     []byte
	lastPrediction []byte

	broadcasts atomic.Uint64
	dropped    atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. Run must be started on its own goroutine
// before connections are served.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*client]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run loops over registrations and broadcasts until Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("live: client %s connected (%d total)", c.id, n)
			h.sendBacklog(c)

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			h.broadcasts.Add(1)
			h.mu.RLock()
			var dead []*client
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					dead = append(dead, c)
				}
			}
			h.mu.RUnlock()
			// Dead clients are removed inline: a send to our own
			// unregister channel would deadlock this loop.
			for _, c := range dead {
				h.dropped.Add(1)
				h.drop(c)
			}
		}
	}
}

// Shutdown stops the run loop, which disconnects every client.
func (h *Hub) Shutdown() {
	h.cancel()
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats is a point-in-time hub snapshot for the status API.
type Stats struct {
	Clients    int    `json:"clients"`
	Broadcasts uint64 `json:"broadcasts"`
	Dropped    uint64 `json:"dropped"`
}

// Stats reports client and traffic counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{Clients: n, Broadcasts: h.broadcasts.Load(), Dropped: h.dropped.Load()}
}

// PublishStatus broadcasts an operator status line.
func (h *Hub) PublishStatus(status string) {
	msg := marshalMessage(statusMessage{Type: TypeStatus, Message: status, TS: nowMS()})
	h.lastMu.Lock()
	h.lastStatus = msg
	h.lastMu.Unlock()
	h.enqueue(msg)
}

// PublishResult broadcasts one classified window. Confidence goes out
// as an integer percent.
func (h *Hub) PublishResult(result har.PredictionResult) {
	msg := marshalMessage(predictionMessage{
		Type:       TypePrediction,
		Label:      result.Label,
		Confidence: int(math.Round(result.Confidence * 100)),
		Level:      result.Level,
		TS:         nowMS(),
	})
	h.lastMu.Lock()
	h.lastPrediction = msg
	h.lastMu.Unlock()
	h.enqueue(msg)
}

// PublishSample broadcasts one raw sample for live waveform views. The
// capture layer decimates before calling, so this runs well below the
// device rate.
func (h *Hub) PublishSample(s har.Sample) {
	h.enqueue(marshalMessage(sampleMessage{Type: TypeSample, X: s.X, Y: s.Y, Z: s.Z, TS: nowMS()}))
}

// enqueue hands a frame to the run loop without blocking the caller.
// Sinks are called from the sampling path, so a full queue drops the
// frame instead of stalling it.
func (h *Hub) enqueue(msg []byte) {
	if msg == nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
	}
}

// sendBacklog primes a new client with a welcome frame plus the most
// recent status and prediction, so a freshly opened dashboard paints
// current state without waiting for the next window.
func (h *Hub) sendBacklog(c *client) {
	c.trySend(marshalMessage(welcomeMessage{Type: TypeWelcome, ClientID: c.id, TS: nowMS()}))
	h.lastMu.Lock()
	status, prediction := h.lastStatus, h.lastPrediction
	h.lastMu.Unlock()
	c.trySend(status)
	c.trySend(prediction)
}

// drop removes a client and closes its send channel, which ends its
// writePump. Safe to call for a client already removed.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		monitoring.Logf("live: client %s disconnected (%d total)", c.id, len(h.clients))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func marshalMessage(v interface{}) []byte {
	msg, err := json.Marshal(v)
	if err != nil {
		monitoring.Logf("live: marshaling %T: %v", v, err)
		return nil
	}
	return msg
}
