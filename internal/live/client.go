package live

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stride-data/activity.report/internal/monitoring"
)

const (
	// writeWait bounds a single frame write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long a silent peer stays connected. Pings go
	// out every pingPeriod, which must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound dashboard frames. Dashboards are
	// read-only, so anything beyond control frames is abuse.
	maxMessageSize = 1024

	// sendBufferSize is the per-client outbound queue. Samples at
	// 10 Hz plus a prediction a second is ~11 frames/s, so 256 buys a
	// slow client about 20 s before it is dropped as dead.
	sendBufferSize = 256
)

var newline = []byte{'\n'}

// client is one dashboard connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		id:   uuid.NewString(),
	}
}

// trySend queues a frame, dropping it if the client is behind. Run
// loop use only: the send channel must still be open.
func (c *client) trySend(msg []byte) {
	if msg == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump discards inbound frames and serves as the connection's
// liveness check. Commands go through the REST API, not the socket.
func (c *client) readPump() {
	defer func() {
		c.unregister()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				monitoring.Logf("live: client %s read error: %v", c.id, err)
			}
			return
		}
	}
}

func (c *client) unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.ctx.Done():
	}
}

// writePump drains the send queue to the connection and keeps it alive
// with pings. It exits when the hub closes the queue or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			// Fold whatever else is queued into the same frame,
			// newline separated.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
