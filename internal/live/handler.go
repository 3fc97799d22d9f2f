package live

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/stride-data/activity.report/internal/monitoring"
)

// upgrader accepts any origin: the daemon serves the dashboard and the
// socket from the same LAN address, and phone clients connect with no
// Origin header at all.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades dashboard connections and registers them with the
// hub.
type Handler struct {
	hub *Hub
}

// NewHandler returns the /ws handler for hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.hub.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		monitoring.Logf("live: upgrade failed: %v", err)
		return
	}
	c := newClient(h.hub, conn)
	select {
	case h.hub.register <- c:
	case <-h.hub.ctx.Done():
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
