package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Allow all origins; the service is deployed for trusted clients.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades requests to push connections and tracks them in the
// registry. Clients never send anything meaningful; the read pump exists to
// process control frames and notice disconnects.
type Handler struct {
	registry *Registry
	opts     ConnectionOptions
	log      *slog.Logger
}

func NewHandler(registry *Registry, opts ConnectionOptions, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		opts:     opts,
		log:      log,
	}
}

// HandleWebSocket serves GET /ws. Nothing is replayed on connect: clients
// read current state over REST, then rely on pushed snapshots.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	wsConn := NewConnection(conn, h.opts)
	conn.SetPongHandler(func(string) error {
		wsConn.MarkAlive()
		return nil
	})

	if err := h.registry.Add(wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		_ = wsConn.Close()
		return
	}
	h.log.Debug("Connection opened", "connection_id", wsConn.ID(), "remote", r.RemoteAddr)

	go h.readPump(wsConn)
}

func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.registry.Remove(conn)
		_ = conn.Close()
		h.log.Debug("Connection closed", "connection_id", conn.ID())
	}()

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("WebSocket read error", "connection_id", conn.ID(), "error", err)
			}
			return
		}
	}
}
