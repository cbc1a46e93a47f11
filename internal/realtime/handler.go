package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens via the session cookie middleware before the
			// upgrade; origins are not restricted here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type trackMessage struct {
	Action  string `json:"action"`
	OrderID string `json:"order_id"`
}

// HandleWS upgrades the connection and serves track subscriptions. Clients
// send {"action":"track","order_id":...} to join an order's room and then
// receive that order's status events.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}

	go h.writePump(c)
	h.readLoop(c)
}

func (h *Handler) readLoop(c *client) {
	defer h.hub.remove(c)

	for {
		var msg trackMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		if msg.Action == "track" && msg.OrderID != "" {
			h.hub.track(c, msg.OrderID)
			h.logger.Info("client tracking order", "order_id", msg.OrderID)
		}
	}
}

func (h *Handler) writePump(c *client) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
