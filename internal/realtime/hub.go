package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quenchlabs/beverage-api/internal/domain"
)

const (
	writeWait        = 10 * time.Second
	clientBufferSize = 16
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Hub fans order events out to WebSocket clients. Clients join a room per
// order id; a slow client has its message dropped rather than blocking the
// room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) track(c *client, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[orderID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	for orderID, room := range h.rooms {
		if _, ok := room[c]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, orderID)
			}
		}
	}
	h.mu.Unlock()
	c.close()
}

// PublishStatus broadcasts a status change to every client tracking the
// order. Non-blocking: full client buffers drop the message.
func (h *Hub) PublishStatus(orderID string, status domain.OrderStatus) {
	payload, err := json.Marshal(domain.OrderStatusEvent{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[orderID] {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// TrackerCount reports how many clients are tracking an order.
func (h *Hub) TrackerCount(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orderID])
}

// Close disconnects every client and rejects new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, room := range h.rooms {
		for c := range room {
			c.close()
		}
	}
	h.rooms = make(map[string]map[*client]struct{})
}
