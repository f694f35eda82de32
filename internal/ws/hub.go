package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks active WebSocket connections keyed by user id and delivers
// push events to them. Delivery is best effort: polling over HTTP remains
// the source of truth for client state.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64]map[*websocket.Conn]*sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[int64]map[*websocket.Conn]*sync.Mutex),
	}
}

// Register adds a connection for the given user.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]*sync.Mutex)
	}
	h.conns[userID][conn] = &sync.Mutex{}
}

// Unregister removes a connection for the given user.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
}

// SendToUser pushes the payload to all active connections of one user.
// gorilla/websocket permits only one concurrent writer per connection, and
// the fanout workers push to the same recipient in parallel, so each write
// holds the connection's own mutex. Failed connections are closed; removal
// happens on the next Unregister.
func (h *Hub) SendToUser(userID int64, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, wmu := range h.conns[userID] {
		wmu.Lock()
		err := conn.WriteJSON(payload)
		wmu.Unlock()
		if err != nil {
			conn.Close()
		}
	}
}
