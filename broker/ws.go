package broker

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSBridge fans broker deliveries out to websocket watchers, the same
// register/unregister-channel hub shape as the teacher's
// control_plane/ws_hub.go MetricsHub, retargeted from a metrics-polling
// ticker to a Subscribe-driven event source.
type WSBridge struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewWSBridge subscribes to topic (WildcardTopic for every message) on b
// and starts the hub's dispatch loop.
func NewWSBridge(b *Broker, topic, subscriberID string) *WSBridge {
	hub := &WSBridge{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}

	b.Subscribe(topic, subscriberID, hub.broadcast, nil)
	go hub.run()
	return hub
}

func (h *WSBridge) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		}
	}
}

func (h *WSBridge) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("broker: websocket write error: %v", err)
			go h.Unregister(conn)
		}
	}
}

// Register adds a client connection to receive broadcasts.
func (h *WSBridge) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes a client connection.
func (h *WSBridge) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// ClientCount returns the number of connected clients.
func (h *WSBridge) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
