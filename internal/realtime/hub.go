// internal/realtime/hub.go

package realtime

import (
	"context"
	"log"
	"sync"
)

// Hub maintains active websocket connections for the in-app channel.
// A user may hold several connections at once (one per open device).
type Hub struct {
	clients    map[int64]map[*Client]bool
	clientsMux sync.RWMutex

	register   chan *Client
	unregister chan *Client

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *Hub) Run() {
	defer h.cleanup()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	log.Printf("User %d connected. Active connections: %d", client.userID, h.connectionCount())
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if conns, exists := h.clients[client.userID]; exists && conns[client] {
		client.close()
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.userID)
		}
		log.Printf("User %d disconnected. Active connections: %d", client.userID, h.connectionCount())
	}
}

// Publish sends a payload to every open connection of a user. Returns
// false when the user has no connections, so the caller can decide what
// offline means for its channel.
func (h *Hub) Publish(userID int64, payload []byte) bool {
	h.clientsMux.RLock()
	conns := h.clients[userID]
	delivered := false
	var stale []*Client
	for client := range conns {
		select {
		case client.send <- payload:
			delivered = true
		default:
			stale = append(stale, client)
		}
	}
	h.clientsMux.RUnlock()

	for _, client := range stale {
		h.unregisterClient(client)
	}
	return delivered
}

// IsUserOnline reports whether the user has at least one open connection
func (h *Hub) IsUserOnline(userID int64) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	_, exists := h.clients[userID]
	return exists
}

// GetActiveConnections returns the total connection count
func (h *Hub) GetActiveConnections() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return h.connectionCount()
}

// connectionCount must be called with clientsMux held
func (h *Hub) connectionCount() int {
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}

// Shutdown stops the event loop; cleanup closes any remaining clients,
// which unblocks their pumps.
func (h *Hub) Shutdown() {
	h.cancel()
}

func (h *Hub) cleanup() {
	h.clientsMux.Lock()
	for _, conns := range h.clients {
		for client := range conns {
			client.close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
	h.clientsMux.Unlock()
}
