package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"verdant/pkg/metrics"
)

// Client is one websocket subscriber.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan interface{}
	Done chan struct{}
	// StartupID limits delivery to one startup when set.
	StartupID *uint64
}

func (c *Client) wants(startupID uint64) bool {
	return c.StartupID == nil || *c.StartupID == startupID
}

// Hub tracks live subscribers and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// AddClient registers a connection under a fresh id.
func (h *Hub) AddClient(conn *websocket.Conn, startupID *uint64) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := &Client{
		ID:        uuid.NewString(),
		Conn:      conn,
		Send:      make(chan interface{}, 32),
		Done:      make(chan struct{}),
		StartupID: startupID,
	}
	h.clients[client.ID] = client
	metrics.EventSubscribers.Inc()
	return client
}

// RemoveClient unregisters a client. Removing twice is a no-op.
func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[id]; ok {
		close(client.Done)
		delete(h.clients, id)
		metrics.EventSubscribers.Dec()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues event for every matching client and returns how many
// accepted it. Clients with a full queue miss the event.
func (h *Hub) Broadcast(event Event) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.wants(event.StartupID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		select {
		case c.Send <- event:
			delivered++
		case <-c.Done:
		default:
		}
	}
	return delivered
}
