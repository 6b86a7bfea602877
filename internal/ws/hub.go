package ws

import (
	"sync"
)

// Hub is the room broadcast table: which live connections are subscribed to
// which chat. It performs no authorization itself; callers gate membership
// before Join. Subscriptions live in process memory only and die with the
// connection — there is no backlog, a late joiner never sees earlier emits.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client // chatID -> connID -> client
	conns map[string]*Client            // connID -> client
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[string]*Client),
		conns: make(map[string]*Client),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

// Join subscribes the connection to a chat's room.
func (h *Hub) Join(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID]; !ok {
		// dropped concurrently; do not resurrect
		return
	}
	room, ok := h.rooms[chatID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[chatID] = room
	}
	room[c.ID] = c
	c.joined[chatID] = struct{}{}
}

// Emit delivers payload to every connection currently in the room.
func (h *Hub) Emit(chatID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[chatID] {
		c.Send(payload)
	}
}

// Drop removes the connection from every room it joined and from the hub.
func (h *Hub) Drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for chatID := range c.joined {
		if room, ok := h.rooms[chatID]; ok {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	c.joined = make(map[string]struct{})
	delete(h.conns, c.ID)
}

// RoomSize reports the current subscriber count for a chat.
func (h *Hub) RoomSize(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}
