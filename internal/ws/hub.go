package ws

import (
	"fmt"
	"log"
	"sync"

	"github.com/printlink/print-platform/internal/chat"
)

// Hub owns room membership for every live connection of this process: one
// room per chat session plus one personal room per user for direct
// notifications. It implements chat.Broadcaster.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client // room id -> conn id -> client
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]*Client)}
}

func sessionRoom(sessionID string) string { return "chat_" + sessionID }

func userRoom(userID uint64, aud chat.Audience) string {
	return fmt.Sprintf("user_%s_%d", aud, userID)
}

func (h *Hub) join(roomID string, c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[roomID] = room
	}
	room[c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) leave(roomID string, c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[roomID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
}

// emit broadcasts an event to a room, optionally skipping one connection.
// Slow consumers have the frame dropped, never the room blocked.
func (h *Hub) emit(roomID, eventType string, payload any, exceptConnID string) {
	data, err := encodeEvent(eventType, payload)
	if err != nil {
		log.Printf("ws: encode %s: %v", eventType, err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.ID == exceptConnID {
			continue
		}
		if !c.enqueue(data) {
			log.Printf("ws: conn=%s send buffer full, dropping %s", c.ID, eventType)
		}
	}
}

// ToSession delivers an event to every subscriber of a session's room,
// including the sender's own other connections.
func (h *Hub) ToSession(sessionID, event string, payload any) {
	h.emit(sessionRoom(sessionID), event, payload, "")
}

// ToUser delivers an event to every connection in a user's personal room.
func (h *Hub) ToUser(userID uint64, aud chat.Audience, event string, payload any) {
	h.emit(userRoom(userID, aud), event, payload, "")
}
