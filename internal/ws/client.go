package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/printlink/print-platform/internal/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Client is one authenticated WebSocket connection. Its identity is fixed at
// connect time; changing identity requires reconnecting.
type Client struct {
	ID       string
	UserID   uint64
	Audience chat.Audience
	Name     string

	conn *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	rooms map[string]struct{} // session rooms this connection joined
}

func newClient(id string, userID uint64, aud chat.Audience, name string, conn *websocket.Conn) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		Audience: aud,
		Name:     name,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[string]struct{}),
	}
}

func (c *Client) trackRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrackRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (c *Client) trackedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// enqueue hands a frame to the write pump; a full buffer drops the frame
// rather than blocking the broadcaster.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Emit marshals and queues one event for this connection only.
func (c *Client) Emit(eventType string, payload any) {
	data, err := encodeEvent(eventType, payload)
	if err != nil {
		log.Printf("ws: encode %s: %v", eventType, err)
		return
	}
	c.enqueue(data)
}

// readPump consumes frames until the connection dies, dispatching each event
// to handle. Runs on the request goroutine.
func (c *Client) readPump(handle func(*Client, Event)) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read conn=%s: %v", c.ID, err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.Emit(EvError, errorPayload{Kind: "invalid_input", Message: "malformed event"})
			continue
		}
		handle(c, ev)
	}
}

// writePump serializes all writes to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
