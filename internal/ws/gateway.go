package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/printlink/print-platform/internal/auth"
	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/common"
	"github.com/printlink/print-platform/internal/presence"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway authenticates live connections and routes their events through the
// chat service. Each connection carries exactly one identity for its whole
// life.
type Gateway struct {
	hub       *Hub
	svc       *chat.Service
	registry  *presence.Registry
	names     chat.NameDirectory
	jwtSecret string
}

func NewGateway(hub *Hub, svc *chat.Service, registry *presence.Registry, names chat.NameDirectory, jwtSecret string) *Gateway {
	return &Gateway{
		hub:       hub,
		svc:       svc,
		registry:  registry,
		names:     names,
		jwtSecret: jwtSecret,
	}
}

// Handle is the HTTP entry point: credential check happens before the
// upgrade, so a bad token never becomes a socket.
func (g *Gateway) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h := c.GetHeader("Authorization")
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "authentication token required")
		return
	}

	claims, err := auth.ParseJWT(token, g.jwtSecret)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid authentication token")
		return
	}

	var aud chat.Audience
	switch claims.Role {
	case auth.RoleCustomer:
		aud = chat.AudienceCustomer
	case auth.RoleAgent:
		aud = chat.AudienceAgent
	default:
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid user type")
		return
	}

	name, err := g.resolveName(c.Request.Context(), claims.UserID, aud)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40104, "user not found")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := newClient(uuid.New().String(), claims.UserID, aud, name, conn)

	ctx := context.Background()
	userKey := presence.Key(string(aud), client.UserID)
	g.registry.Add(ctx, userKey, client.ID)
	g.hub.join(userRoom(client.UserID, aud), client)

	go client.writePump()
	client.readPump(g.handleEvent)
	g.disconnect(ctx, client, userKey)
}

func (g *Gateway) resolveName(ctx context.Context, userID uint64, aud chat.Audience) (string, error) {
	if aud == chat.AudienceAgent {
		return g.names.AgentName(ctx, userID)
	}
	return g.names.CustomerName(ctx, userID)
}

// disconnect tears down everything the connection touched: presence entry,
// room membership, and offline broadcasts to every session it had joined.
func (g *Gateway) disconnect(ctx context.Context, c *Client, userKey string) {
	for _, roomID := range c.trackedRooms() {
		g.hub.emit(roomID, EvUserOffline, presencePayload{UserID: c.UserID, UserKind: string(c.Audience)}, c.ID)
		g.hub.leave(roomID, c)
	}
	g.hub.leave(userRoom(c.UserID, c.Audience), c)
	g.registry.Remove(ctx, userKey, c.ID)
	// c.send is left open: writePump exits on the closed conn, and a late
	// broadcast that raced the teardown just drops its frame.
}

func (g *Gateway) handleEvent(c *Client, ev Event) {
	ctx := context.Background()

	switch ev.Type {
	case evJoinChat:
		var p sessionPayload
		if !decode(c, ev.Payload, &p) {
			return
		}
		g.joinChat(ctx, c, p.SessionID)

	case evLeaveChat:
		var p sessionPayload
		if !decode(c, ev.Payload, &p) {
			return
		}
		g.leaveChat(c, p.SessionID)

	case evSendMessage:
		var p sendPayload
		if !decode(c, ev.Payload, &p) {
			return
		}
		g.sendMessage(ctx, c, p)

	case evTypingStart, evTypingStop:
		var p sessionPayload
		if !decode(c, ev.Payload, &p) {
			return
		}
		g.hub.emit(sessionRoom(p.SessionID), EvUserTyping, typingPayload{
			UserID:   c.UserID,
			UserKind: string(c.Audience),
			IsTyping: ev.Type == evTypingStart,
		}, c.ID)

	case evMarkRead:
		var p sessionPayload
		if !decode(c, ev.Payload, &p) {
			return
		}
		g.markRead(ctx, c, p.SessionID)

	default:
		c.Emit(EvError, errorPayload{Kind: "invalid_input", Message: "unknown event type"})
	}
}

func decode(c *Client, raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		c.Emit(EvError, errorPayload{Kind: "invalid_input", Message: "malformed payload"})
		return false
	}
	return true
}

func (g *Gateway) joinChat(ctx context.Context, c *Client, sessionID string) {
	if _, err := g.svc.SessionForParticipant(ctx, sessionID, c.UserID, c.Audience); err != nil {
		g.emitError(c, err)
		return
	}

	if err := g.svc.MarkRead(ctx, sessionID, c.Audience); err != nil {
		g.emitError(c, err)
		return
	}

	room := sessionRoom(sessionID)
	g.hub.join(room, c)
	c.trackRoom(room)

	c.Emit(EvChatJoined, sessionPayload{SessionID: sessionID})
	g.hub.emit(room, EvUserOnline, presencePayload{UserID: c.UserID, UserKind: string(c.Audience)}, c.ID)
}

func (g *Gateway) leaveChat(c *Client, sessionID string) {
	room := sessionRoom(sessionID)
	g.hub.leave(room, c)
	c.untrackRoom(room)
	g.hub.emit(room, EvUserOffline, presencePayload{UserID: c.UserID, UserKind: string(c.Audience)}, c.ID)
}

// sendMessage delegates to the orchestrator, which handles persistence,
// room broadcast and the offline-notification fallback. Failures go back to
// the originating connection only.
func (g *Gateway) sendMessage(ctx context.Context, c *Client, p sendPayload) {
	sender := chat.SenderFor(c.Audience, c.UserID)
	if _, err := g.svc.SendMessage(ctx, p.SessionID, sender, p.Body, chat.MessageKind(p.Kind)); err != nil {
		g.emitError(c, err)
	}
}

func (g *Gateway) markRead(ctx context.Context, c *Client, sessionID string) {
	if _, err := g.svc.SessionForParticipant(ctx, sessionID, c.UserID, c.Audience); err != nil {
		g.emitError(c, err)
		return
	}
	if err := g.svc.MarkRead(ctx, sessionID, c.Audience); err != nil {
		g.emitError(c, err)
		return
	}
	g.hub.emit(sessionRoom(sessionID), EvMessagesRead, presencePayload{
		UserID:   c.UserID,
		UserKind: string(c.Audience),
	}, c.ID)
}

func (g *Gateway) emitError(c *Client, err error) {
	kind := "internal"
	switch {
	case errors.Is(err, chat.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, chat.ErrUnauthorized):
		kind = "unauthorized"
	case errors.Is(err, chat.ErrInvalidState):
		kind = "invalid_state"
	case errors.Is(err, chat.ErrInvalidInput):
		kind = "invalid_input"
	default:
		log.Printf("ws: conn=%s internal error: %v", c.ID, err)
		c.Emit(EvError, errorPayload{Kind: kind, Message: "internal error"})
		return
	}
	c.Emit(EvError, errorPayload{Kind: kind, Message: err.Error()})
}
