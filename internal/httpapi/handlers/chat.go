package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printlink/print-platform/internal/auth"
	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/common"
	"github.com/printlink/print-platform/internal/httpapi/middleware"
	"github.com/printlink/print-platform/internal/presence"
)

type identity struct {
	UserID   uint64
	Role     string
	Audience chat.Audience
}

func identityFromContext(c *gin.Context) (identity, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return identity{}, false
	}
	uid, ok := v.(uint64)
	if !ok {
		return identity{}, false
	}
	role := c.GetString(middleware.UserRoleKey)

	id := identity{UserID: uid, Role: role}
	switch role {
	case auth.RoleCustomer:
		id.Audience = chat.AudienceCustomer
	case auth.RoleAgent:
		id.Audience = chat.AudienceAgent
	}
	return id, true
}

// failChat translates the chat error taxonomy into the response envelope.
// Not-found and unauthorized stay distinct so clients can tell "nothing
// here" from "you may not see this".
func failChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40404, "chat session not found")
	case errors.Is(err, chat.ErrUnauthorized):
		common.Fail(c, http.StatusForbidden, 40302, "unauthorized access to chat session")
	case errors.Is(err, chat.ErrInvalidState):
		common.Fail(c, http.StatusBadRequest, 40010, "chat session is no longer active")
	case errors.Is(err, chat.ErrInvalidInput):
		common.Fail(c, http.StatusBadRequest, 40011, "invalid message")
	default:
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

// ListChatSessions returns the caller's active sessions, most recently
// active first, each with its latest message.
func (h *Handler) ListChatSessions(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok || id.Audience == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessions, err := h.ChatSvc.ActiveSessionsFor(c.Request.Context(), id.UserID, id.Audience)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{
		"chats": sessions,
		"count": len(sessions),
	})
}

func (h *Handler) GetChatSession(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sessionID := c.Param("session_id")

	var session *chat.Session
	var err error
	if id.Role == auth.RoleAdmin {
		session, err = h.ChatSvc.Session(c.Request.Context(), sessionID)
	} else {
		session, err = h.ChatSvc.SessionForParticipant(c.Request.Context(), sessionID, id.UserID, id.Audience)
	}
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{"session": session})
}

// GetChatHistory returns one page of a session's messages in ascending
// chronological order, and marks everything read for the caller's audience.
func (h *Handler) GetChatHistory(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sessionID := c.Param("session_id")

	if id.Role != auth.RoleAdmin {
		if _, err := h.ChatSvc.SessionForParticipant(c.Request.Context(), sessionID, id.UserID, id.Audience); err != nil {
			failChat(c, err)
			return
		}
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, pagination, err := h.ChatSvc.History(c.Request.Context(), sessionID, page, pageSize)
	if err != nil {
		failChat(c, err)
		return
	}

	if id.Audience != "" {
		if err := h.ChatSvc.MarkRead(c.Request.Context(), sessionID, id.Audience); err != nil {
			failChat(c, err)
			return
		}
	}

	common.OK(c, gin.H{
		"messages":   msgs,
		"pagination": pagination,
	})
}

type sendMessageReq struct {
	Body string `json:"body" binding:"required"`
	Kind string `json:"kind"`
}

// SendChatMessage is the REST fallback for clients without a live socket.
// Delivery semantics match the WebSocket path: live subscribers still get
// the broadcast, offline participants the push.
func (h *Handler) SendChatMessage(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok || id.Audience == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sender := chat.SenderFor(id.Audience, id.UserID)
	msg, err := h.ChatSvc.SendMessage(c.Request.Context(), c.Param("session_id"), sender, req.Body, chat.MessageKind(req.Kind))
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{"message": msg})
}

// CompleteChatSession closes a session; only the owning agent may do it over
// this route.
func (h *Handler) CompleteChatSession(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sessionID := c.Param("session_id")

	by := chat.CompletedByAgent
	if id.Role == auth.RoleAdmin {
		by = chat.CompletedSystem
	} else {
		if _, err := h.ChatSvc.SessionForParticipant(c.Request.Context(), sessionID, id.UserID, chat.AudienceAgent); err != nil {
			failChat(c, err)
			return
		}
	}

	session, err := h.ChatSvc.CompleteSession(c.Request.Context(), sessionID, by)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{"session": session})
}

func (h *Handler) GetSessionByJob(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok || id.Audience == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	session, err := h.ChatSvc.SessionByJob(c.Request.Context(), c.Param("job_id"), id.UserID, id.Audience)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{"session": session})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok || id.Audience == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	total, perSession, err := h.ChatSvc.UnreadSummary(c.Request.Context(), id.UserID, id.Audience)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{
		"total_unread_count": total,
		"chat_unread_counts": perSession,
	})
}

// ChatStatistics is the admin aggregate over sessions created in a range.
func (h *Handler) ChatStatistics(c *gin.Context) {
	var from, to time.Time
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10005, "invalid start_date")
			return
		}
		from = t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10006, "invalid end_date")
			return
		}
		to = t
	}

	stats, err := h.ChatSvc.Statistics(c.Request.Context(), from, to)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, stats)
}

// SessionOnlineUsers reports which of a session's participants currently
// hold a live connection to this process.
func (h *Handler) SessionOnlineUsers(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sessionID := c.Param("session_id")

	var session *chat.Session
	var err error
	if id.Role == auth.RoleAdmin {
		session, err = h.ChatSvc.Session(c.Request.Context(), sessionID)
	} else {
		session, err = h.ChatSvc.SessionForParticipant(c.Request.Context(), sessionID, id.UserID, id.Audience)
	}
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{
		"customer_online": h.Registry.IsOnline(presence.Key(string(chat.AudienceCustomer), session.CustomerID)),
		"agent_online":    h.Registry.IsOnline(presence.Key(string(chat.AudienceAgent), session.AgentID)),
	})
}
