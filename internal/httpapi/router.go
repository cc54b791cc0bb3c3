package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/auth"
	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/common"
	"github.com/printlink/print-platform/internal/config"
	"github.com/printlink/print-platform/internal/httpapi/handlers"
	"github.com/printlink/print-platform/internal/httpapi/middleware"
	"github.com/printlink/print-platform/internal/notify"
	"github.com/printlink/print-platform/internal/presence"
	"github.com/printlink/print-platform/internal/ws"
)

func NewRouter(db *gorm.DB, cfg config.Config, chatSvc *chat.Service, gateway *ws.Gateway, registry *presence.Registry, tokens *notify.TokenStore) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, chatSvc, registry, tokens)

	r.GET("/ping", h.Ping)

	// auth
	r.POST("/api/auth/login", h.Login)

	// Real-time connection gateway (credential validated before upgrade)
	r.GET("/ws/chat", gateway.Handle)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(cfg.JWTSecret))

	// payment / job lifecycle hooks
	api.POST("/payments/confirm", middleware.RequireRole(), h.ConfirmPayment)
	api.POST("/jobs/:job_id/finish", middleware.RequireRole(auth.RoleAgent), h.FinishJob)

	// chat (customer + agent; admin bypasses participant checks)
	chatGroup := api.Group("/chat")
	chatGroup.Use(middleware.RequireRole(auth.RoleCustomer, auth.RoleAgent))
	chatGroup.GET("/sessions", h.ListChatSessions)
	chatGroup.GET("/sessions/:session_id", h.GetChatSession)
	chatGroup.GET("/sessions/:session_id/messages", h.GetChatHistory)
	chatGroup.POST("/sessions/:session_id/messages", h.SendChatMessage)
	chatGroup.POST("/sessions/:session_id/complete", h.CompleteChatSession)
	chatGroup.GET("/sessions/:session_id/online", h.SessionOnlineUsers)
	chatGroup.GET("/jobs/:job_id/session", h.GetSessionByJob)
	chatGroup.GET("/unread-count", h.UnreadCount)

	// admin analytics
	api.GET("/chat/admin/statistics", middleware.RequireRole(auth.RoleAdmin), h.ChatStatistics)

	// push notification endpoints
	api.POST("/notifications/tokens", h.RegisterDeviceToken)
	api.DELETE("/notifications/tokens/:token", h.UnregisterDeviceToken)

	// account lifecycle
	api.DELETE("/account", h.DeleteAccount)

	return r
}
