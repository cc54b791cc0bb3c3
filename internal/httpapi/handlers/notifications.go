package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printlink/print-platform/internal/common"
	"github.com/printlink/print-platform/internal/notify"
)

type registerTokenReq struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

// RegisterDeviceToken binds a push endpoint to the caller's identity.
func (h *Handler) RegisterDeviceToken(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok || id.Audience == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req registerTokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	dt, err := h.Tokens.Register(c.Request.Context(), id.UserID, string(id.Audience), req.Token, req.Platform)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"device_token": dt})
}

func (h *Handler) UnregisterDeviceToken(c *gin.Context) {
	if _, ok := identityFromContext(c); !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Tokens.Unregister(c.Request.Context(), c.Param("token")); err != nil {
		if errors.Is(err, notify.ErrTokenNotFound) {
			common.Fail(c, http.StatusNotFound, 40406, "device token not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"unregistered": true})
}
