package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/auth"
	"github.com/printlink/print-platform/internal/common"
	"github.com/printlink/print-platform/internal/models"
)

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// Login resolves an email/password pair for one of the two account kinds
// and issues a bearer token carrying identity and role.
func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var userID uint64
	var hash string
	switch req.Role {
	case auth.RoleCustomer:
		var u models.Customer
		if err := h.DB.Where("email = ?", req.Email).First(&u).Error; err != nil {
			failLogin(c, err)
			return
		}
		userID, hash = u.ID, u.PasswordHash
	case auth.RoleAgent:
		var u models.PrintAgent
		if err := h.DB.Where("email = ?", req.Email).First(&u).Error; err != nil {
			failLogin(c, err)
			return
		}
		userID, hash = u.ID, u.PasswordHash
	default:
		common.Fail(c, http.StatusBadRequest, 10007, "invalid role")
		return
	}

	if err := auth.CheckPassword(hash, req.Password); err != nil {
		common.Fail(c, http.StatusUnauthorized, 40105, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(userID, req.Role, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"id":    userID,
		"role":  req.Role,
		"token": token,
	})
}

func failLogin(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusUnauthorized, 40105, "invalid credentials")
		return
	}
	common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
}

// DeleteAccount removes the caller's account. Chat sessions, messages and
// device tokens go with it; print jobs are retained with the participant
// reference nulled.
func (h *Handler) DeleteAccount(c *gin.Context) {
	id, ok := identityFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var err error
	switch id.Role {
	case auth.RoleCustomer:
		err = models.DeleteCustomerAccount(h.DB.WithContext(c.Request.Context()), id.UserID)
	case auth.RoleAgent:
		err = models.DeleteAgentAccount(h.DB.WithContext(c.Request.Context()), id.UserID)
	default:
		common.Fail(c, http.StatusBadRequest, 10007, "invalid role")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"deleted": true})
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"status": "ok", "ts": time.Now().Unix()})
}
