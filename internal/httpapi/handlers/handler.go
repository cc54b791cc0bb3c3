package handlers

import (
	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/config"
	"github.com/printlink/print-platform/internal/notify"
	"github.com/printlink/print-platform/internal/presence"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	ChatSvc  *chat.Service
	Registry *presence.Registry
	Tokens   *notify.TokenStore
}

func NewHandler(db *gorm.DB, cfg config.Config, chatSvc *chat.Service, registry *presence.Registry, tokens *notify.TokenStore) *Handler {
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		ChatSvc:  chatSvc,
		Registry: registry,
		Tokens:   tokens,
	}
}
