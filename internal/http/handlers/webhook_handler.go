package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateDispatcher принимает апдейт Telegram на асинхронную обработку.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, upd tgbotapi.Update)
}

// WebhookHandler принимает апдейты в режиме webhook.
// Адрес webhook содержит секрет, известный только Telegram.
type WebhookHandler struct {
	updates UpdateDispatcher
	secret  []byte
}

func NewWebhookHandler(updates UpdateDispatcher, secret string) *WebhookHandler {
	return &WebhookHandler{updates: updates, secret: []byte(secret)}
}

// Handle обрабатывает POST /telegram/webhook/:secret. Telegram повторяет доставку
// при любом ответе кроме 2xx, поэтому ответ отдаётся сразу.
func (h *WebhookHandler) Handle(c *gin.Context) {
	if len(h.secret) == 0 || subtle.ConstantTimeCompare([]byte(c.Param("secret")), h.secret) != 1 {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	var upd tgbotapi.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный апдейт"})
		return
	}

	h.updates.Dispatch(context.WithoutCancel(c.Request.Context()), upd)
	c.Status(http.StatusOK)
}
