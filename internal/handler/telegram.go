package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quricedev/alice-ai/internal/bot"
)

type TelegramHandler struct {
	bot *bot.Bot
}

func NewTelegramHandler(b *bot.Bot) *TelegramHandler {
	return &TelegramHandler{bot: b}
}

// Webhook ingests Telegram updates. The endpoint acknowledges with 200
// once the payload is handed to the dispatcher, regardless of the
// downstream outcome; Telegram retries non-200 responses.
func (h *TelegramHandler) Webhook(c *gin.Context) {
	var update bot.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.String(http.StatusOK, "OK")
		return
	}

	h.bot.HandleUpdate(c.Request.Context(), &update)

	c.String(http.StatusOK, "OK")
}
