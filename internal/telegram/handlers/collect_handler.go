package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/crowdcanvas/crowdcanvas/internal/database"
)

// NewCollectHandler returns the default handler that collects every plain
// text message into the pending queue. Commands are ignored; they have
// their own handlers.
func NewCollectHandler(deps HandlerDeps) bot.HandlerFunc {
	return collectHandler{deps}.Handle
}

type collectHandler struct {
	deps HandlerDeps
}

func (h collectHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "collect")

	if update.Message == nil || update.Message.From == nil {
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" || strings.HasPrefix(text, "/") {
		return
	}
	if update.Message.From.IsBot {
		log.DebugContext(ctx, "Ignoring message from bot", "user_id", update.Message.From.ID)
		return
	}

	message := &database.Message{
		ID:        uuid.NewString(),
		UserID:    update.Message.From.ID,
		Username:  update.Message.From.Username,
		FirstName: update.Message.From.FirstName,
		Source:    "telegram",
		Content:   text,
		Status:    database.MessageStatusPending,
		Timestamp: time.Unix(int64(update.Message.Date), 0).UTC(),
	}
	if message.Username == "" {
		message.Username = "user_" + uuid.NewString()[:8]
	}

	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.deps.Store.EnqueueMessage(saveCtx, message); err != nil {
		log.ErrorContext(ctx, "Failed to enqueue audience message", "error", err, "user_id", message.UserID)
		return
	}

	log.InfoContext(ctx, "Audience message collected",
		"message_id", message.ID,
		"user_id", message.UserID,
		"chat_id", update.Message.Chat.ID,
		"length", len(text))
}
