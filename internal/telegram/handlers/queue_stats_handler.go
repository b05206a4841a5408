package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewQueueStatsHandler returns a handler for the admin /queue_stats command.
// It reports the queue depth and batch registry breakdown inline in chat.
func NewQueueStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return queueStatsHandler{deps}.Handle
}

type queueStatsHandler struct {
	deps HandlerDeps
}

func (h queueStatsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "queue_stats")

	if update.Message == nil {
		return
	}

	statsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stats, err := h.deps.Store.GetBatchStats(statsCtx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to get batch stats", "error", err)
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Failed to read statistics, try again later.",
		})
		return
	}

	text := fmt.Sprintf(
		"Queue: %d pending messages\nBatches: %d total\n  pending: %d\n  processing: %d\n  mixed: %d\n  generating: %d\n  completed: %d\n  failed: %d",
		stats.TotalMessages, stats.TotalBatches,
		stats.PendingBatches, stats.ProcessingBatches, stats.MixedBatches,
		stats.GeneratingBatches, stats.CompletedBatches, stats.FailedBatches,
	)

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: update.Message.Chat.ID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send stats message", "error", err, "chat_id", update.Message.Chat.ID)
	}
}
