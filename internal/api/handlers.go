package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crowdcanvas/crowdcanvas/internal/database"
)

// nowMillis returns the unix-millisecond timestamp every response envelope carries.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	s.logger.Error("Admin command failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(status, gin.H{
		"success":   false,
		"error":     err.Error(),
		"timestamp": nowMillis(),
	})
}

// queueAddRequest is the admin backdoor for enqueueing a message outside of
// Telegram (load tests, the Mini App relay, manual seeding).
type queueAddRequest struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	Message   string `json:"message" binding:"required"`
	Source    string `json:"source"`
}

// QueueAdd enqueues one message into the pending queue.
func (s *Server) QueueAdd(c *gin.Context) {
	var req queueAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if req.Source == "" {
		req.Source = "admin"
	}
	if req.Username == "" {
		req.Username = fmt.Sprintf("user_%d", req.UserID)
	}
	if req.FirstName == "" {
		req.FirstName = "Unknown"
	}

	message := &database.Message{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
		Source:    req.Source,
		Content:   req.Message,
		Status:    database.MessageStatusPending,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.EnqueueMessage(c.Request.Context(), message); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message_id": message.ID,
		"timestamp":  nowMillis(),
	})
}

// QueueStats reports the pending queue depth and the configured batch size.
func (s *Server) QueueStats(c *gin.Context) {
	pending, err := s.store.CountPendingMessages(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"pending_messages": pending,
			"batch_size":       s.assembler.BatchSize(),
		},
		"timestamp": nowMillis(),
	})
}

// CreateBatches forces batch assembly from the accumulated queue.
func (s *Server) CreateBatches(c *gin.Context) {
	created, err := s.assembler.CreateBatches(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         fmt.Sprintf("Created %d batches", len(created)),
		"batches_created": len(created),
		"timestamp":       nowMillis(),
	})
}

// ProcessNext runs the processor for the oldest pending batch. A missing
// batch (or a batch that failed processing) is not a command error: the
// response carries success=false with a message and status 200.
func (s *Server) ProcessNext(c *gin.Context) {
	_, ok, err := s.processor.ProcessNext(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	message := "Batch processed successfully"
	if !ok {
		message = "No batches available"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   ok,
		"message":   message,
		"timestamp": nowMillis(),
	})
}

// Stats serves the combined registry and processor statistics.
func (s *Server) Stats(c *gin.Context) {
	batchStats, err := s.store.GetBatchStats(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"batch_stats":     batchStats,
		"processor_stats": s.processor.Stats().Snapshot(),
		"timestamp":       nowMillis(),
	})
}

// batchSummary is the list-view projection of one batch.
type batchSummary struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	MessageCount   int      `json:"message_count"`
	CreatedAt      int64    `json:"created_at"`
	MixedText      *string  `json:"mixed_text"`
	ImagePath      *string  `json:"image_path"`
	ImageURL       *string  `json:"image_url"`
	CompletedAt    *int64   `json:"completed_at"`
	ProcessingTime *float64 `json:"processing_time"`
	ErrorMessage   *string  `json:"error_message"`
}

func summarize(b *database.Batch) batchSummary {
	summary := batchSummary{
		ID:           b.ID,
		Status:       string(b.Status),
		MessageCount: b.MessageCount,
		CreatedAt:    b.CreatedAt.Unix(),
	}
	if b.MixedText.Valid {
		summary.MixedText = &b.MixedText.String
	}
	if b.ImagePath.Valid {
		summary.ImagePath = &b.ImagePath.String
	}
	if b.ImageURL.Valid {
		summary.ImageURL = &b.ImageURL.String
	}
	if b.CompletedAt.Valid {
		completedAt := b.CompletedAt.Time.Unix()
		summary.CompletedAt = &completedAt
	}
	if b.ProcessingTime.Valid {
		summary.ProcessingTime = &b.ProcessingTime.Float64
	}
	if b.ErrorMessage.Valid {
		summary.ErrorMessage = &b.ErrorMessage.String
	}
	return summary
}

// ListBatches serves every batch in creation order.
func (s *Server) ListBatches(c *gin.Context) {
	batches, err := s.store.ListBatches(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	summaries := make([]batchSummary, 0, len(batches))
	for i := range batches {
		summaries = append(summaries, summarize(&batches[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"batches":   summaries,
		"count":     len(summaries),
		"timestamp": nowMillis(),
	})
}

// CurrentMixedText serves the most recently produced mixed text for the
// live preview panel.
func (s *Server) CurrentMixedText(c *gin.Context) {
	mixedText, err := s.store.LatestMixedText(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if mixedText == "" {
		mixedText = "No mixed text yet"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"mixed_text": mixedText,
		"timestamp":  nowMillis(),
	})
}

// Images serves the gallery of completed batches, newest first.
func (s *Server) Images(c *gin.Context) {
	images, err := s.store.CompletedImages(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"images":    images,
		"count":     len(images),
		"timestamp": nowMillis(),
	})
}

// ClearBatches bulk-deletes every batch and its claimed messages. This is
// the only deletion path for batches; unclaimed queue messages survive.
func (s *Server) ClearBatches(c *gin.Context) {
	cleared, err := s.store.ClearAllBatches(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"batches_cleared": cleared,
		"timestamp":       nowMillis(),
	})
}

// GetBasePrompt serves the current base style prompt.
func (s *Server) GetBasePrompt(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"base_prompt": s.prompts.Current(),
		"timestamp":   nowMillis(),
	})
}

type updateBasePromptRequest struct {
	BasePrompt string `json:"base_prompt" binding:"required"`
}

// UpdateBasePrompt replaces the base style prompt used for generation.
func (s *Server) UpdateBasePrompt(c *gin.Context) {
	var req updateBasePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.prompts.Update(req.BasePrompt); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"timestamp": nowMillis(),
	})
}
