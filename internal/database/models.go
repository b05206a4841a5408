package database

import (
	"database/sql"
	"time"
)

// MessageStatus tracks whether a queued message has been claimed by a batch.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusInBatch MessageStatus = "in_batch"
)

// BatchStatus is the lifecycle state of a batch. Transitions only move
// forward: pending -> processing -> mixed -> generating -> completed/failed,
// with processing -> failed allowed when mixing fails.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusMixed      BatchStatus = "mixed"
	BatchStatusGenerating BatchStatus = "generating"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// AllBatchStatuses lists every batch status in lifecycle order. The
// statistics projection iterates this so every state shows up in counts
// even at zero.
var AllBatchStatuses = []BatchStatus{
	BatchStatusPending,
	BatchStatusProcessing,
	BatchStatusMixed,
	BatchStatusGenerating,
	BatchStatusCompleted,
	BatchStatusFailed,
}

// Message represents a single audience message collected from Telegram,
// the Mini App, or the admin queue endpoint. Messages stay in the queue
// (status "pending") until the assembler claims them into a batch.
type Message struct {
	ID        string        `db:"id"`
	UserID    int64         `db:"user_id"`
	Username  string        `db:"username"`
	FirstName string        `db:"first_name"`
	Source    string        `db:"source"`
	Content   string        `db:"content"`
	Status    MessageStatus `db:"status"`
	Timestamp time.Time     `db:"timestamp"`

	BatchID sql.NullString `db:"batch_id"`
}

// Batch is a fixed group of messages processed together through mixing and
// image generation. Membership is fixed at creation; only the processor
// mutates a batch afterwards.
type Batch struct {
	ID           string      `db:"id"`
	Status       BatchStatus `db:"status"`
	MessageCount int         `db:"message_count"`
	CreatedAt    time.Time   `db:"created_at"`

	MixedText      sql.NullString  `db:"mixed_text"`
	ImagePath      sql.NullString  `db:"image_path"`
	ImageURL       sql.NullString  `db:"image_url"`
	ErrorMessage   sql.NullString  `db:"error_message"`
	StartedAt      sql.NullTime    `db:"started_at"`
	CompletedAt    sql.NullTime    `db:"completed_at"`
	ProcessingTime sql.NullFloat64 `db:"processing_time"`
}

// ShortID returns the first 8 characters of the batch id, the form the
// admin UI displays and log lines use.
func (b *Batch) ShortID() string {
	if len(b.ID) <= 8 {
		return b.ID
	}
	return b.ID[:8]
}

// BatchStats is the per-status breakdown of the batch registry plus the
// current queue depth. Every field is a projection of stored rows.
type BatchStats struct {
	TotalMessages     int `json:"total_messages"`
	TotalBatches      int `json:"total_batches"`
	PendingBatches    int `json:"pending_batches"`
	ProcessingBatches int `json:"processing_batches"`
	MixedBatches      int `json:"mixed_batches"`
	GeneratingBatches int `json:"generating_batches"`
	CompletedBatches  int `json:"completed_batches"`
	FailedBatches     int `json:"failed_batches"`
}

// GeneratedImage summarizes one completed batch for the image gallery.
type GeneratedImage struct {
	BatchID        string    `json:"batch_id"`
	MixedText      string    `json:"mixed_text"`
	ImageURL       string    `json:"image_url"`
	ImagePath      string    `json:"image_path"`
	CompletedAt    time.Time `json:"completed_at"`
	ProcessingTime float64   `json:"processing_time"`
	MessageCount   int       `json:"message_count"`
}
