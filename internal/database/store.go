package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrInsufficientMessages is returned by CreateBatchFromPending when fewer
// pending messages remain than the requested batch size. It signals a normal
// stop condition for the assembler, not a failure.
var ErrInsufficientMessages = errors.New("not enough pending messages for a full batch")

// Store defines the interface for queue and batch registry operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// EnqueueMessage inserts a new audience message in pending state.
	EnqueueMessage(ctx context.Context, message *Message) error

	// CountPendingMessages returns the number of messages not yet claimed by a batch.
	CountPendingMessages(ctx context.Context) (int, error)

	// CreateBatchFromPending atomically claims the oldest 'size' pending messages
	// into a new batch. The claim and the batch insert happen in one transaction,
	// so concurrent calls can never assign the same message to two batches.
	// Returns ErrInsufficientMessages when fewer than 'size' messages are pending.
	CreateBatchFromPending(ctx context.Context, batchID string, size int) (*Batch, error)

	// NextPendingBatch returns the oldest batch in pending state, or nil, nil
	// if none exists.
	NextPendingBatch(ctx context.Context) (*Batch, error)

	// GetBatch retrieves a batch by id. Returns nil, nil if not found.
	GetBatch(ctx context.Context, id string) (*Batch, error)

	// BatchMessages returns the messages claimed by a batch, oldest first.
	BatchMessages(ctx context.Context, batchID string) ([]Message, error)

	// MarkBatchProcessing transitions a batch to processing and records its start time.
	MarkBatchProcessing(ctx context.Context, id string, startedAt time.Time) error

	// SetBatchMixed transitions a batch to mixed and stores the mixed text.
	SetBatchMixed(ctx context.Context, id string, mixedText string) error

	// SetBatchGenerating transitions a batch to generating.
	SetBatchGenerating(ctx context.Context, id string) error

	// CompleteBatch transitions a batch to completed with its image result.
	CompleteBatch(ctx context.Context, id, imagePath, imageURL string, completedAt time.Time, processingTime float64) error

	// FailBatch transitions a batch to failed with a human-readable error message.
	FailBatch(ctx context.Context, id, errorMessage string, completedAt time.Time, processingTime float64) error

	// ListBatches returns all batches in creation order.
	ListBatches(ctx context.Context) ([]Batch, error)

	// GetBatchStats returns per-status batch counts and the pending queue depth.
	// The counts are computed from stored rows on every call, never cached.
	GetBatchStats(ctx context.Context) (*BatchStats, error)

	// LatestMixedText returns the most recently produced mixed text across all
	// batches, or "" if no batch has been mixed yet.
	LatestMixedText(ctx context.Context) (string, error)

	// CompletedImages returns all completed batches with an image, newest first.
	CompletedImages(ctx context.Context) ([]GeneratedImage, error)

	// ClearAllBatches deletes every batch and its claimed messages (admin reset).
	// Unclaimed pending messages stay in the queue.
	ClearAllBatches(ctx context.Context) (int, error)

	// DeleteTerminalBatchesBefore removes completed/failed batches created before
	// the cutoff, together with their messages. Returns the number removed.
	DeleteTerminalBatchesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) EnqueueMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot enqueue nil message")
	}
	if message.ID == "" {
		return fmt.Errorf("message must have an id")
	}
	if message.Content == "" {
		return fmt.Errorf("message must have non-empty content")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	if message.Status == "" {
		message.Status = MessageStatusPending
	}
	if message.Source == "" {
		message.Source = "telegram"
	}

	query := `
        INSERT INTO messages (id, user_id, username, first_name, source, content, status, timestamp, batch_id)
        VALUES (:id, :user_id, :username, :first_name, :source, :content, :status, :timestamp, :batch_id);
    `
	if _, err := s.db.NamedExecContext(ctx, query, message); err != nil {
		s.logger.ErrorContext(ctx, "Error enqueueing message", "message_id", message.ID, "user_id", message.UserID, "error", err)
		return fmt.Errorf("failed to enqueue message %s: %w", message.ID, err)
	}

	s.logger.DebugContext(ctx, "Message enqueued", "message_id", message.ID, "user_id", message.UserID, "source", message.Source)
	return nil
}

func (s *sqlxStore) CountPendingMessages(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE status = ?;`, MessageStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending messages: %w", err)
	}
	return count, nil
}

func (s *sqlxStore) CreateBatchFromPending(ctx context.Context, batchID string, size int) (*Batch, error) {
	if batchID == "" {
		return nil, fmt.Errorf("batch id cannot be empty")
	}
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back batch creation transaction", "error", rollbackErr)
			}
		}
	}()

	var messageIDs []string
	selectQuery := `
        SELECT id FROM messages
        WHERE status = ?
        ORDER BY timestamp ASC, rowid ASC
        LIMIT ?;
    `
	if err := tx.SelectContext(ctx, &messageIDs, selectQuery, MessageStatusPending, size); err != nil {
		return nil, fmt.Errorf("failed to select pending messages: %w", err)
	}
	if len(messageIDs) < size {
		return nil, ErrInsufficientMessages
	}

	batch := &Batch{
		ID:           batchID,
		Status:       BatchStatusPending,
		MessageCount: len(messageIDs),
		CreatedAt:    time.Now().UTC(),
	}
	insertQuery := `
        INSERT INTO batches (id, status, message_count, created_at)
        VALUES (:id, :status, :message_count, :created_at);
    `
	if _, err := tx.NamedExecContext(ctx, insertQuery, batch); err != nil {
		return nil, fmt.Errorf("failed to insert batch %s: %w", batchID, err)
	}

	claimQuery, args, err := sqlx.In(
		`UPDATE messages SET status = ?, batch_id = ? WHERE id IN (?) AND status = ?;`,
		MessageStatusInBatch, batchID, messageIDs, MessageStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build claim query: %w", err)
	}
	result, err := tx.ExecContext(ctx, s.db.Rebind(claimQuery), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages for batch %s: %w", batchID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && int(affected) != len(messageIDs) {
		// Another writer claimed one of the rows between select and update,
		// which cannot happen inside a single sqlite transaction. Fail loudly.
		return nil, fmt.Errorf("claimed %d of %d messages for batch %s", affected, len(messageIDs), batchID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch creation: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Batch created", "batch_id", batch.ShortID(), "message_count", batch.MessageCount)
	return batch, nil
}

func (s *sqlxStore) NextPendingBatch(ctx context.Context) (*Batch, error) {
	var batch Batch
	query := `
        SELECT * FROM batches
        WHERE status = ?
        ORDER BY created_at ASC, rowid ASC
        LIMIT 1;
    `
	err := s.db.GetContext(ctx, &batch, query, BatchStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next pending batch: %w", err)
	}
	return &batch, nil
}

func (s *sqlxStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	err := s.db.GetContext(ctx, &batch, `SELECT * FROM batches WHERE id = ?;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", id, err)
	}
	return &batch, nil
}

func (s *sqlxStore) BatchMessages(ctx context.Context, batchID string) ([]Message, error) {
	var messages []Message
	query := `
        SELECT * FROM messages
        WHERE batch_id = ?
        ORDER BY timestamp ASC, rowid ASC;
    `
	if err := s.db.SelectContext(ctx, &messages, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to get messages for batch %s: %w", batchID, err)
	}
	return messages, nil
}

// updateBatchStatus applies a guarded status transition. The fromStatuses
// guard keeps the state machine moving forward only: an update whose guard
// does not match affects zero rows and is reported as an error.
func (s *sqlxStore) updateBatchStatus(ctx context.Context, id string, to BatchStatus, fromStatuses []BatchStatus, set string, args ...any) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fromStatuses)), ",")
	query := fmt.Sprintf(`UPDATE batches SET status = ?%s WHERE id = ? AND status IN (%s);`, set, placeholders)

	queryArgs := []any{to}
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, id)
	for _, from := range fromStatuses {
		queryArgs = append(queryArgs, from)
	}

	result, err := s.db.ExecContext(ctx, query, queryArgs...)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating batch status", "batch_id", id, "to", to, "error", err)
		return fmt.Errorf("failed to update batch %s to %s: %w", id, to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check batch %s status update: %w", id, err)
	}
	if affected != 1 {
		return fmt.Errorf("invalid status transition for batch %s: not in %v", id, fromStatuses)
	}

	s.logger.DebugContext(ctx, "Batch status updated", "batch_id", id, "status", to)
	return nil
}

func (s *sqlxStore) MarkBatchProcessing(ctx context.Context, id string, startedAt time.Time) error {
	return s.updateBatchStatus(ctx, id, BatchStatusProcessing,
		[]BatchStatus{BatchStatusPending},
		", started_at = ?", startedAt.UTC())
}

func (s *sqlxStore) SetBatchMixed(ctx context.Context, id string, mixedText string) error {
	return s.updateBatchStatus(ctx, id, BatchStatusMixed,
		[]BatchStatus{BatchStatusProcessing},
		", mixed_text = ?", mixedText)
}

func (s *sqlxStore) SetBatchGenerating(ctx context.Context, id string) error {
	return s.updateBatchStatus(ctx, id, BatchStatusGenerating,
		[]BatchStatus{BatchStatusMixed}, "")
}

func (s *sqlxStore) CompleteBatch(ctx context.Context, id, imagePath, imageURL string, completedAt time.Time, processingTime float64) error {
	return s.updateBatchStatus(ctx, id, BatchStatusCompleted,
		[]BatchStatus{BatchStatusGenerating},
		", image_path = ?, image_url = ?, completed_at = ?, processing_time = ?",
		imagePath, imageURL, completedAt.UTC(), processingTime)
}

func (s *sqlxStore) FailBatch(ctx context.Context, id, errorMessage string, completedAt time.Time, processingTime float64) error {
	return s.updateBatchStatus(ctx, id, BatchStatusFailed,
		[]BatchStatus{BatchStatusProcessing, BatchStatusMixed, BatchStatusGenerating},
		", error_message = ?, completed_at = ?, processing_time = ?",
		errorMessage, completedAt.UTC(), processingTime)
}

func (s *sqlxStore) ListBatches(ctx context.Context) ([]Batch, error) {
	var batches []Batch
	query := `SELECT * FROM batches ORDER BY created_at ASC, rowid ASC;`
	if err := s.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

func (s *sqlxStore) GetBatchStats(ctx context.Context) (*BatchStats, error) {
	stats := &BatchStats{}

	pending, err := s.CountPendingMessages(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalMessages = pending

	rows := []struct {
		Status BatchStatus `db:"status"`
		Count  int         `db:"count"`
	}{}
	query := `SELECT status, COUNT(*) AS count FROM batches GROUP BY status;`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count batches by status: %w", err)
	}

	for _, row := range rows {
		stats.TotalBatches += row.Count
		switch row.Status {
		case BatchStatusPending:
			stats.PendingBatches = row.Count
		case BatchStatusProcessing:
			stats.ProcessingBatches = row.Count
		case BatchStatusMixed:
			stats.MixedBatches = row.Count
		case BatchStatusGenerating:
			stats.GeneratingBatches = row.Count
		case BatchStatusCompleted:
			stats.CompletedBatches = row.Count
		case BatchStatusFailed:
			stats.FailedBatches = row.Count
		default:
			s.logger.WarnContext(ctx, "Unknown batch status in database", "status", row.Status, "count", row.Count)
		}
	}

	return stats, nil
}

func (s *sqlxStore) LatestMixedText(ctx context.Context) (string, error) {
	var mixedText string
	query := `
        SELECT mixed_text FROM batches
        WHERE mixed_text IS NOT NULL AND mixed_text != ''
        ORDER BY started_at DESC, rowid DESC
        LIMIT 1;
    `
	err := s.db.GetContext(ctx, &mixedText, query)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest mixed text: %w", err)
	}
	return mixedText, nil
}

func (s *sqlxStore) CompletedImages(ctx context.Context) ([]GeneratedImage, error) {
	var batches []Batch
	query := `
        SELECT * FROM batches
        WHERE status = ? AND image_path IS NOT NULL
        ORDER BY completed_at DESC, rowid DESC;
    `
	if err := s.db.SelectContext(ctx, &batches, query, BatchStatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to list completed images: %w", err)
	}

	images := make([]GeneratedImage, 0, len(batches))
	for _, b := range batches {
		images = append(images, GeneratedImage{
			BatchID:        b.ID,
			MixedText:      b.MixedText.String,
			ImageURL:       b.ImageURL.String,
			ImagePath:      b.ImagePath.String,
			CompletedAt:    b.CompletedAt.Time,
			ProcessingTime: b.ProcessingTime.Float64,
			MessageCount:   b.MessageCount,
		})
	}
	return images, nil
}

func (s *sqlxStore) ClearAllBatches(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back clear transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE batch_id IS NOT NULL;`); err != nil {
		return 0, fmt.Errorf("failed to delete batched messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM batches;`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete batches: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted batches: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit clear: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Cleared all batches", "count", affected)
	return int(affected), nil
}

func (s *sqlxStore) DeleteTerminalBatchesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back cleanup transaction", "error", rollbackErr)
			}
		}
	}()

	deleteMessages := `
        DELETE FROM messages WHERE batch_id IN (
            SELECT id FROM batches WHERE status IN (?, ?) AND created_at < ?
        );
    `
	if _, err := tx.ExecContext(ctx, deleteMessages, BatchStatusCompleted, BatchStatusFailed, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("failed to delete messages of old batches: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM batches WHERE status IN (?, ?) AND created_at < ?;`,
		BatchStatusCompleted, BatchStatusFailed, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old batches: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted batches: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	tx = nil

	if affected > 0 {
		s.logger.InfoContext(ctx, "Removed old terminal batches", "count", affected, "cutoff", cutoff)
	}
	return int(affected), nil
}
