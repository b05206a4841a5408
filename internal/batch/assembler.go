// Package batch implements the batch lifecycle engine: the assembler that
// groups queued messages into batches, the mixer that collapses a batch
// into one text, and the sequential processor that drives each batch
// through mixing and image generation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/crowdcanvas/crowdcanvas/internal/database"
)

// Assembler groups pending queue messages into fixed-size batches.
type Assembler struct {
	logger    *slog.Logger
	store     database.Store
	batchSize int
}

// NewAssembler creates an assembler producing batches of batchSize messages.
func NewAssembler(logger *slog.Logger, store database.Store, batchSize int) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		logger:    logger.With("component", "assembler"),
		store:     store,
		batchSize: batchSize,
	}
}

// BatchSize returns the configured batch size.
func (a *Assembler) BatchSize() int {
	return a.batchSize
}

// CreateBatches drains the queue in full batchSize chunks, creating one
// pending batch per chunk, until fewer than batchSize messages remain.
// The trailing partial chunk stays in the queue for a later run. Safe under
// concurrent calls: each chunk is claimed atomically by the store, so no
// message can end up in two batches.
func (a *Assembler) CreateBatches(ctx context.Context) ([]string, error) {
	var created []string

	for {
		batch, err := a.store.CreateBatchFromPending(ctx, uuid.NewString(), a.batchSize)
		if errors.Is(err, database.ErrInsufficientMessages) {
			break
		}
		if err != nil {
			return created, fmt.Errorf("failed to create batch: %w", err)
		}
		created = append(created, batch.ID)
	}

	if len(created) > 0 {
		a.logger.InfoContext(ctx, "Batches created from queue", "count", len(created), "batch_size", a.batchSize)
	} else {
		a.logger.DebugContext(ctx, "No full batch worth of pending messages")
	}
	return created, nil
}
