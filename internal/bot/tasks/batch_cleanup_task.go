package tasks

import (
	"context"
	"fmt"
	"time"
)

// newBatchCleanupTask creates the scheduled task that removes terminal
// batches older than the configured age, keeping the registry bounded.
func newBatchCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "batch_cleanup")

	return func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-deps.Config.Batch.CleanupMaxAge)

		removed, err := deps.Store.DeleteTerminalBatchesBefore(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Batch cleanup failed", "error", err)
			return fmt.Errorf("batch cleanup failed: %w", err)
		}

		if removed > 0 {
			log.InfoContext(ctx, "Batch cleanup completed", "removed", removed, "max_age", deps.Config.Batch.CleanupMaxAge)
		}
		return nil
	}
}
