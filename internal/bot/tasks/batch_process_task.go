package tasks

import (
	"context"
	"fmt"
)

// newBatchProcessTask creates the scheduled task that drains pending
// batches through the processor. The processor's own mutual exclusion
// makes overlap with admin-triggered runs harmless: the second caller
// simply gets nothing to do.
func newBatchProcessTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "batch_process")

	return func(ctx context.Context) error {
		processed, failed, err := deps.Processor.ProcessAll(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Batch processing task failed", "processed", processed, "failed", failed, "error", err)
			return fmt.Errorf("batch processing failed: %w", err)
		}

		if processed > 0 || failed > 0 {
			log.InfoContext(ctx, "Batch processing task completed", "processed", processed, "failed", failed)
		}
		return nil
	}
}
