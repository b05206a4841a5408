package tasks

import (
	"context"
	"fmt"
)

// newBatchCreateTask creates the scheduled task that assembles pending
// queue messages into batches. Same policy as the forced admin command:
// only full batches form, the trailing partial chunk keeps waiting.
func newBatchCreateTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "batch_create")

	return func(ctx context.Context) error {
		created, err := deps.Assembler.CreateBatches(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Automatic batch creation failed", "error", err)
			return fmt.Errorf("batch creation failed: %w", err)
		}

		if len(created) > 0 {
			log.InfoContext(ctx, "Automatic batch creation completed", "batches_created", len(created))
		}
		return nil
	}
}
