// Package tasks defines the background tasks run by the scheduler:
// automatic batch creation, queue draining, and registry cleanup.
package tasks

import (
	"log/slog"

	"github.com/crowdcanvas/crowdcanvas/internal/batch"
	"github.com/crowdcanvas/crowdcanvas/internal/config"
	"github.com/crowdcanvas/crowdcanvas/internal/database"
)

// TaskDeps provides dependencies for scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Store     database.Store
	Assembler *batch.Assembler
	Processor *batch.Processor
}
