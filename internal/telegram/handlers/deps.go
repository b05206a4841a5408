package handlers

import (
	"log/slog"

	"github.com/crowdcanvas/crowdcanvas/internal/config"
	"github.com/crowdcanvas/crowdcanvas/internal/database"
)

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
}
