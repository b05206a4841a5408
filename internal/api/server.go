// Package api exposes the admin HTTP surface: batch lifecycle commands,
// statistics, the queue backdoor, base prompt management, and static
// serving of generated images.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdcanvas/crowdcanvas/internal/batch"
	"github.com/crowdcanvas/crowdcanvas/internal/database"
	"github.com/crowdcanvas/crowdcanvas/internal/prompt"
)

// Server wires the admin HTTP API around the batch engine.
type Server struct {
	logger    *slog.Logger
	store     database.Store
	assembler *batch.Assembler
	processor *batch.Processor
	prompts   *prompt.Store
	imagesDir string
	addr      string
}

// NewServer creates the admin API server.
func NewServer(
	logger *slog.Logger,
	store database.Store,
	assembler *batch.Assembler,
	processor *batch.Processor,
	prompts *prompt.Store,
	imagesDir string,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:    logger.With("component", "api"),
		store:     store,
		assembler: assembler,
		processor: processor,
		prompts:   prompts,
		imagesDir: imagesDir,
		addr:      addr,
	}
}

// Router builds the gin engine with all admin routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	admin := router.Group("/api/admin")
	{
		admin.POST("/queue/add", s.QueueAdd)
		admin.GET("/queue/stats", s.QueueStats)

		smart := admin.Group("/smart-batches")
		{
			smart.POST("/create", s.CreateBatches)
			smart.POST("/process-next", s.ProcessNext)
			smart.GET("/stats", s.Stats)
			smart.GET("/list", s.ListBatches)
			smart.GET("/current-mixed-text", s.CurrentMixedText)
			smart.GET("/images", s.Images)
			smart.POST("/clear", s.ClearBatches)
		}

		admin.GET("/base-prompt", s.GetBasePrompt)
		admin.POST("/update-base-prompt", s.UpdateBasePrompt)
	}

	router.Static(batch.ImageURLPrefix, s.imagesDir)

	return router
}

// Run starts the HTTP server and shuts it down gracefully when the context
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Admin API listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down admin API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Admin API stopped.")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
