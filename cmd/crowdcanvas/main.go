// Package main contains the entrypoint for the CrowdCanvas application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/crowdcanvas/crowdcanvas/internal/api"
	"github.com/crowdcanvas/crowdcanvas/internal/batch"
	"github.com/crowdcanvas/crowdcanvas/internal/bot"
	"github.com/crowdcanvas/crowdcanvas/internal/bot/tasks"
	"github.com/crowdcanvas/crowdcanvas/internal/config"
	"github.com/crowdcanvas/crowdcanvas/internal/database"
	"github.com/crowdcanvas/crowdcanvas/internal/gemini"
	"github.com/crowdcanvas/crowdcanvas/internal/logger"
	"github.com/crowdcanvas/crowdcanvas/internal/prompt"
	"github.com/crowdcanvas/crowdcanvas/internal/telegram"
	"github.com/crowdcanvas/crowdcanvas/internal/telegram/handlers"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// AI client, batch engine, admin API, Telegram listener, scheduler), handles
// graceful shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	promptStore, err := prompt.NewStore(cfg.Batch.BasePromptPath, log)
	if err != nil {
		log.Error("Failed to initialize base prompt store", "path", cfg.Batch.BasePromptPath, "error", err)
		return 1
	}

	assembler := batch.NewAssembler(log, store, cfg.Batch.Size)
	mixer := batch.NewMixer(log, gemClient, cfg.Batch.MixedTextMaxLen, cfg.Gemini.MixTimeout)
	processor, err := batch.NewProcessor(log, store, mixer, gemClient, promptStore, batch.ProcessorOptions{
		PromptMaxLen:    cfg.Batch.PromptMaxLen,
		GenerateTimeout: cfg.Gemini.GenerateTimeout,
		ImagesDir:       cfg.Server.ImagesDir,
	})
	if err != nil {
		log.Error("Failed to initialize batch processor", "error", err)
		return 1
	}

	apiServer := api.NewServer(log, store, assembler, processor, promptStore, cfg.Server.ImagesDir, cfg.Server.Addr)

	var tg *tgbot.Bot
	if cfg.Telegram.Enabled {
		hDeps := handlers.HandlerDeps{
			Logger: log,
			Config: cfg,
			Store:  store,
		}

		botOpts := []tgbot.Option{
			tgbot.WithMiddlewares(logger.Middleware(log)),
			tgbot.WithDefaultHandler(handlers.NewCollectHandler(hDeps)),
		}
		tg, err = telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
		if err != nil {
			log.Error("Failed to create Telegram bot", "error", err)
			return 1
		}

		cmdHandlers := handlers.RegisterAllCommands(hDeps)
		if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
			log.Error("Failed to register Telegram handlers", "error", err)
			return 1
		}
	}

	tDeps := tasks.TaskDeps{
		Logger:    log,
		Config:    cfg,
		Store:     store,
		Assembler: assembler,
		Processor: processor,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, tg, apiServer, sched)

	log.Info("Starting CrowdCanvas...")
	runErr := app.Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
