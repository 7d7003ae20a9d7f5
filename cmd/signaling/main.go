package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/amrazz/z-chat/internal/server"
	"github.com/amrazz/z-chat/internal/store"
	"github.com/amrazz/z-chat/pkg/config"
	"github.com/amrazz/z-chat/pkg/logging"
)

func main() {
	logger := logging.New("info")

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	st, err := store.OpenBadger(cfg.Store.Path, cfg.Store.InMemory, logger)
	if err != nil {
		logger.Error("Failed to open message store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, st, st)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
