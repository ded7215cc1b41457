package main

import (
	"log/slog"
	"os"

	"furitingoasis/greenhouse/internal/config"
	"furitingoasis/greenhouse/internal/history"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if !cfg.History.Enabled() {
		logger.Error("HISTORY_PATH is required to serve history")
		os.Exit(1)
	}
	store, err := history.Open(cfg.History.Path, cfg.History.WriteTimeout, logger)
	if err != nil {
		logger.Error("Error opening database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	router := newRouter(store, cfg.SiteLimit)

	logger.Info("starting site", "addr", cfg.SiteAddr, "max_points", cfg.SiteLimit)
	if err := router.Run(cfg.SiteAddr); err != nil {
		logger.Error("site stopped", "error", err)
		os.Exit(1)
	}
}
