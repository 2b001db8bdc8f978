package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tatianab/mythic-paths/internal/app"
	"github.com/tatianab/mythic-paths/internal/config"
	"github.com/tatianab/mythic-paths/internal/logging"
	"github.com/tatianab/mythic-paths/internal/tui"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.ForTerminal())
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		fmt.Printf("Error creating game: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Game started",
		zap.String("store", cfg.Store.Driver),
		zap.String("language", string(cfg.DefaultLanguage)))

	runErr := tui.Run(a.Session)
	if err := a.Close(); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	if runErr != nil {
		fmt.Printf("Error running TUI: %v\n", runErr)
		os.Exit(1)
	}
}
