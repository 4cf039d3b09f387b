package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/ercot-data/internal/config"
	"github.com/rickgao/ercot-data/internal/database"
	"github.com/rickgao/ercot-data/internal/logging"
)

func main() {
	configPath := flag.String("config", "configs/ercot.local.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Log, cfg.Instance.ID)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("running migrations", "database", cfg.Database.Name)
	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations completed successfully")
}
