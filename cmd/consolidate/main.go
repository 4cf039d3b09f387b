package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/ercot-data/internal/batch"
	"github.com/rickgao/ercot-data/internal/config"
	"github.com/rickgao/ercot-data/internal/database"
	"github.com/rickgao/ercot-data/internal/logging"
	"github.com/rickgao/ercot-data/internal/merge"
	"github.com/rickgao/ercot-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/ercot.local.yaml", "path to config file")
	start := flag.String("start", "", "first delivery date to rebuild, empty rebuilds everything")
	end := flag.String("end", "", "last delivery date, defaults to -start")
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
	slog.SetDefault(logger)

	logger.Info("starting consolidate", "version", version.Version, "commit", version.Commit)

	var window *batch.Window
	if *start != "" {
		if *end == "" {
			*end = *start
		}
		w, err := batch.ParseWindow(*start, *end)
		if err != nil {
			logger.Error("invalid window", "error", err)
			os.Exit(1)
		}
		window = &w
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	engine := merge.New(pool, logger)
	if err := engine.CreateFinalTable(ctx); err != nil {
		logger.Error("failed to create tables", "error", err)
		os.Exit(1)
	}

	rep, err := engine.Merge(ctx, window)
	if err != nil {
		logger.Error("merge failed", "error", err)
		os.Exit(1)
	}

	logger.Info("consolidate finished",
		"rows", rep.Rows,
		"bid_rows", rep.BidRows,
		"offer_rows", rep.OfferRows,
		"deleted", rep.Deleted,
		"qses", rep.QSEs,
		"settlement_points", rep.Points,
		"duration", rep.Duration,
	)
}
