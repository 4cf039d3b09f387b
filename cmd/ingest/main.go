package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/ercot-data/internal/app"
	"github.com/rickgao/ercot-data/internal/batch"
	"github.com/rickgao/ercot-data/internal/config"
	"github.com/rickgao/ercot-data/internal/health"
	"github.com/rickgao/ercot-data/internal/logging"
	"github.com/rickgao/ercot-data/internal/pipeline"
	"github.com/rickgao/ercot-data/internal/scheduler"
	"github.com/rickgao/ercot-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/ercot.local.yaml", "path to config file")
	start := flag.String("start", "", "first delivery date (YYYY-MM-DD)")
	end := flag.String("end", "", "last delivery date, defaults to -start")
	tables := flag.String("tables", "", "comma separated tables, empty for all")
	product := flag.String("product", "", "archive product id for -docs (NP3-966-ER or NP6-905-CD)")
	docs := flag.String("docs", "", "comma separated archive doc ids to ingest")
	doMerge := flag.Bool("merge", false, "rebuild FINAL for the window after fetching")
	schedule := flag.Bool("schedule", false, "run on the configured cron schedule until stopped")
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

	logger.Info("starting ingest",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	filters, err := app.Filters(cfg, *tables)
	if err != nil {
		logger.Error("invalid filters", "error", err)
		os.Exit(1)
	}
	if len(filters.QSENames) > 0 {
		logger.Info("qse list loaded", "qses", len(filters.QSENames))
	}

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	switch {
	case *schedule:
		err = runScheduled(ctx, a, filters)
	case *docs != "":
		err = ingestDocs(ctx, a, *product, *docs, filters)
	default:
		err = fetchWindow(ctx, a, *start, *end, filters, *doMerge)
	}
	if err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ingest finished")
}

func fetchWindow(ctx context.Context, a *app.App, start, end string, f pipeline.Filters, doMerge bool) error {
	if start == "" {
		return errors.New("-start is required")
	}
	if end == "" {
		end = start
	}
	w, err := batch.ParseWindow(start, end)
	if err != nil {
		return err
	}

	if !doMerge {
		res, err := a.Pipeline.Fetch(ctx, w, f)
		logResult(a.Logger, res)
		return err
	}

	res, rep, err := a.Pipeline.Sync(ctx, w, f)
	logResult(a.Logger, res)
	if err != nil {
		return err
	}
	a.Logger.Info("final rebuilt",
		"window", w.String(),
		"rows", rep.Rows,
		"qses", rep.QSEs,
		"settlement_points", rep.Points,
	)
	return nil
}

func ingestDocs(ctx context.Context, a *app.App, product, docs string, f pipeline.Filters) error {
	if product == "" {
		return errors.New("-product is required with -docs")
	}
	var ids []int64
	for _, s := range strings.Split(docs, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("parse doc id %q: %w", s, err)
		}
		ids = append(ids, id)
	}

	sum, err := a.Pipeline.IngestArchive(ctx, product, ids, f)
	if sum != nil {
		a.Logger.Info("archive ingest summary",
			"run_id", sum.RunID,
			"chunks", sum.Chunks,
			"failed_chunks", len(sum.FailedChunks),
			"files", sum.Files,
			"records", sum.Records,
			"inserted", sum.Inserted,
		)
	}
	return err
}

func runScheduled(ctx context.Context, a *app.App, f pipeline.Filters) error {
	scfg, err := app.SchedulerConfig(a.Config.Schedule)
	if err != nil {
		return err
	}
	sch, err := scheduler.New(scfg, a.Pipeline, f, a.Logger)
	if err != nil {
		return err
	}

	var status *health.Server
	if a.Config.Status.Port > 0 {
		status = health.NewServer(a.Config.Instance.ID, a.Pool, sch, a.Logger)
		status.Start(a.Config.Status.Port)
	}

	if err := sch.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sch.Stop(shutdownCtx); err != nil {
		a.Logger.Warn("scheduler stop", "error", err)
	}
	if status != nil {
		status.Shutdown(shutdownCtx)
	}
	return nil
}

func logResult(logger *slog.Logger, res *pipeline.Result) {
	if res == nil {
		return
	}
	for table, s := range res.Live {
		logger.Info("live summary",
			"table", string(table),
			"records", s.TotalRecords,
			"successful", len(s.Successful),
			"empty", len(s.Empty),
			"failed", len(s.Failed),
			"skipped", len(s.Skipped),
			"unreached", len(s.Unreached),
			"avg_per_batch", s.AveragePerBatch(),
		)
	}
	for product, s := range res.Archive {
		logger.Info("archive summary",
			"product", product,
			"chunks", s.Chunks,
			"failed_chunks", len(s.FailedChunks),
			"records", s.Records,
			"inserted", s.Inserted,
		)
	}
	logger.Info("fetch summary",
		"run_id", res.RunID,
		"window", res.Window.String(),
		"records", res.TotalRecords(),
		"duration", res.Ended.Sub(res.Started),
	)
}
