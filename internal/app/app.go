// Package app assembles the ingester from configuration. The binaries
// under cmd/ share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/ercot-data/internal/api"
	"github.com/rickgao/ercot-data/internal/archive"
	"github.com/rickgao/ercot-data/internal/auth"
	"github.com/rickgao/ercot-data/internal/batch"
	"github.com/rickgao/ercot-data/internal/config"
	"github.com/rickgao/ercot-data/internal/database"
	"github.com/rickgao/ercot-data/internal/merge"
	"github.com/rickgao/ercot-data/internal/pipeline"
	"github.com/rickgao/ercot-data/internal/qse"
	"github.com/rickgao/ercot-data/internal/schema"
	"github.com/rickgao/ercot-data/internal/scheduler"
	"github.com/rickgao/ercot-data/internal/store"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Client   *api.Client
	Store    *store.Store
	Merger   *merge.Engine
	Pipeline *pipeline.Pipeline
}

// Open connects to the database and builds the pipeline.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pcfg, err := PipelineConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	client, err := NewClient(cfg.API, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	st := store.New(pool, logger)
	merger := merge.New(pool, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Client:   client,
		Store:    st,
		Merger:   merger,
		Pipeline: pipeline.New(pcfg, client, st, merger, logger),
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}

// NewClient builds the report API client. A token source is attached when
// credentials are configured.
func NewClient(cfg config.APIConfig, logger *slog.Logger) (*api.Client, error) {
	opts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.Timeout),
		api.WithRetries(cfg.MaxRetries, cfg.RetryBackoff, cfg.MaxRetryBackoff),
		api.WithRateLimitBackoff(cfg.RetryBackoff, cfg.MaxRateBackoff),
		api.WithLimiter(api.NewLimiter(cfg.MinInterval, nil)),
		api.WithSubscriptionKey(cfg.SubscriptionKey),
		api.WithPageSize(cfg.PageSize),
	}

	if cfg.Username != "" {
		creds, err := auth.NewCredentials(cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("api credentials: %w", err)
		}
		if cfg.ClientID != "" {
			creds.ClientID = cfg.ClientID
		}
		authOpts := []auth.Option{auth.WithLogger(logger)}
		if cfg.TokenURL != "" {
			authOpts = append(authOpts, auth.WithTokenURL(cfg.TokenURL))
		}
		opts = append(opts, api.WithAuth(auth.NewTokenSource(creds, authOpts...)))
	}

	return api.NewClient(cfg.BaseURL, opts...), nil
}

// PipelineConfig maps the file configuration onto pipeline.Config.
func PipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	cutoff, err := cfg.Ingest.Cutoff()
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("ingest.archive_cutoff: %w", err)
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.Batch = batch.Config{
		BatchDays:    cfg.Ingest.BatchDays,
		MaxDateRange: cfg.Ingest.MaxDateRange,
		Workers:      cfg.Ingest.Workers,
	}
	pcfg.Archive = archive.Config{
		ParseWorkers: cfg.Archive.ParseWorkers,
		BatchSizes: map[string]int{
			archive.DAM.ID: cfg.Archive.DAMBatchSize,
			archive.SPP.ID: cfg.Archive.SPPBatchSize,
		},
	}
	pcfg.ArchiveCutoff = cutoff
	pcfg.MetadataMaxAge = cfg.Archive.MetadataMaxAge
	pcfg.StoreBatchSize = cfg.Ingest.StoreBatchSize
	pcfg.FilterActivePoints = cfg.Ingest.FilterActivePoints
	pcfg.AggregateSPPHourly = cfg.Ingest.AggregateSPPHourly
	pcfg.CoarseDedup = cfg.Ingest.CoarseDedup
	pcfg.CheckpointDir = cfg.Ingest.CheckpointDir
	return pcfg, nil
}

// Filters builds fetch filters from a comma separated table list and the
// configured QSE list.
func Filters(cfg *config.Config, tables string) (pipeline.Filters, error) {
	var f pipeline.Filters
	for _, t := range strings.Split(tables, ",") {
		if strings.TrimSpace(t) == "" {
			continue
		}
		name, err := schema.ParseName(t)
		if err != nil {
			return f, err
		}
		if _, err := pipeline.LookupReport(name); err != nil {
			return f, err
		}
		f.Tables = append(f.Tables, name)
	}

	if cfg.Ingest.QSEListPath != "" {
		names, err := qse.Load(cfg.Ingest.QSEListPath)
		if err != nil {
			return f, err
		}
		f.QSENames = names
	}
	return f, nil
}

// SchedulerConfig maps the schedule section onto scheduler.Config.
func SchedulerConfig(cfg config.ScheduleConfig) (scheduler.Config, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("schedule.timezone: %w", err)
	}
	return scheduler.Config{
		Spec:         cfg.Cron,
		Location:     loc,
		LookbackDays: cfg.LookbackDays,
	}, nil
}
