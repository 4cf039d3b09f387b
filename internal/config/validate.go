package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.SubscriptionKey == "" {
		return errors.New("api.subscription_key is required")
	}
	if (c.API.Username == "") != (c.API.Password == "") {
		return errors.New("api.username and api.password must be set together")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.MinInterval < 0 {
		return errors.New("api.min_interval must be >= 0")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Ingest.BatchDays < 1 {
		return errors.New("ingest.batch_days must be >= 1")
	}
	if c.Ingest.MaxDateRange < 1 {
		return errors.New("ingest.max_date_range must be >= 1")
	}
	if c.Ingest.Workers < 1 {
		return errors.New("ingest.workers must be >= 1")
	}
	if c.Ingest.StoreBatchSize < 1 {
		return errors.New("ingest.store_batch_size must be >= 1")
	}
	if _, err := c.Ingest.Cutoff(); err != nil {
		return fmt.Errorf("ingest.archive_cutoff must be YYYY-MM-DD, got %q", c.Ingest.ArchiveCutoff)
	}

	if c.Archive.DAMBatchSize < 1 || c.Archive.SPPBatchSize < 1 {
		return errors.New("archive batch sizes must be >= 1")
	}
	if c.Archive.ParseWorkers < 1 {
		return errors.New("archive.parse_workers must be >= 1")
	}

	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron is invalid: %w", err)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone is invalid: %w", err)
	}
	if c.Schedule.LookbackDays < 1 {
		return errors.New("schedule.lookback_days must be >= 1")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 0 and 65535, got %d", c.Status.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
