package config

import (
	"time"
	_ "time/tzdata" // schedule.timezone must resolve on hosts without a zone database
)

// Config is the root configuration for the ingester binaries.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Database DBConfig       `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
	Status   StatusConfig   `yaml:"status"`
}

// InstanceConfig identifies this deployment in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds report API settings.
type APIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	TokenURL        string        `yaml:"token_url"` // empty uses the public B2C endpoint
	ClientID        string        `yaml:"client_id"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SubscriptionKey string        `yaml:"subscription_key"` // Ocp-Apim-Subscription-Key
	Timeout         time.Duration `yaml:"timeout"`
	MinInterval     time.Duration `yaml:"min_interval"` // minimum gap between requests
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff"`
	MaxRateBackoff  time.Duration `yaml:"max_rate_backoff"`
	PageSize        int           `yaml:"page_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// IngestConfig holds live fetch and store settings.
type IngestConfig struct {
	BatchDays          int    `yaml:"batch_days"`
	MaxDateRange       int    `yaml:"max_date_range"`
	Workers            int    `yaml:"workers"`
	QSEListPath        string `yaml:"qse_list_path"`
	CheckpointDir      string `yaml:"checkpoint_dir"`
	ArchiveCutoff      string `yaml:"archive_cutoff"` // YYYY-MM-DD; empty disables the archive
	StoreBatchSize     int    `yaml:"store_batch_size"`
	FilterActivePoints bool   `yaml:"filter_active_points"`
	AggregateSPPHourly bool   `yaml:"aggregate_spp_hourly"`
	CoarseDedup        bool   `yaml:"coarse_dedup"`
}

// Cutoff returns the parsed archive cutoff, zero when unset.
func (c IngestConfig) Cutoff() (time.Time, error) {
	if c.ArchiveCutoff == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, c.ArchiveCutoff)
}

// ArchiveConfig holds archive bundle settings.
type ArchiveConfig struct {
	DAMBatchSize   int           `yaml:"dam_batch_size"`
	SPPBatchSize   int           `yaml:"spp_batch_size"`
	ParseWorkers   int           `yaml:"parse_workers"`
	MetadataMaxAge time.Duration `yaml:"metadata_max_age"`
}

// ScheduleConfig holds scheduled run settings.
type ScheduleConfig struct {
	Cron         string `yaml:"cron"`
	Timezone     string `yaml:"timezone"`
	LookbackDays int    `yaml:"lookback_days"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // also log here when set, rotated
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// StatusConfig holds the status endpoint settings.
type StatusConfig struct {
	Port int `yaml:"port"` // 0 disables the endpoint
}
