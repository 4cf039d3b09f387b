package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID      = "ercot-data"
	DefaultBaseURL         = "https://api.ercot.com/api/public-reports"
	DefaultAPITimeout      = 30 * time.Second
	DefaultMinInterval     = 6 * time.Second
	DefaultMaxRetries      = 5
	DefaultRetryBackoff    = 2 * time.Second
	DefaultMaxRetryBackoff = 60 * time.Second
	DefaultMaxRateBackoff  = 300 * time.Second
	DefaultPageSize        = 10000
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultBatchDays       = 7
	DefaultMaxDateRange    = 100
	DefaultWorkers         = 1
	DefaultCheckpointDir   = "checkpoints"
	DefaultStoreBatchSize  = 1000
	DefaultDAMBatchSize    = 25
	DefaultSPPBatchSize    = 1000
	DefaultParseWorkers    = 4
	DefaultMetadataMaxAge  = 24 * time.Hour
	DefaultCron            = "0 6 * * *"
	DefaultTimezone        = "America/Chicago"
	DefaultLookbackDays    = 2
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultLogMaxSizeMB    = 100
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAgeDays   = 30
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MinInterval == 0 {
		c.API.MinInterval = DefaultMinInterval
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.MaxRetryBackoff == 0 {
		c.API.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	if c.API.MaxRateBackoff == 0 {
		c.API.MaxRateBackoff = DefaultMaxRateBackoff
	}
	if c.API.PageSize == 0 {
		c.API.PageSize = DefaultPageSize
	}

	applyDBDefaults(&c.Database)

	// Ingest defaults
	if c.Ingest.BatchDays == 0 {
		c.Ingest.BatchDays = DefaultBatchDays
	}
	if c.Ingest.MaxDateRange == 0 {
		c.Ingest.MaxDateRange = DefaultMaxDateRange
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = DefaultWorkers
	}
	if c.Ingest.CheckpointDir == "" {
		c.Ingest.CheckpointDir = DefaultCheckpointDir
	}
	if c.Ingest.StoreBatchSize == 0 {
		c.Ingest.StoreBatchSize = DefaultStoreBatchSize
	}

	// Archive defaults
	if c.Archive.DAMBatchSize == 0 {
		c.Archive.DAMBatchSize = DefaultDAMBatchSize
	}
	if c.Archive.SPPBatchSize == 0 {
		c.Archive.SPPBatchSize = DefaultSPPBatchSize
	}
	if c.Archive.ParseWorkers == 0 {
		c.Archive.ParseWorkers = DefaultParseWorkers
	}
	if c.Archive.MetadataMaxAge == 0 {
		c.Archive.MetadataMaxAge = DefaultMetadataMaxAge
	}

	// Schedule defaults
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = DefaultCron
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultTimezone
	}
	if c.Schedule.LookbackDays == 0 {
		c.Schedule.LookbackDays = DefaultLookbackDays
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
