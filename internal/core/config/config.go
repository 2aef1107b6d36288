package config

import (
	"time"
)

// Config is the top-level configuration. It is constructed once at
// startup and its sub-structs are passed into component constructors;
// no component reads configuration globally.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Provider    ProviderConfig     `yaml:"provider"`
	Credentials []CredentialConfig `yaml:"credentials"`
	Ingest      IngestConfig       `yaml:"ingest"`
	LiveFeed    LiveFeedConfig     `yaml:"live_feed"`
	Storage     StorageConfig      `yaml:"storage"`
	Snapshot    SnapshotConfig     `yaml:"snapshot"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds query API server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ProviderConfig describes the remote inscription lookup API.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CredentialConfig describes one rate-limited API key.
type CredentialConfig struct {
	Name        string        `yaml:"name"`
	Key         string        `yaml:"key"`
	DailyLimit  int           `yaml:"daily_limit"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// IngestConfig controls the ingestion loop and scheduler.
type IngestConfig struct {
	StartBlock     uint64        `yaml:"start_block"`
	BackfillWindow int           `yaml:"backfill_window"` // max blocks queued past the progress marker
	SafetyBuffer   int           `yaml:"safety_buffer"`   // per-credential headroom below the daily limit
	RetryCeiling   int           `yaml:"retry_ceiling"`
	RetryBase      time.Duration `yaml:"retry_base"`
	RetryMax       time.Duration `yaml:"retry_max"`
	QuotaCooldown  time.Duration `yaml:"quota_cooldown"` // long pause on explicit rate-limit signals
	ExhaustedSleep time.Duration `yaml:"exhausted_sleep"`
	IdleInterval   time.Duration `yaml:"idle_interval"`
	SlotWait       time.Duration `yaml:"slot_wait"` // pause when no credential currently qualifies
	SnapshotEvery  time.Duration `yaml:"snapshot_every"`
	StatusEvery    time.Duration `yaml:"status_every"`
	DedupeEvery    int           `yaml:"dedupe_every"` // appends between sort/dedupe passes
}

// LiveFeedConfig describes the block-height subscription.
type LiveFeedConfig struct {
	URL            string        `yaml:"url"`
	ReconnectBase  time.Duration `yaml:"reconnect_base"`
	ReconnectLimit time.Duration `yaml:"reconnect_limit"` // cap, not a retry count; reconnects forever
}

// StorageConfig holds dataset file locations.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatasetFile  string `yaml:"dataset_file"`
	ProgressFile string `yaml:"progress_file"`
	EmptiesFile  string `yaml:"empties_file"`
}

// SnapshotConfig controls the best-effort git snapshotting of the
// dataset file.
type SnapshotConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}
