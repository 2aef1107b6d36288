package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("at least one credential is required")
	}
	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("provider base_url is required")
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}

	ing := &cfg.Ingest
	if ing.BackfillWindow == 0 {
		ing.BackfillWindow = 200
	}
	if ing.SafetyBuffer == 0 {
		ing.SafetyBuffer = 5
	}
	if ing.RetryCeiling == 0 {
		ing.RetryCeiling = 3
	}
	if ing.RetryBase == 0 {
		ing.RetryBase = 2 * time.Second
	}
	if ing.RetryMax == 0 {
		ing.RetryMax = time.Minute
	}
	if ing.QuotaCooldown == 0 {
		ing.QuotaCooldown = 5 * time.Minute
	}
	if ing.ExhaustedSleep == 0 {
		ing.ExhaustedSleep = time.Hour
	}
	if ing.IdleInterval == 0 {
		ing.IdleInterval = 10 * time.Second
	}
	if ing.SlotWait == 0 {
		ing.SlotWait = 2 * time.Second
	}
	if ing.SnapshotEvery == 0 {
		ing.SnapshotEvery = 30 * time.Second
	}
	if ing.StatusEvery == 0 {
		ing.StatusEvery = time.Minute
	}
	if ing.DedupeEvery == 0 {
		ing.DedupeEvery = 50
	}

	for i := range cfg.Credentials {
		if cfg.Credentials[i].DailyLimit == 0 {
			cfg.Credentials[i].DailyLimit = 2000
		}
		if cfg.Credentials[i].MinInterval == 0 {
			cfg.Credentials[i].MinInterval = time.Second
		}
	}

	if cfg.LiveFeed.ReconnectBase == 0 {
		cfg.LiveFeed.ReconnectBase = time.Second
	}
	if cfg.LiveFeed.ReconnectLimit == 0 {
		cfg.LiveFeed.ReconnectLimit = time.Minute
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.DatasetFile == "" {
		cfg.Storage.DatasetFile = filepath.Join(cfg.Storage.DataDir, "bitmaps.csv")
	}
	if cfg.Storage.ProgressFile == "" {
		cfg.Storage.ProgressFile = filepath.Join(cfg.Storage.DataDir, "progress.json")
	}
	if cfg.Storage.EmptiesFile == "" {
		cfg.Storage.EmptiesFile = filepath.Join(cfg.Storage.DataDir, "empties.log")
	}

	if cfg.Snapshot.Debounce == 0 {
		cfg.Snapshot.Debounce = 30 * time.Second
	}
}
