// Package loader handles configuration file loading and validation.
//
// Configuration is YAML with environment variable expansion; every
// field has a default, so an empty file is a valid configuration.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/y-ookuma/uecs2influxdbV2/internal/errors"
)

// Load loads configuration from a YAML file. Defaults are applied
// first, then the file's values layered on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run
// with.
func Validate(cfg *Config) error {
	fail := func(field, msg string) error {
		return errors.ConfigError(field, fmt.Errorf("%s: %w", msg, errors.ErrInvalidConfig))
	}

	if cfg.Listen == "" {
		return fail("listen", "cannot be empty")
	}
	if cfg.ReadBufferSize <= 0 {
		return fail("read_buffer_size", "must be positive")
	}
	if cfg.Registry == "" {
		return fail("registry", "cannot be empty")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fail("log.level", "must be debug, info, warn or error")
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fail("log.format", "must be text or json")
	}

	if cfg.Store.DataDir == "" {
		return fail("store.data_dir", "cannot be empty")
	}
	if cfg.Store.BatchSize <= 0 {
		return fail("store.batch_size", "must be positive")
	}
	if cfg.Store.FlushInterval.Duration() <= 0 {
		return fail("store.flush_interval", "must be positive")
	}
	if cfg.Store.FlushJitter.Duration() < 0 {
		return fail("store.flush_jitter", "cannot be negative")
	}
	if cfg.Store.RetryMultiplier < 1 {
		return fail("store.retry_multiplier", "must be at least 1")
	}
	if cfg.Store.MaxRetries < 1 {
		return fail("store.max_retries", "must be at least 1")
	}
	if cfg.Store.WALMaxSegmentSize <= 0 {
		return fail("store.wal_max_segment_size", "must be positive")
	}

	if cfg.Dispatch.Workers <= 0 {
		return fail("dispatch.workers", "must be positive")
	}
	if cfg.Dispatch.QueueSize <= 0 {
		return fail("dispatch.queue_size", "must be positive")
	}
	if cfg.Dispatch.Timeout.Duration() <= 0 {
		return fail("dispatch.timeout", "must be positive")
	}

	if cfg.DeltaLookback.Duration() <= 0 {
		return fail("delta_lookback", "must be positive")
	}

	if cfg.Backfill.Enabled {
		if cfg.Backfill.Interval.Duration() <= 0 {
			return fail("backfill.interval", "must be positive")
		}
		if cfg.Backfill.Workers <= 0 {
			return fail("backfill.workers", "must be positive")
		}
		if cfg.Backfill.Lookback.Duration() <= 0 {
			return fail("backfill.lookback", "must be positive")
		}
		if cfg.Backfill.HoldbackDays < 0 {
			return fail("backfill.holdback_days", "cannot be negative")
		}
	}

	return nil
}
