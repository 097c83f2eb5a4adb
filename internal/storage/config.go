package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/config"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/parquet"
)

// Config holds the store configuration.
type Config struct {
	// DataDir is the root directory for segments and the WAL.
	DataDir string

	// Write batching
	BatchSize     int
	FlushInterval time.Duration
	FlushJitter   time.Duration

	// Flush retry policy
	RetryInterval   time.Duration
	RetryMultiplier int
	MaxRetries      int
	MaxRetryDelay   time.Duration

	// WAL
	WALMaxSegmentSize int64

	// Compression is the Parquet compression algorithm name.
	Compression string

	// Percentiles enables DDSketch percentiles on aggregate points.
	Percentiles bool
}

// DefaultConfig returns the store defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:           config.DefaultDataDir,
		BatchSize:         config.DefaultWriteBatchSize,
		FlushInterval:     config.DefaultFlushInterval,
		FlushJitter:       config.DefaultFlushJitter,
		RetryInterval:     config.DefaultRetryInterval,
		RetryMultiplier:   config.DefaultRetryMultiplier,
		MaxRetries:        config.DefaultMaxRetries,
		MaxRetryDelay:     config.DefaultMaxRetryDelay,
		WALMaxSegmentSize: config.DefaultWALMaxSegmentSize,
		Compression:       "zstd",
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval)
	}
	if c.FlushJitter < 0 {
		return fmt.Errorf("flush_jitter must not be negative, got %s", c.FlushJitter)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be at least 1, got %d", c.RetryMultiplier)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// RawDir returns the raw namespace directory.
func (c *Config) RawDir() string { return filepath.Join(c.DataDir, "raw") }

// AggregateDir returns the aggregate namespace directory.
func (c *Config) AggregateDir() string { return filepath.Join(c.DataDir, "aggregate") }

// WALDir returns the write-ahead log directory.
func (c *Config) WALDir() string { return filepath.Join(c.DataDir, "wal") }

// EnsureDirectories creates the namespace directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.RawDir(), c.AggregateDir(), c.WALDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// parquetOptions returns the Parquet writer options for this config.
func (c *Config) parquetOptions() parquet.Options {
	return parquet.Options{Compression: parquet.ParseCompressionType(c.Compression)}
}
