package loader

import (
	"strconv"
	"strings"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/config"
)

// Config is the full daemon configuration as loaded from YAML.
type Config struct {
	// Listen is the UDP listen address for CCM broadcasts.
	Listen string `yaml:"listen"`

	// ReadBufferSize is the per-datagram read buffer in bytes.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// Registry is the path to the signal policy descriptor.
	Registry string `yaml:"registry"`

	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Backfill BackfillConfig `yaml:"backfill"`

	// DeltaLookback bounds the prior value query for delta signals.
	DeltaLookback Duration `yaml:"delta_lookback"`
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// StoreConfig controls the embedded point store.
type StoreConfig struct {
	DataDir           string   `yaml:"data_dir"`
	BatchSize         int      `yaml:"batch_size"`
	FlushInterval     Duration `yaml:"flush_interval"`
	FlushJitter       Duration `yaml:"flush_jitter"`
	RetryInterval     Duration `yaml:"retry_interval"`
	RetryMultiplier   int      `yaml:"retry_multiplier"`
	MaxRetries        int      `yaml:"max_retries"`
	MaxRetryDelay     Duration `yaml:"max_retry_delay"`
	WALMaxSegmentSize ByteSize `yaml:"wal_max_segment_size"`
	Compression       string   `yaml:"compression"`
	Percentiles       bool     `yaml:"percentiles"`
}

// DispatchConfig controls the datagram worker pool.
type DispatchConfig struct {
	Workers      int      `yaml:"workers"`
	QueueSize    int      `yaml:"queue_size"`
	Timeout      Duration `yaml:"timeout"`
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// BackfillConfig controls the quadrant aggregation scheduler.
type BackfillConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Interval     Duration `yaml:"interval"`
	Workers      int      `yaml:"workers"`
	Lookback     Duration `yaml:"lookback"`
	HoldbackDays int      `yaml:"holdback_days"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Listen:         config.DefaultListenAddress,
		ReadBufferSize: config.DefaultReadBufferSize,
		Registry:       "receive_ccm.json",

		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},

		Store: StoreConfig{
			DataDir:           config.DefaultDataDir,
			BatchSize:         config.DefaultWriteBatchSize,
			FlushInterval:     Duration(config.DefaultFlushInterval),
			FlushJitter:       Duration(config.DefaultFlushJitter),
			RetryInterval:     Duration(config.DefaultRetryInterval),
			RetryMultiplier:   config.DefaultRetryMultiplier,
			MaxRetries:        config.DefaultMaxRetries,
			MaxRetryDelay:     Duration(config.DefaultMaxRetryDelay),
			WALMaxSegmentSize: ByteSize(config.DefaultWALMaxSegmentSize),
			Compression:       "zstd",
			Percentiles:       true,
		},

		Dispatch: DispatchConfig{
			Workers:      config.DefaultDispatchWorkers,
			QueueSize:    config.DefaultDispatchQueueSize,
			Timeout:      Duration(config.DefaultDispatchTimeout),
			DrainTimeout: Duration(config.DefaultDrainTimeout),
		},

		Backfill: BackfillConfig{
			Enabled:      true,
			Interval:     Duration(config.DefaultBackfillInterval),
			Workers:      config.DefaultBackfillWorkers,
			Lookback:     Duration(config.DefaultBackfillLookback),
			HoldbackDays: config.DefaultHoldbackDays,
		},

		DeltaLookback: Duration(config.DefaultDeltaLookback),
	}
}

// Duration is a time.Duration that can be unmarshaled from YAML,
// either as a duration string ("10s") or a bare integer of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		// Bare integers arrive as strings too; treat them as seconds.
		secs, serr := strconv.ParseInt(s, 10, 64)
		if serr != nil {
			return err
		}
		dur = time.Duration(secs) * time.Second
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes that can be unmarshaled from YAML.
// Supports "16MB", "512KB" or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var i int64
		if err := unmarshal(&i); err != nil {
			return err
		}
		*b = ByteSize(i)
		return nil
	}
	size, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// parseByteSize parses a size string like "16MB".
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	units := []struct {
		suffix string
		scale  int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 10, 64)
			if err != nil {
				return 0, err
			}
			return n * u.scale, nil
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
