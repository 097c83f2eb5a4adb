// Package config provides configuration defaults and utilities
// for the uecs2influxdb daemon.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the UDP address CCM broadcasts arrive on.
	// Port 16520 is the fixed UECS broadcast port.
	// Override via config: listen
	DefaultListenAddress = "0.0.0.0:16520"

	// DefaultReadBufferSize is the maximum datagram size read from the socket.
	// CCM messages are small XML blobs; 512 bytes covers the protocol.
	// Override via config: read_buffer_size
	DefaultReadBufferSize = 512
)

// =============================================================================
// Dispatcher Defaults
// =============================================================================

const (
	// DefaultDispatchWorkers is the number of concurrent message workers.
	// Each worker processes one CCM message at a time.
	// Override via config: dispatch.workers
	DefaultDispatchWorkers = 16

	// DefaultDispatchQueueSize is the job queue capacity.
	// When full, incoming messages are dropped (backpressure).
	// Override via config: dispatch.queue_size
	DefaultDispatchQueueSize = 1024

	// DefaultDispatchTimeout is the wall-clock budget per message.
	// A message still in flight after this deadline is cancelled and dropped.
	// Override via config: dispatch.timeout
	DefaultDispatchTimeout = 5 * time.Second

	// DefaultDrainTimeout is how long to wait for in-flight messages
	// during shutdown. After this timeout, remaining jobs are abandoned.
	// Override via config: dispatch.drain_timeout
	DefaultDrainTimeout = 30 * time.Second
)

// =============================================================================
// Store Writer Defaults
// =============================================================================

const (
	// DefaultWriteBatchSize is the number of points that triggers a flush.
	// Override via config: store.batch_size
	DefaultWriteBatchSize = 500

	// DefaultFlushInterval is the maximum time points wait in the batch.
	// Override via config: store.flush_interval
	DefaultFlushInterval = 10 * time.Second

	// DefaultFlushJitter is the maximum random delay added to the flush
	// interval so many writers do not flush in lockstep.
	// Override via config: store.flush_jitter
	DefaultFlushJitter = 2 * time.Second

	// DefaultRetryInterval is the base delay between flush retries.
	// Override via config: store.retry_interval
	DefaultRetryInterval = 5 * time.Second

	// DefaultRetryMultiplier is the exponential backoff multiplier.
	// Override via config: store.retry_multiplier
	DefaultRetryMultiplier = 2

	// DefaultMaxRetries is the number of flush attempts before a batch
	// is logged as lost.
	// Override via config: store.max_retries
	DefaultMaxRetries = 5

	// DefaultMaxRetryDelay caps the backoff delay between retries.
	// Override via config: store.max_retry_delay
	DefaultMaxRetryDelay = 30 * time.Second
)

// =============================================================================
// Delta Resolver Defaults
// =============================================================================

const (
	// DefaultDeltaLookback bounds the last-value query used to compute
	// deltas. Long enough to tolerate gaps, short enough to bound query
	// cost.
	// Override via config: delta_lookback
	DefaultDeltaLookback = 365 * 24 * time.Hour
)

// =============================================================================
// Backfill Defaults
// =============================================================================

const (
	// DefaultBackfillInterval is the cadence of the aggregate backfill run.
	// Override via config: backfill.interval
	DefaultBackfillInterval = 6 * time.Hour

	// DefaultBackfillWorkers bounds concurrent per-signal backfills.
	// Signal backfills are independent and idempotent.
	// Override via config: backfill.workers
	DefaultBackfillWorkers = 4

	// DefaultBackfillLookback bounds the latest-timestamp query used to
	// find each signal's most recent raw data.
	// Override via config: backfill.lookback
	DefaultBackfillLookback = 30 * 24 * time.Hour

	// DefaultHoldbackDays is the number of most recent days excluded from
	// aggregation. Data for the current and previous day may still be
	// arriving.
	// Override via config: backfill.holdback_days
	DefaultHoldbackDays = 1
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultDataDir is the root directory for store segments and WAL.
	// Override via config: store.data_dir
	DefaultDataDir = "data"

	// DefaultWALMaxSegmentSize is the WAL segment rotation threshold.
	DefaultWALMaxSegmentSize = 16 * 1024 * 1024

	// DefaultQueryTimeout bounds individual store queries.
	// Override via config: store.query_timeout
	DefaultQueryTimeout = 30 * time.Second
)
