// Package pipeline turns raw datagrams into stored points.
//
// The dispatcher owns a bounded job queue and a fixed worker pool.
// Each worker decodes the datagram, looks up the signal's persistence
// policy, applies the policy transform (drop, delta, round) and hands
// the resulting point to the store. The enqueue side never blocks: when
// the queue is full the datagram is dropped and counted, so a slow
// store cannot back up into the UDP read loop.
package pipeline

import (
	"context"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/config"
	"github.com/y-ookuma/uecs2influxdbV2/internal/logging"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

var log = logging.Component("pipeline")

// Store is the slice of the store the pipeline needs: appending points
// and reading back the last stored value for delta computation.
type Store interface {
	Enqueue(ctx context.Context, p types.Point) error
	LastValue(ctx context.Context, signal string, since time.Time) (float64, bool, error)
}

// Datagram is one received UDP payload awaiting processing.
// Payload must not be aliased to the listener's read buffer.
type Datagram struct {
	Payload    []byte
	ReceivedAt time.Time
	Remote     string
}

// Config holds pipeline configuration.
type Config struct {
	// Workers is the number of concurrent processing workers.
	Workers int

	// QueueSize is the datagram queue capacity.
	QueueSize int

	// Timeout bounds the processing of one datagram, store write
	// included.
	Timeout time.Duration

	// DrainTimeout is how long to wait for in-flight datagrams during
	// shutdown.
	DrainTimeout time.Duration

	// DeltaLookback bounds how far back the prior value query reaches.
	DeltaLookback time.Duration
}

// DefaultConfig returns default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:       config.DefaultDispatchWorkers,
		QueueSize:     config.DefaultDispatchQueueSize,
		Timeout:       config.DefaultDispatchTimeout,
		DrainTimeout:  config.DefaultDrainTimeout,
		DeltaLookback: config.DefaultDeltaLookback,
	}
}
