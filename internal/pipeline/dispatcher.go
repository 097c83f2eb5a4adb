package pipeline

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/internal/errors"
	"github.com/y-ookuma/uecs2influxdbV2/internal/registry"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
	"github.com/y-ookuma/uecs2influxdbV2/internal/uecs"
)

// Dispatcher fans datagrams out to a fixed worker pool.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	reg      *registry.Registry
	store    Store
	resolver *DeltaResolver

	jobs chan Datagram

	shutdown chan struct{}
	wg       sync.WaitGroup

	workers      int
	timeout      time.Duration
	drainTimeout time.Duration

	// Worker tracking for graceful drain
	activeWorkers atomic.Int32

	// Metrics
	received      atomic.Int64
	queueDropped  atomic.Int64
	decodeFailed  atomic.Int64
	policyDropped atomic.Int64
	stored        atomic.Int64
	storeFailed   atomic.Int64
	timeouts      atomic.Int64
	panics        atomic.Int64
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Received      int64
	QueueDropped  int64
	DecodeFailed  int64
	PolicyDropped int64
	Stored        int64
	StoreFailed   int64
	Timeouts      int64
	Panics        int64
	QueueUsed     int
}

// NewDispatcher creates a dispatcher routing datagrams through reg into
// store.
func NewDispatcher(cfg *Config, reg *registry.Registry, store Store) *Dispatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Dispatcher{
		reg:          reg,
		store:        store,
		resolver:     NewDeltaResolver(store, cfg.DeltaLookback),
		jobs:         make(chan Datagram, cfg.QueueSize),
		shutdown:     make(chan struct{}),
		workers:      cfg.Workers,
		timeout:      cfg.Timeout,
		drainTimeout: cfg.DrainTimeout,
	}
}

// Start starts the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	log.Info("dispatcher started", "workers", d.workers)
}

// Stop stops the dispatcher, waiting for in-flight datagrams up to the
// drain timeout. Datagrams still queued past the timeout are lost.
func (d *Dispatcher) Stop() {
	log.Info("dispatcher stopping")
	close(d.shutdown)

	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("dispatcher stopped gracefully")
	case <-drainCtx.Done():
		log.Warn("dispatcher drain timeout",
			"active_workers", d.activeWorkers.Load(),
			"queued", len(d.jobs))
	}
}

// Enqueue offers one datagram to the pool without blocking. It reports
// false when the queue is full or the dispatcher is shutting down; the
// datagram is dropped either way.
func (d *Dispatcher) Enqueue(dg Datagram) bool {
	d.received.Add(1)

	select {
	case <-d.shutdown:
		d.queueDropped.Add(1)
		return false
	default:
	}

	select {
	case d.jobs <- dg:
		return true
	default:
		if d.queueDropped.Add(1)%100 == 1 {
			log.Warn("datagram queue full, dropping",
				"queue_size", cap(d.jobs), "dropped", d.queueDropped.Load())
		}
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case dg := <-d.jobs:
			d.processWithRecovery(dg)
		case <-d.shutdown:
			// Drain what is already queued before exiting.
			for {
				select {
				case dg := <-d.jobs:
					d.processWithRecovery(dg)
				default:
					return
				}
			}
		}
	}
}

// processWithRecovery processes one datagram with panic recovery, so a
// poisoned payload cannot take down the pool.
func (d *Dispatcher) processWithRecovery(dg Datagram) {
	d.activeWorkers.Add(1)
	defer func() {
		d.activeWorkers.Add(-1)
		if r := recover(); r != nil {
			d.panics.Add(1)
			log.Error("panic processing datagram", "remote", dg.Remote, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	d.process(ctx, dg)
}

func (d *Dispatcher) process(ctx context.Context, dg Datagram) {
	reading, err := uecs.Decode(dg.Payload, dg.ReceivedAt)
	if err != nil {
		d.decodeFailed.Add(1)
		log.Debug("discarding undecodable datagram", "remote", dg.Remote, "error", err)
		return
	}

	policy := d.reg.Lookup(reading.Signal)
	if !policy.Persist() {
		d.policyDropped.Add(1)
		log.Debug("dropping unpersisted signal", "signal", reading.Signal, "remote", dg.Remote)
		return
	}

	value := reading.Value
	switch {
	case policy.Delta():
		value = d.resolver.Resolve(ctx, reading.Signal, value, reading.ReceivedAt)
	case policy.Round():
		value = math.Round(value)
	}

	point := types.NewPoint(reading.Signal, reading.ReceivedAt, value, reading.Priority)
	if err := d.store.Enqueue(ctx, point); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			d.timeouts.Add(1)
			log.Warn("datagram timed out, dropping",
				"signal", reading.Signal, "timeout", d.timeout)
		} else {
			d.storeFailed.Add(1)
			log.Warn("store enqueue failed", "signal", reading.Signal, "error", err)
		}
		return
	}
	d.stored.Add(1)
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:      d.received.Load(),
		QueueDropped:  d.queueDropped.Load(),
		DecodeFailed:  d.decodeFailed.Load(),
		PolicyDropped: d.policyDropped.Load(),
		Stored:        d.stored.Load(),
		StoreFailed:   d.storeFailed.Load(),
		Timeouts:      d.timeouts.Load(),
		Panics:        d.panics.Load(),
		QueueUsed:     len(d.jobs),
	}
}
