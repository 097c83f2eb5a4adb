// Package storage implements the embedded time-series store.
//
// Write path: accepted points are appended to a write-ahead log, indexed
// for last-value lookups, and batched; batches flush to immutable Parquet
// segments in the raw namespace on a size or (jittered) time trigger, with
// exponential backoff on flush failure. The aggregate namespace is a
// separate directory written only by the backfill scheduler.
//
// Read path: DuckDB over the segment files (internal/storage/query),
// merged with the in-memory last-value index for freshness.
package storage

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	storeerrors "github.com/y-ookuma/uecs2influxdbV2/internal/errors"
	"github.com/y-ookuma/uecs2influxdbV2/internal/logging"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/parquet"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/query"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/wal"
)

var log = logging.Component("storage")

// Service is the store facade used by the pipeline and the backfill
// scheduler.
type Service struct {
	cfg Config

	wal   *wal.Writer
	query *query.Service
	last  *lastIndex

	mu    sync.Mutex
	batch *types.PointBatch

	flushCh chan struct{}

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	stats serviceStats
}

type serviceStats struct {
	pointsEnqueued    atomic.Int64
	pointsFlushed     atomic.Int64
	pointsLost        atomic.Int64
	pointsRecovered   atomic.Int64
	flushesCompleted  atomic.Int64
	flushFailures     atomic.Int64
	aggregatesWritten atomic.Int64
}

// Stats is a snapshot of store statistics.
type Stats struct {
	PointsEnqueued    int64
	PointsFlushed     int64
	PointsLost        int64
	PointsRecovered   int64
	FlushesCompleted  int64
	FlushFailures     int64
	AggregatesWritten int64
	Pending           int
	Query             query.Stats
}

// New creates the store, recovering any points left in the WAL by a
// previous run.
func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	walWriter, err := wal.NewWriter(cfg.WALDir(), cfg.WALMaxSegmentSize)
	if err != nil {
		return nil, fmt.Errorf("create wal: %w", err)
	}

	qry, err := query.New(cfg.RawDir(), cfg.AggregateDir())
	if err != nil {
		walWriter.Close()
		return nil, fmt.Errorf("create query service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:     cfg,
		wal:     walWriter,
		query:   qry,
		last:    newLastIndex(),
		batch:   types.NewPointBatch(cfg.BatchSize),
		flushCh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := s.recover(); err != nil {
		log.Warn("wal recovery incomplete", "error", err)
	}

	return s, nil
}

// recover replays WAL segments from a previous run into a recovery
// segment, then removes them.
func (s *Service) recover() error {
	segments, err := wal.ListSegments(s.cfg.WALDir())
	if err != nil {
		return err
	}

	var recovered []types.Point
	var replayed []string
	for _, path := range segments {
		if path == s.wal.CurrentSegment() {
			continue
		}
		points, err := wal.ReadSegment(path)
		if err != nil {
			log.Warn("skipping unreadable wal segment", "segment", path, "error", err)
			continue
		}
		recovered = append(recovered, points...)
		replayed = append(replayed, path)
	}

	if len(recovered) > 0 {
		path := s.segmentPath()
		if err := parquet.WritePointsFile(path, recovered, s.cfg.parquetOptions()); err != nil {
			return fmt.Errorf("write recovery segment: %w", err)
		}
		for _, p := range recovered {
			s.last.Update(p)
		}
		s.stats.pointsRecovered.Add(int64(len(recovered)))
		log.Info("recovered points from wal", "points", len(recovered), "segments", len(replayed))
	}

	for _, path := range replayed {
		os.Remove(path)
	}
	return nil
}

// Start starts the flush worker.
func (s *Service) Start() error {
	if s.running.Load() {
		return fmt.Errorf("store already running")
	}
	s.running.Store(true)

	s.wg.Add(1)
	go s.flushWorker()

	log.Info("store started",
		"data_dir", s.cfg.DataDir,
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval)
	return nil
}

// Stop flushes pending points and closes the store.
func (s *Service) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()
	s.wg.Wait()

	// Final flush with a bounded grace period.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushInterval)
	defer cancel()
	s.flush(ctx)

	if err := s.wal.Close(); err != nil {
		return fmt.Errorf("close wal: %w", err)
	}
	return s.query.Close()
}

// =============================================================================
// Write path
// =============================================================================

// Enqueue accepts a finalized point for persistence. The point is durable
// (WAL) once Enqueue returns; the segment write happens on the next flush.
func (s *Service) Enqueue(ctx context.Context, p types.Point) error {
	if !s.running.Load() {
		return storeerrors.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// The WAL append and the batch append happen under one lock so a
	// concurrent flush cannot rotate the WAL between them and strand the
	// point's durability record behind the cut.
	s.mu.Lock()
	if err := s.wal.Write([]types.Point{p}); err != nil {
		s.mu.Unlock()
		return storeerrors.WriteError("wal append", err)
	}
	s.batch.Add(p)
	full := s.batch.Len() >= s.cfg.BatchSize
	s.mu.Unlock()

	s.last.Update(p)

	s.stats.pointsEnqueued.Add(1)

	if full {
		s.signalFlush()
	}
	return nil
}

// flushWorker flushes the batch on a jittered interval or an explicit
// signal.
func (s *Service) flushWorker() {
	defer s.wg.Done()

	timer := time.NewTimer(s.nextFlushDelay())
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			s.flush(s.ctx)
			timer.Reset(s.nextFlushDelay())
		case <-s.flushCh:
			s.flush(s.ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.nextFlushDelay())
		}
	}
}

// nextFlushDelay returns the flush interval plus random jitter so many
// writer instances do not flush in lockstep.
func (s *Service) nextFlushDelay() time.Duration {
	delay := s.cfg.FlushInterval
	if s.cfg.FlushJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(s.cfg.FlushJitter)))
	}
	return delay
}

func (s *Service) signalFlush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
		// Flush already pending
	}
}

// flush writes the current batch as one raw segment, retrying with
// exponential backoff. After exhausting retries the batch is logged as
// lost; the writer never blocks ingestion indefinitely on a degraded
// store.
func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	if s.batch.Len() == 0 {
		s.mu.Unlock()
		return
	}
	points := s.batch.Points
	s.batch = types.NewPointBatch(s.cfg.BatchSize)

	// Rotate the WAL while still holding the batch lock so every point in
	// this batch sits in a segment older than the cut.
	cut, rotErr := s.wal.Rotate()
	s.mu.Unlock()
	if rotErr != nil {
		log.Warn("wal rotate failed", "error", rotErr)
	}

	path := s.segmentPath()
	attempts := s.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		err := parquet.WritePointsFile(path, points, s.cfg.parquetOptions())
		if err == nil {
			if cut != "" {
				if err := s.wal.RemoveOlderThan(cut); err != nil {
					log.Warn("wal cleanup failed", "error", err)
				}
			}
			s.stats.pointsFlushed.Add(int64(len(points)))
			s.stats.flushesCompleted.Add(1)
			log.Debug("flushed segment", "points", len(points), "segment", filepath.Base(path))
			return
		}

		s.stats.flushFailures.Add(1)
		if attempt == attempts {
			s.stats.pointsLost.Add(int64(len(points)))
			log.Error("batch lost after retries",
				"points", len(points),
				"attempts", attempts,
				"error", err)
			return
		}

		delay := s.retryDelay(attempt)
		log.Warn("segment flush failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			s.stats.pointsLost.Add(int64(len(points)))
			log.Error("batch lost on shutdown during retry", "points", len(points))
			return
		case <-time.After(delay):
		}
	}
}

// retryDelay returns the backoff delay after the given attempt number.
func (s *Service) retryDelay(attempt int) time.Duration {
	delay := s.cfg.RetryInterval
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(s.cfg.RetryMultiplier)
		if delay >= s.cfg.MaxRetryDelay {
			return s.cfg.MaxRetryDelay
		}
	}
	if delay > s.cfg.MaxRetryDelay {
		delay = s.cfg.MaxRetryDelay
	}
	return delay
}

// ForceFlush triggers an immediate flush.
func (s *Service) ForceFlush() {
	s.signalFlush()
}

// segmentPath returns a fresh raw segment path, sortable by creation time.
func (s *Service) segmentPath() string {
	return filepath.Join(s.cfg.RawDir(), fmt.Sprintf("%020d.parquet", time.Now().UnixNano()))
}

// =============================================================================
// Aggregate namespace
// =============================================================================

// WriteAggregates writes a day's aggregate points for one signal as a
// single segment, so the day's quadrants appear atomically.
func (s *Service) WriteAggregates(ctx context.Context, aggregates []types.AggregatePoint) error {
	if len(aggregates) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	day := aggregates[0].DayStartTime().UTC().Format("2006-01-02")
	name := fmt.Sprintf("%s_%s.parquet", day, sanitizeSignal(aggregates[0].Signal))
	path := filepath.Join(s.cfg.AggregateDir(), name)

	if err := parquet.WriteAggregatesFile(path, aggregates, s.cfg.parquetOptions()); err != nil {
		return storeerrors.WriteError("aggregate segment", err)
	}

	s.stats.aggregatesWritten.Add(int64(len(aggregates)))
	return nil
}

// sanitizeSignal maps a signal key to a safe file name fragment. Canonical
// keys are already lowercase words, but descriptor typos must not escape
// the namespace directory.
func sanitizeSignal(signal string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, signal)
}

// =============================================================================
// Read path
// =============================================================================

// LastValue returns the most recent raw value for a signal at or after
// since, merging segment data with points still in the write path.
func (s *Service) LastValue(ctx context.Context, signal string, since time.Time) (float64, bool, error) {
	idxVal, idxTs, idxOK := s.last.Get(signal)
	if idxOK && idxTs < since.UnixMilli() {
		idxOK = false
	}

	qVal, qTs, qOK, err := s.query.LastValue(ctx, signal, since)
	if err != nil {
		if idxOK {
			return idxVal, true, nil
		}
		return 0, false, err
	}

	switch {
	case idxOK && (!qOK || idxTs >= qTs):
		return idxVal, true, nil
	case qOK:
		return qVal, true, nil
	default:
		return 0, false, nil
	}
}

// LatestTimestamp returns the most recent raw timestamp for a signal at or
// after since.
func (s *Service) LatestTimestamp(ctx context.Context, signal string, since time.Time) (time.Time, bool, error) {
	_, idxTs, idxOK := s.last.Get(signal)
	if idxOK && idxTs < since.UnixMilli() {
		idxOK = false
	}

	qTime, qOK, err := s.query.LatestTimestamp(ctx, signal, since)
	if err != nil {
		if idxOK {
			return time.UnixMilli(idxTs), true, nil
		}
		return time.Time{}, false, err
	}

	switch {
	case idxOK && (!qOK || idxTs >= qTime.UnixMilli()):
		return time.UnixMilli(idxTs), true, nil
	case qOK:
		return qTime, true, nil
	default:
		return time.Time{}, false, nil
	}
}

// Range returns raw points for a signal in [start, end).
func (s *Service) Range(ctx context.Context, signal string, start, end time.Time) ([]types.Point, error) {
	return s.query.Range(ctx, signal, start, end)
}

// HasAggregates reports whether the signal already has any aggregate for
// the given day.
func (s *Service) HasAggregates(ctx context.Context, signal string, dayStart time.Time) (bool, error) {
	return s.query.HasAggregates(ctx, signal, dayStart)
}

// Aggregates returns the aggregate points for a signal and day.
func (s *Service) Aggregates(ctx context.Context, signal string, dayStart time.Time) ([]types.AggregatePoint, error) {
	return s.query.Aggregates(ctx, signal, dayStart)
}

// Percentiles reports whether aggregate percentiles are enabled.
func (s *Service) Percentiles() bool {
	return s.cfg.Percentiles
}

// Stats returns a snapshot of store statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	pending := s.batch.Len()
	s.mu.Unlock()

	return Stats{
		PointsEnqueued:    s.stats.pointsEnqueued.Load(),
		PointsFlushed:     s.stats.pointsFlushed.Load(),
		PointsLost:        s.stats.pointsLost.Load(),
		PointsRecovered:   s.stats.pointsRecovered.Load(),
		FlushesCompleted:  s.stats.flushesCompleted.Load(),
		FlushFailures:     s.stats.flushFailures.Load(),
		AggregatesWritten: s.stats.aggregatesWritten.Load(),
		Pending:           pending,
		Query:             s.query.Stats(),
	}
}

// IsRunning returns whether the store is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}
