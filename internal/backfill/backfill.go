// Package backfill computes quadrant aggregates for past days.
//
// The scheduler wakes periodically, walks every aggregation-enabled
// signal and fills in whole days of quadrant aggregates that are not
// yet written. A day is only aggregated once its data can no longer
// change: the most recent full day is always held back, and a day that
// already has aggregates is skipped outright, so reruns are idempotent.
package backfill

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/y-ookuma/uecs2influxdbV2/config"
	"github.com/y-ookuma/uecs2influxdbV2/internal/logging"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/aggregate"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

var log = logging.Component("backfill")

// Store is the slice of the store the backfill job needs.
type Store interface {
	LatestTimestamp(ctx context.Context, signal string, since time.Time) (time.Time, bool, error)
	HasAggregates(ctx context.Context, signal string, dayStart time.Time) (bool, error)
	Range(ctx context.Context, signal string, start, end time.Time) ([]types.Point, error)
	WriteAggregates(ctx context.Context, aggregates []types.AggregatePoint) error
	Percentiles() bool
}

// SignalSource yields the signals marked for aggregation. The registry
// implements it.
type SignalSource interface {
	AggregateKeys() []string
}

// Config holds backfill configuration.
type Config struct {
	// Interval is how often a backfill pass runs. The first pass runs
	// immediately at start.
	Interval time.Duration

	// Workers bounds how many signals are processed concurrently.
	Workers int

	// Lookback bounds the latest-raw-point query; a signal silent for
	// longer than this is skipped.
	Lookback time.Duration

	// HoldbackDays is how many most recent days are excluded from
	// aggregation. The default of 1 keeps the current (still growing)
	// day out.
	HoldbackDays int
}

// DefaultConfig returns default backfill configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:     config.DefaultBackfillInterval,
		Workers:      config.DefaultBackfillWorkers,
		Lookback:     config.DefaultBackfillLookback,
		HoldbackDays: config.DefaultHoldbackDays,
	}
}

// Scheduler runs periodic backfill passes.
type Scheduler struct {
	cfg     *Config
	store   Store
	signals SignalSource

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// now is swappable for tests.
	now func() time.Time
}

// New creates a scheduler over store for the signals source yields.
func New(cfg *Config, store Store, signals SignalSource) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{cfg: cfg, store: store, signals: signals, now: time.Now}
}

// Start launches the periodic pass loop. The first pass runs
// immediately so a daemon restarted after downtime catches up without
// waiting a full interval.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.RunOnce(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("backfill scheduler started",
		"interval", s.cfg.Interval, "workers", s.cfg.Workers)
}

// Stop cancels the pass loop and waits for an in-flight pass.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Info("backfill scheduler stopped")
}

// RunOnce executes one full backfill pass. Failures on one signal, day
// or quadrant never abort the pass; they are logged and the pass moves
// on.
func (s *Scheduler) RunOnce(ctx context.Context) {
	signals := s.signals.AggregateKeys()
	if len(signals) == 0 {
		return
	}

	started := s.now()
	log.Info("backfill pass started", "signals", len(signals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, signal := range signals {
		signal := signal
		g.Go(func() error {
			s.backfillSignal(gctx, signal)
			return nil
		})
	}
	g.Wait()

	log.Info("backfill pass finished", "elapsed", s.now().Sub(started))
}

// backfillSignal fills missing aggregate days for one signal.
func (s *Scheduler) backfillSignal(ctx context.Context, signal string) {
	now := s.now()

	latest, found, err := s.store.LatestTimestamp(ctx, signal, now.Add(-s.cfg.Lookback))
	if err != nil {
		log.Warn("latest raw point query failed", "signal", signal, "error", err)
		return
	}
	if !found {
		log.Warn("no recent raw points, skipping signal",
			"signal", signal, "lookback", s.cfg.Lookback)
		return
	}

	today := types.DayStart(now)
	latestDay := types.DayStart(latest)

	// Whole days between the newest raw point and today. Offsets count
	// back from today; the day the newest point landed on and anything
	// newer stays held back until the next pass finds newer data.
	gap := wholeDays(latestDay, today)
	oldestOffset := gap
	newestOffset := s.cfg.HoldbackDays + 1

	// Oldest day first, so an interrupted pass leaves a contiguous
	// aggregated prefix.
	for offset := oldestOffset; offset >= newestOffset; offset-- {
		if ctx.Err() != nil {
			return
		}
		s.backfillDay(ctx, signal, today.AddDate(0, 0, -offset))
	}
}

// backfillDay computes and writes one signal's aggregates for one day.
// The day is written as a single file, so partially aggregated days
// cannot exist; the pre-write existence check makes reruns no-ops.
func (s *Scheduler) backfillDay(ctx context.Context, signal string, day time.Time) {
	has, err := s.store.HasAggregates(ctx, signal, day)
	if err != nil {
		log.Warn("aggregate existence check failed",
			"signal", signal, "day", day.Format("2006-01-02"), "error", err)
		return
	}
	if has {
		return
	}

	var aggregates []types.AggregatePoint
	for _, q := range types.AllQuadrants() {
		start, end := q.Window(day)
		points, err := s.store.Range(ctx, signal, start, end)
		if err != nil {
			log.Warn("quadrant range query failed",
				"signal", signal, "day", day.Format("2006-01-02"),
				"quadrant", q.Label(), "error", err)
			continue
		}
		if len(points) == 0 {
			continue
		}
		aggregates = append(aggregates,
			aggregate.FoldPoints(signal, q, day.UnixMilli(), points, s.store.Percentiles()))
	}

	if len(aggregates) == 0 {
		return
	}

	if err := s.store.WriteAggregates(ctx, aggregates); err != nil {
		log.Warn("aggregate write failed",
			"signal", signal, "day", day.Format("2006-01-02"), "error", err)
		return
	}
	log.Info("day aggregated",
		"signal", signal, "day", day.Format("2006-01-02"), "quadrants", len(aggregates))
}

// wholeDays returns the number of calendar days from a to b, both
// midnights in the same location.
func wholeDays(a, b time.Time) int {
	days := 0
	for t := a; t.Before(b); t = t.AddDate(0, 0, 1) {
		days++
	}
	return days
}
