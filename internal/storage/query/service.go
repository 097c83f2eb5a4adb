// Package query provides read access to the store using DuckDB over the
// Parquet segment files.
//
// All SQL is parameterized; signal keys never reach the query text, so
// unexpected characters in a key cannot break or inject into a query.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/y-ookuma/uecs2influxdbV2/config"
	storeerrors "github.com/y-ookuma/uecs2influxdbV2/internal/errors"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// Service executes store queries against the raw and aggregate namespaces.
//
// Service is safe for concurrent use.
type Service struct {
	mu sync.RWMutex

	db      *sql.DB
	rawDir  string
	aggDir  string
	timeout time.Duration

	queriesExecuted atomic.Int64
	rowsReturned    atomic.Int64
	errors          atomic.Int64
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// New creates a query service over the given namespace directories using
// an in-memory DuckDB instance.
func New(rawDir, aggDir string) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	return &Service{
		db:      db,
		rawDir:  rawDir,
		aggDir:  aggDir,
		timeout: config.DefaultQueryTimeout,
	}, nil
}

// queryCtx derives a per-query deadline so a wedged scan cannot hold a
// caller forever.
func (s *Service) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LastValue returns the most recent raw value for a signal at or after
// since. found is false when no point exists in the window.
func (s *Service) LastValue(ctx context.Context, signal string, since time.Time) (value float64, tsMs int64, found bool, err error) {
	pattern, ok := s.rawPattern()
	if !ok {
		return 0, 0, false, nil
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT value, timestamp_ms
		FROM read_parquet($1)
		WHERE signal = $2
		  AND timestamp_ms >= $3
		  AND cloud = $4
		  AND downsample = $5
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`, pattern, signal, since.UnixMilli(), types.TagNotReplicated, types.TagNotDownsampled)

	if err := row.Scan(&value, &tsMs); err != nil {
		if err == sql.ErrNoRows {
			s.countQuery(0)
			return 0, 0, false, nil
		}
		s.errors.Add(1)
		return 0, 0, false, storeerrors.QueryError("last value", err)
	}

	s.countQuery(1)
	return value, tsMs, true, nil
}

// LatestTimestamp returns the most recent raw timestamp for a signal at or
// after since. found is false when the signal has no data in the window.
func (s *Service) LatestTimestamp(ctx context.Context, signal string, since time.Time) (time.Time, bool, error) {
	_, tsMs, found, err := s.LastValue(ctx, signal, since)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	return time.UnixMilli(tsMs), true, nil
}

// Range returns all raw points for a signal in [start, end), ordered by
// timestamp.
func (s *Service) Range(ctx context.Context, signal string, start, end time.Time) ([]types.Point, error) {
	pattern, ok := s.rawPattern()
	if !ok {
		return nil, nil
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT signal, timestamp_ms, value, priority, cloud, downsample
		FROM read_parquet($1)
		WHERE signal = $2
		  AND timestamp_ms >= $3
		  AND timestamp_ms < $4
		ORDER BY timestamp_ms
	`, pattern, signal, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		s.errors.Add(1)
		return nil, storeerrors.QueryError("range", err)
	}
	defer rows.Close()

	var points []types.Point
	for rows.Next() {
		var p types.Point
		if err := rows.Scan(&p.Signal, &p.TimestampMs, &p.Value, &p.Priority, &p.Cloud, &p.Downsample); err != nil {
			s.errors.Add(1)
			return nil, storeerrors.QueryError("range scan", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		s.errors.Add(1)
		return nil, storeerrors.QueryError("range rows", err)
	}

	s.countQuery(int64(len(points)))
	return points, nil
}

// HasAggregates reports whether any aggregate point exists for the signal
// on the given day. Presence of any quadrant counts as "day done" because
// the backfill writes a day's quadrants as one unit.
func (s *Service) HasAggregates(ctx context.Context, signal string, dayStart time.Time) (bool, error) {
	pattern, ok := s.aggPattern()
	if !ok {
		return false, nil
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	row := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM read_parquet($1)
		WHERE signal = $2
		  AND day_start_ms = $3
	`, pattern, signal, dayStart.UnixMilli())

	if err := row.Scan(&count); err != nil {
		s.errors.Add(1)
		return false, storeerrors.QueryError("aggregate existence", err)
	}

	s.countQuery(1)
	return count > 0, nil
}

// Aggregates returns all aggregate points for a signal on the given day.
func (s *Service) Aggregates(ctx context.Context, signal string, dayStart time.Time) ([]types.AggregatePoint, error) {
	pattern, ok := s.aggPattern()
	if !ok {
		return nil, nil
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT quadrant, signal, day_start_ms, count, sum, min, max, mean, p50, p95
		FROM read_parquet($1)
		WHERE signal = $2
		  AND day_start_ms = $3
		ORDER BY quadrant
	`, pattern, signal, dayStart.UnixMilli())
	if err != nil {
		s.errors.Add(1)
		return nil, storeerrors.QueryError("aggregates", err)
	}
	defer rows.Close()

	var results []types.AggregatePoint
	for rows.Next() {
		var label string
		var a types.AggregatePoint
		var p50, p95 sql.NullFloat64
		if err := rows.Scan(&label, &a.Signal, &a.DayStartMs, &a.Count, &a.Sum, &a.Min, &a.Max, &a.Mean, &p50, &p95); err != nil {
			s.errors.Add(1)
			return nil, storeerrors.QueryError("aggregates scan", err)
		}
		if q, err := types.ParseQuadrant(label); err == nil {
			a.Quadrant = q
		}
		if p50.Valid {
			a.SetPercentiles(p50.Float64, p95.Float64)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		s.errors.Add(1)
		return nil, storeerrors.QueryError("aggregates rows", err)
	}

	s.countQuery(int64(len(results)))
	return results, nil
}

// Stats returns query statistics.
func (s *Service) Stats() Stats {
	return Stats{
		QueriesExecuted: s.queriesExecuted.Load(),
		RowsReturned:    s.rowsReturned.Load(),
		Errors:          s.errors.Load(),
	}
}

// rawPattern returns the raw namespace glob, or ok=false when the
// namespace holds no segments yet (read_parquet fails on empty globs).
func (s *Service) rawPattern() (string, bool) {
	return globIfAny(filepath.Join(s.rawDir, "*.parquet"))
}

func (s *Service) aggPattern() (string, bool) {
	return globIfAny(filepath.Join(s.aggDir, "*.parquet"))
}

func globIfAny(pattern string) (string, bool) {
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return pattern, true
}

func (s *Service) countQuery(rows int64) {
	s.queriesExecuted.Add(1)
	s.rowsReturned.Add(rows)
}
