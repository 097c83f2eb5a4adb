package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/wal"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.FlushInterval = 100 * time.Millisecond
	cfg.FlushJitter = 10 * time.Millisecond
	cfg.RetryInterval = 10 * time.Millisecond
	return cfg
}

func mustStart(t *testing.T, cfg Config) *Service {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatal(err)
	}
	return len(entries)
}

func waitForFiles(t *testing.T, dir string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if countFiles(t, dir) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d files in %s", n, dir)
}

func TestEnqueueFlushAndQuery(t *testing.T) {
	cfg := testConfig(t)
	s := mustStart(t, cfg)

	base := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		p := types.NewPoint("inairtemp_1_1_1", base.Add(time.Duration(i)*time.Second), float64(20+i), 15)
		if err := s.Enqueue(ctx, p); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if countFiles(t, cfg.RawDir()) == 0 {
		t.Fatal("no raw segment written on stop")
	}

	// A fresh instance sees the flushed data through the query layer.
	s2, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s2.Stop()

	v, ok, err := s2.LastValue(ctx, "inairtemp_1_1_1", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LastValue: %v", err)
	}
	if !ok || v != 24 {
		t.Errorf("LastValue = %v/%v, want 24/true", v, ok)
	}

	points, err := s2.Range(ctx, "inairtemp_1_1_1", base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(points) != 5 {
		t.Errorf("range points = %d, want 5", len(points))
	}
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 2
	cfg.FlushInterval = time.Hour // only the size trigger should fire
	s := mustStart(t, cfg)
	defer s.Stop()

	ctx := context.Background()
	now := time.Now()
	s.Enqueue(ctx, types.NewPoint("a_1_1_1", now, 1, 1))
	s.Enqueue(ctx, types.NewPoint("a_1_1_1", now.Add(time.Second), 2, 1))

	waitForFiles(t, cfg.RawDir(), 1)
}

func TestLastValueFromWritePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlushInterval = time.Hour
	s := mustStart(t, cfg)
	defer s.Stop()

	ctx := context.Background()
	ts := time.Now()
	s.Enqueue(ctx, types.NewPoint("inairco2_1_1_1", ts, 412, 15))

	// Nothing flushed yet: the value must come from the in-memory index.
	v, ok, err := s.LastValue(ctx, "inairco2_1_1_1", ts.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LastValue: %v", err)
	}
	if !ok || v != 412 {
		t.Errorf("LastValue = %v/%v, want 412/true", v, ok)
	}
}

func TestLastValueUnknownSignal(t *testing.T) {
	cfg := testConfig(t)
	s := mustStart(t, cfg)
	defer s.Stop()

	_, ok, err := s.LastValue(context.Background(), "nosuch_1_1_1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("LastValue: %v", err)
	}
	if ok {
		t.Error("unknown signal reported a value")
	}
}

func TestWALRecovery(t *testing.T) {
	cfg := testConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crashed writer: WAL records exist but no segment was
	// flushed.
	w, err := wal.NewWriter(cfg.WALDir(), cfg.WALMaxSegmentSize)
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	orphaned := []types.Point{
		types.NewPoint("inairtemp_1_1_1", ts, 21, 15),
		types.NewPoint("inairtemp_1_1_1", ts.Add(time.Second), 23, 15),
	}
	if err := w.Write(orphaned); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	if got := s.Stats().PointsRecovered; got != 2 {
		t.Errorf("pointsRecovered = %d, want 2", got)
	}
	if countFiles(t, cfg.RawDir()) == 0 {
		t.Error("recovery wrote no segment")
	}

	v, ok, err := s.LastValue(context.Background(), "inairtemp_1_1_1", ts.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LastValue: %v", err)
	}
	if !ok || v != 23 {
		t.Errorf("LastValue after recovery = %v/%v, want 23/true", v, ok)
	}
}

func TestWriteAggregates(t *testing.T) {
	cfg := testConfig(t)
	s := mustStart(t, cfg)
	defer s.Stop()

	ctx := context.Background()
	day := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	aggs := []types.AggregatePoint{
		{Quadrant: types.QuadrantNight, Signal: "inairtemp_1_1_1", DayStartMs: day.UnixMilli(), Count: 3, Sum: 60, Min: 19, Max: 21, Mean: 20},
		{Quadrant: types.QuadrantMorning, Signal: "inairtemp_1_1_1", DayStartMs: day.UnixMilli(), Count: 2, Sum: 44, Min: 21, Max: 23, Mean: 22},
	}
	if err := s.WriteAggregates(ctx, aggs); err != nil {
		t.Fatalf("WriteAggregates: %v", err)
	}

	name := filepath.Join(cfg.AggregateDir(), "2026-03-08_inairtemp_1_1_1.parquet")
	if _, err := os.Stat(name); err != nil {
		t.Fatalf("day file missing: %v", err)
	}

	has, err := s.HasAggregates(ctx, "inairtemp_1_1_1", day)
	if err != nil {
		t.Fatalf("HasAggregates: %v", err)
	}
	if !has {
		t.Error("HasAggregates = false after write")
	}

	got, err := s.Aggregates(ctx, "inairtemp_1_1_1", day)
	if err != nil {
		t.Fatalf("Aggregates: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("aggregates = %d, want 2", len(got))
	}
}

func TestHasAggregatesEmptyStore(t *testing.T) {
	cfg := testConfig(t)
	s := mustStart(t, cfg)
	defer s.Stop()

	has, err := s.HasAggregates(context.Background(), "inairtemp_1_1_1",
		time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("HasAggregates: %v", err)
	}
	if has {
		t.Error("empty store reports aggregates")
	}
}

func TestEnqueueWhenStopped(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Enqueue(context.Background(), types.NewPoint("a_1_1_1", time.Now(), 1, 1)); err == nil {
		t.Error("expected error enqueueing into a stopped store")
	}
}

func TestRetryDelay(t *testing.T) {
	s := &Service{cfg: Config{
		RetryInterval:   5 * time.Second,
		RetryMultiplier: 2,
		MaxRetryDelay:   30 * time.Second,
	}}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 30 * time.Second},
		{5, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := s.retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestSanitizeSignal(t *testing.T) {
	tests := []struct{ in, want string }{
		{"inairtemp_1_1_1", "inairtemp_1_1_1"},
		{"../../etc/passwd", "------etc-passwd"},
		{"Tmp/room", "-mp-room"},
	}
	for _, tt := range tests {
		if got := sanitizeSignal(tt.in); got != tt.want {
			t.Errorf("sanitizeSignal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
