package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

func TestWindowStatistics(t *testing.T) {
	w := NewWindow("inairtemp_1_1_1", types.QuadrantMorning, 0, false)
	for _, v := range []float64{18, 20, 22, 24} {
		w.Add(v)
	}

	r := w.Result()
	if r.Count != 4 {
		t.Errorf("count = %d, want 4", r.Count)
	}
	if r.Sum != 84 {
		t.Errorf("sum = %v, want 84", r.Sum)
	}
	if r.Mean != 21 {
		t.Errorf("mean = %v, want 21", r.Mean)
	}
	if r.Min != 18 || r.Max != 24 {
		t.Errorf("min/max = %v/%v, want 18/24", r.Min, r.Max)
	}
	if r.HasPercentiles() {
		t.Error("percentiles present without sketch")
	}
}

func TestEmptyWindow(t *testing.T) {
	w := NewWindow("inairtemp_1_1_1", types.QuadrantNight, 0, true)
	if !w.IsEmpty() {
		t.Error("new window should be empty")
	}
	r := w.Result()
	if !r.IsEmpty() {
		t.Error("result of empty window should report empty")
	}
	if r.HasPercentiles() {
		t.Error("empty window must not carry percentiles")
	}
}

func TestWindowPercentiles(t *testing.T) {
	w := NewWindow("inairtemp_1_1_1", types.QuadrantDay, 0, true)
	for v := 1.0; v <= 100; v++ {
		w.Add(v)
	}

	r := w.Result()
	if !r.HasPercentiles() {
		t.Fatal("percentiles missing")
	}
	// DDSketch guarantees 1% relative accuracy.
	if math.Abs(*r.P50-50)/50 > 0.02 {
		t.Errorf("p50 = %v, want ~50", *r.P50)
	}
	if math.Abs(*r.P95-95)/95 > 0.02 {
		t.Errorf("p95 = %v, want ~95", *r.P95)
	}
}

func TestFoldPoints(t *testing.T) {
	day := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	points := []types.Point{
		types.NewPoint("inairtemp_1_1_1", day.Add(13*time.Hour), 25, 1),
		types.NewPoint("inairtemp_1_1_1", day.Add(14*time.Hour), 27, 1),
	}

	r := FoldPoints("inairtemp_1_1_1", types.QuadrantDay, day.UnixMilli(), points, false)
	if r.Quadrant != types.QuadrantDay {
		t.Errorf("quadrant = %v", r.Quadrant)
	}
	if r.Signal != "inairtemp_1_1_1" {
		t.Errorf("signal = %q", r.Signal)
	}
	if r.Count != 2 || r.Mean != 26 {
		t.Errorf("count/mean = %d/%v, want 2/26", r.Count, r.Mean)
	}
}

func TestWindowNegativeValues(t *testing.T) {
	w := NewWindow("outairtemp_1_1_1", types.QuadrantNight, 0, false)
	w.Add(-5)
	w.Add(-1)

	r := w.Result()
	if r.Min != -5 || r.Max != -1 {
		t.Errorf("min/max = %v/%v, want -5/-1", r.Min, r.Max)
	}
	if r.Mean != -3 {
		t.Errorf("mean = %v, want -3", r.Mean)
	}
}
