// Package aggregate computes day/quadrant statistics over raw points.
//
// The backfill scheduler range-queries a quadrant window and folds the
// points through a Window; the result is the AggregatePoint written to the
// aggregate namespace. The mean is the primary statistic; min/max and
// optional DDSketch percentiles ride along for dashboards.
package aggregate

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// DefaultAccuracy is the DDSketch relative accuracy used when percentiles
// are enabled (1% error).
const DefaultAccuracy = 0.01

// Window accumulates running statistics for one (signal, day, quadrant)
// combination.
type Window struct {
	signal     string
	quadrant   types.Quadrant
	dayStartMs int64

	count int64
	sum   float64
	min   float64
	max   float64

	// DDSketch for percentiles (nil if disabled)
	sketch *ddsketch.DDSketch
}

// NewWindow creates an empty aggregation window.
func NewWindow(signal string, quadrant types.Quadrant, dayStartMs int64, enablePercentile bool) *Window {
	w := &Window{
		signal:     signal,
		quadrant:   quadrant,
		dayStartMs: dayStartMs,
		min:        math.MaxFloat64,
		max:        -math.MaxFloat64,
	}

	if enablePercentile {
		sketch, err := ddsketch.NewDefaultDDSketch(DefaultAccuracy)
		if err == nil {
			w.sketch = sketch
		}
	}

	return w
}

// Add adds a value to the window.
func (w *Window) Add(value float64) {
	w.count++
	w.sum += value

	if value < w.min {
		w.min = value
	}
	if value > w.max {
		w.max = value
	}

	if w.sketch != nil {
		w.sketch.Add(value)
	}
}

// AddPoint adds a raw point's value to the window.
func (w *Window) AddPoint(p types.Point) {
	w.Add(p.Value)
}

// Count returns the number of values added.
func (w *Window) Count() int64 {
	return w.count
}

// IsEmpty returns true if no values have been added. Empty windows must
// not produce aggregate points.
func (w *Window) IsEmpty() bool {
	return w.count == 0
}

// Result returns the aggregate point for this window.
func (w *Window) Result() types.AggregatePoint {
	result := types.AggregatePoint{
		Quadrant:   w.quadrant,
		Signal:     w.signal,
		DayStartMs: w.dayStartMs,
		Count:      w.count,
		Sum:        w.sum,
	}

	if w.count > 0 {
		result.Mean = w.sum / float64(w.count)
		result.Min = w.min
		result.Max = w.max
	}

	if w.sketch != nil && w.count > 0 {
		p50, err50 := w.sketch.GetValueAtQuantile(0.50)
		p95, err95 := w.sketch.GetValueAtQuantile(0.95)
		if err50 == nil && err95 == nil {
			result.SetPercentiles(p50, p95)
		}
	}

	return result
}

// FoldPoints folds raw points into one aggregate point for the given
// quadrant window.
func FoldPoints(signal string, quadrant types.Quadrant, dayStartMs int64, points []types.Point, enablePercentile bool) types.AggregatePoint {
	w := NewWindow(signal, quadrant, dayStartMs, enablePercentile)
	for i := range points {
		w.AddPoint(points[i])
	}
	return w.Result()
}
