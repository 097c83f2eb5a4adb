package types

import "time"

// AggregatePoint represents one day/quadrant mean in the aggregate
// namespace. At most one aggregate point exists per (signal, day, quadrant);
// the backfill scheduler checks before writing to preserve this.
type AggregatePoint struct {
	// Quadrant identifies the 6-hour window; its label is the series
	// identity in the aggregate namespace.
	Quadrant Quadrant

	// Signal is the back-reference tag linking to the originating raw
	// signal key.
	Signal string

	// DayStartMs is the start of the aggregated day in Unix milliseconds.
	DayStartMs int64

	// Statistics over the quadrant window.
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64

	// Percentiles (optional, nil if not enabled)
	P50 *float64
	P95 *float64
}

// DayStartTime returns the aggregated day's start as a time.Time.
func (a *AggregatePoint) DayStartTime() time.Time {
	return time.UnixMilli(a.DayStartMs)
}

// IsEmpty returns true if no samples were aggregated. Empty aggregates are
// never written.
func (a *AggregatePoint) IsEmpty() bool {
	return a.Count == 0
}

// HasPercentiles returns true if percentile data is available.
func (a *AggregatePoint) HasPercentiles() bool {
	return a.P50 != nil
}

// SetPercentiles sets the percentile values.
func (a *AggregatePoint) SetPercentiles(p50, p95 float64) {
	a.P50 = &p50
	a.P95 = &p95
}
