package types

import "time"

// Tag values marking live raw data. The cross-store replication job filters
// on these, so they are written on every raw point.
const (
	TagNotReplicated  = "0" // cloud tag: not yet replicated to the cloud store
	TagNotDownsampled = "0" // downsample tag: raw resolution
)

// Point represents a single persisted sample.
// This is the primary data unit flowing through the store.
type Point struct {
	// Signal is the canonical signal key (series identity),
	// e.g. "inairtemp_1_1_1".
	Signal string

	// TimestampMs is the arrival time in Unix milliseconds.
	TimestampMs int64

	// Value is the reading after policy transforms (delta, round).
	Value float64

	// Priority is the CCM priority field, 0 when absent.
	Priority int32

	// Cloud and Downsample tag the point as live raw data.
	Cloud      string
	Downsample string
}

// NewPoint creates a raw point with the fixed live-data tags.
func NewPoint(signal string, ts time.Time, value float64, priority int32) Point {
	return Point{
		Signal:      signal,
		TimestampMs: ts.UnixMilli(),
		Value:       value,
		Priority:    priority,
		Cloud:       TagNotReplicated,
		Downsample:  TagNotDownsampled,
	}
}

// TimestampTime returns the timestamp as a time.Time.
func (p *Point) TimestampTime() time.Time {
	return time.UnixMilli(p.TimestampMs)
}

// PointBatch accumulates points between flushes. The flush path takes
// ownership of Points and replaces the whole batch, so the slice is
// never reused while a segment write is in flight.
type PointBatch struct {
	Points []Point
}

// NewPointBatch creates a new batch with the given capacity.
func NewPointBatch(capacity int) *PointBatch {
	return &PointBatch{
		Points: make([]Point, 0, capacity),
	}
}

// Add appends a point to the batch.
func (b *PointBatch) Add(p Point) {
	b.Points = append(b.Points, p)
}

// Len returns the number of points in the batch.
func (b *PointBatch) Len() int {
	return len(b.Points)
}
