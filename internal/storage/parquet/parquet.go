// Package parquet persists points and aggregates as Parquet segment files.
//
// The raw and aggregate namespaces are separate directory trees; each flush
// or backfilled day produces one immutable segment file. Files are written
// to a temporary name and renamed into place so concurrent queries never
// see a partial segment.
package parquet

import (
	"errors"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("parquet writer is closed")

// Options configures the Parquet writers.
type Options struct {
	// Compression algorithm
	Compression CompressionType
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// PointRow represents a raw point in Parquet format.
type PointRow struct {
	Signal      string  `parquet:"signal,zstd"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Value       float64 `parquet:"value"`
	Priority    int32   `parquet:"priority"`
	Cloud       string  `parquet:"cloud,zstd"`
	Downsample  string  `parquet:"downsample,zstd"`
}

// AggregateRow represents an aggregate point in Parquet format.
type AggregateRow struct {
	Quadrant   string  `parquet:"quadrant,zstd"`
	Signal     string  `parquet:"signal,zstd"`
	DayStartMs int64   `parquet:"day_start_ms"`
	Count      int64   `parquet:"count"`
	Sum        float64 `parquet:"sum"`
	Min        float64 `parquet:"min"`
	Max        float64 `parquet:"max"`
	Mean       float64 `parquet:"mean"`
	P50        float64 `parquet:"p50,optional"`
	P95        float64 `parquet:"p95,optional"`
}

// PointToRow converts a Point to a PointRow.
func PointToRow(p *types.Point) PointRow {
	return PointRow{
		Signal:      p.Signal,
		TimestampMs: p.TimestampMs,
		Value:       p.Value,
		Priority:    p.Priority,
		Cloud:       p.Cloud,
		Downsample:  p.Downsample,
	}
}

// RowToPoint converts a PointRow to a Point.
func RowToPoint(r *PointRow) types.Point {
	return types.Point{
		Signal:      r.Signal,
		TimestampMs: r.TimestampMs,
		Value:       r.Value,
		Priority:    r.Priority,
		Cloud:       r.Cloud,
		Downsample:  r.Downsample,
	}
}

// AggregateToRow converts an AggregatePoint to an AggregateRow.
func AggregateToRow(a *types.AggregatePoint) AggregateRow {
	row := AggregateRow{
		Quadrant:   a.Quadrant.Label(),
		Signal:     a.Signal,
		DayStartMs: a.DayStartMs,
		Count:      a.Count,
		Sum:        a.Sum,
		Min:        a.Min,
		Max:        a.Max,
		Mean:       a.Mean,
	}
	if a.P50 != nil {
		row.P50 = *a.P50
	}
	if a.P95 != nil {
		row.P95 = *a.P95
	}
	return row
}

// RowToAggregate converts an AggregateRow to an AggregatePoint.
func RowToAggregate(r *AggregateRow) types.AggregatePoint {
	q, _ := types.ParseQuadrant(r.Quadrant)
	a := types.AggregatePoint{
		Quadrant:   q,
		Signal:     r.Signal,
		DayStartMs: r.DayStartMs,
		Count:      r.Count,
		Sum:        r.Sum,
		Min:        r.Min,
		Max:        r.Max,
		Mean:       r.Mean,
	}
	if r.P50 != 0 || r.P95 != 0 {
		a.SetPercentiles(r.P50, r.P95)
	}
	return a
}
