package parquet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// WritePointsFile writes points as one immutable segment file at path.
// The file is created under a temporary name and renamed into place.
func WritePointsFile(path string, points []types.Point, opts Options) error {
	rows := make([]PointRow, len(points))
	for i := range points {
		rows[i] = PointToRow(&points[i])
	}
	return writeRowsFile(path, rows, opts)
}

// WriteAggregatesFile writes aggregate points as one immutable segment
// file at path. All rows become visible atomically via rename, so a day's
// quadrants are either all present or all absent.
func WriteAggregatesFile(path string, aggregates []types.AggregatePoint, opts Options) error {
	rows := make([]AggregateRow, len(aggregates))
	for i := range aggregates {
		rows[i] = AggregateToRow(&aggregates[i])
	}
	return writeRowsFile(path, rows, opts)
}

// writeRowsFile writes rows to a temp file and renames it to path.
func writeRowsFile[T any](path string, rows []T, opts Options) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	writer := parquet.NewGenericWriter[T](tmp,
		parquet.Compression(getCompression(opts.Compression)))

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("close writer: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename segment: %w", err)
	}

	return nil
}
