package parquet

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// ReadPointsFile reads all points from a segment file.
func ReadPointsFile(path string) ([]types.Point, error) {
	rows, err := readRowsFile[PointRow](path)
	if err != nil {
		return nil, err
	}

	points := make([]types.Point, len(rows))
	for i := range rows {
		points[i] = RowToPoint(&rows[i])
	}
	return points, nil
}

// ReadAggregatesFile reads all aggregate points from a segment file.
func ReadAggregatesFile(path string) ([]types.AggregatePoint, error) {
	rows, err := readRowsFile[AggregateRow](path)
	if err != nil {
		return nil, err
	}

	aggregates := make([]types.AggregatePoint, len(rows))
	for i := range rows {
		aggregates[i] = RowToAggregate(&rows[i])
	}
	return aggregates, nil
}

// readRowsFile reads every row of a Parquet file.
func readRowsFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	numRows := reader.NumRows()
	if numRows == 0 {
		return nil, nil
	}

	rows := make([]T, numRows)
	read := 0
	for read < int(numRows) {
		n, err := reader.Read(rows[read:])
		read += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}

	return rows[:read], nil
}
