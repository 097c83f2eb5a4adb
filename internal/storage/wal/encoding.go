package wal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// Point encoding format (binary, little-endian):
// - Point count (4 bytes)
// Per point:
// - Signal length (2 bytes) + Signal string
// - TimestampMs (8 bytes)
// - Value (8 bytes, float64)
// - Priority (4 bytes)
//
// The cloud/downsample tags are fixed for live data and are restored on
// decode rather than stored.

// encodePoints encodes a slice of points into the binary record payload.
func encodePoints(points []types.Point) ([]byte, error) {
	if len(points) == 0 {
		return nil, nil
	}

	// Estimate size: ~40 bytes per point average
	buf := make([]byte, 0, len(points)*40)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(points)))

	for _, p := range points {
		var err error
		buf, err = appendString(buf, p.Signal)
		if err != nil {
			return nil, fmt.Errorf("signal: %w", err)
		}
		buf = binary.LittleEndian.AppendUint64(buf, uint64(p.TimestampMs))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Value))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Priority))
	}

	return buf, nil
}

// decodePoints decodes a binary record payload into points.
func decodePoints(data []byte) ([]types.Point, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short for point count")
	}

	count := int(binary.LittleEndian.Uint32(data[0:4]))
	if count == 0 {
		return nil, nil
	}

	points := make([]types.Point, count)
	offset := 4

	for i := 0; i < count; i++ {
		var p types.Point
		var err error

		p.Signal, offset, err = readString(data, offset)
		if err != nil {
			return nil, fmt.Errorf("point %d signal: %w", i, err)
		}

		if offset+20 > len(data) {
			return nil, fmt.Errorf("point %d: data too short", i)
		}
		p.TimestampMs = int64(binary.LittleEndian.Uint64(data[offset:]))
		offset += 8
		p.Value = math.Float64frombits(binary.LittleEndian.Uint64(data[offset:]))
		offset += 8
		p.Priority = int32(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4

		p.Cloud = types.TagNotReplicated
		p.Downsample = types.TagNotDownsampled

		points[i] = p
	}

	return points, nil
}

// appendString appends a length-prefixed string to buf.
func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return nil, fmt.Errorf("string too long: %d bytes", len(s))
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}

// readString reads a length-prefixed string from data at offset.
func readString(data []byte, offset int) (string, int, error) {
	if offset+2 > len(data) {
		return "", offset, fmt.Errorf("data too short for string length")
	}
	length := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	if offset+length > len(data) {
		return "", offset, fmt.Errorf("data too short for string body")
	}
	return string(data[offset : offset+length]), offset + length, nil
}
