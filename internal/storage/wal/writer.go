// Package wal implements a write-ahead log for crash-safe point persistence.
//
// Points accepted by the store writer are appended here before they reach
// the batch buffer. On startup, unflushed segments are replayed into the
// store and then removed, so a crash between flushes loses nothing.
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// File format:
//   - Header: 8 bytes magic + 4 bytes version
//   - Records: [4 bytes length][4 bytes crc32][payload]
const (
	walMagic         = 0x5545435357414C01 // "UECSWAL" + version marker
	walVersion       = 1
	headerSize       = 12 // 8 bytes magic + 4 bytes version
	recordHeaderSize = 8  // 4 bytes length + 4 bytes crc

	// maxRecordSize is a sanity bound on a single record payload.
	maxRecordSize = 16 * 1024 * 1024
)

// Writer appends point records to segment files with CRC checksums.
type Writer struct {
	mu sync.Mutex

	dir            string
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	segmentSeq     int64

	writer *bufio.Writer

	maxSegmentSize int64

	stats WriterStats
}

// WriterStats holds WAL writer statistics.
type WriterStats struct {
	SegmentsCreated int64
	RecordsWritten  int64
	BytesWritten    int64
	Errors          int64
}

// NewWriter creates a WAL writer rooted at dir. A fresh segment is opened
// after any existing ones; existing segments are left for recovery.
func NewWriter(dir string, maxSegmentSize int64) (*Writer, error) {
	if maxSegmentSize <= 0 {
		maxSegmentSize = maxRecordSize
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	w := &Writer{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
	}

	segments, err := ListSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segments) > 0 {
		last := segments[len(segments)-1]
		var seq int64
		fmt.Sscanf(filepath.Base(last), "%016d.wal", &seq)
		w.segmentSeq = seq + 1
	}

	if err := w.rotateUnlocked(); err != nil {
		return nil, fmt.Errorf("create initial segment: %w", err)
	}

	return w, nil
}

// Write appends points to the log and flushes them to the OS.
func (w *Writer) Write(points []types.Point) error {
	if len(points) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	payload, err := encodePoints(points)
	if err != nil {
		w.stats.Errors++
		return fmt.Errorf("encode points: %w", err)
	}

	recordSize := int64(recordHeaderSize + len(payload))
	if w.currentSize+recordSize > w.maxSegmentSize {
		if err := w.rotateUnlocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("rotate segment: %w", err)
		}
	}

	if err := w.writeRecord(payload); err != nil {
		w.stats.Errors++
		return fmt.Errorf("write record: %w", err)
	}

	if err := w.writer.Flush(); err != nil {
		w.stats.Errors++
		return fmt.Errorf("flush: %w", err)
	}

	w.stats.RecordsWritten++
	w.stats.BytesWritten += recordSize

	return nil
}

// writeRecord writes a single record to the current segment.
func (w *Writer) writeRecord(payload []byte) error {
	crc := crc32.ChecksumIEEE(payload)

	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc)

	if _, err := w.writer.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(payload); err != nil {
		return err
	}

	w.currentSize += int64(recordHeaderSize + len(payload))
	return nil
}

// Rotate closes the current segment and opens a fresh one, returning the
// new segment's path. The store rotates when it takes a batch for flushing
// so that points enqueued afterwards land in the new segment; once the
// batch is settled, everything before the returned path can be removed.
func (w *Writer) Rotate() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateUnlocked(); err != nil {
		return "", fmt.Errorf("rotate: %w", err)
	}
	return w.currentPath, nil
}

// RemoveOlderThan deletes all segments ordered before path. Used after a
// batch has been flushed (or declared lost) to release its WAL coverage.
func (w *Writer) RemoveOlderThan(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	segments, err := ListSegments(w.dir)
	if err != nil {
		return fmt.Errorf("list segments: %w", err)
	}
	for _, seg := range segments {
		if seg >= path || seg == w.currentPath {
			continue
		}
		os.Remove(seg)
	}
	return nil
}

func (w *Writer) rotateUnlocked() error {
	if w.currentSegment != nil {
		if w.writer != nil {
			w.writer.Flush()
		}
		w.currentSegment.Close()
	}

	segmentName := fmt.Sprintf("%016d.wal", w.segmentSeq)
	segmentPath := filepath.Join(w.dir, segmentName)

	f, err := os.OpenFile(segmentPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", segmentPath, err)
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], walMagic)
	binary.LittleEndian.PutUint32(header[8:12], walVersion)

	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(segmentPath)
		return fmt.Errorf("write header: %w", err)
	}

	w.currentSegment = f
	w.currentPath = segmentPath
	w.currentSize = headerSize
	w.writer = bufio.NewWriter(f)
	w.segmentSeq++
	w.stats.SegmentsCreated++

	return nil
}

// Close flushes and closes the current segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer != nil {
		w.writer.Flush()
	}
	if w.currentSegment != nil {
		return w.currentSegment.Close()
	}
	return nil
}

// Stats returns writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// CurrentSegment returns the current segment path.
func (w *Writer) CurrentSegment() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentPath
}

// ListSegments returns all segment file paths in dir in sequence order.
func ListSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) != 20 || name[16:] != ".wal" {
			continue
		}
		var seq int64
		if _, err := fmt.Sscanf(name, "%016d.wal", &seq); err != nil {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}

	sort.Strings(paths)
	return paths, nil
}
