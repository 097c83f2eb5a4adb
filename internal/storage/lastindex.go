package storage

import (
	"sync"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// lastIndex tracks the most recent accepted value per signal key. It covers
// the window between a point entering the write batch and its segment
// becoming queryable, so last-value lookups see fresh data.
type lastIndex struct {
	mu      sync.RWMutex
	entries map[string]lastEntry
}

type lastEntry struct {
	tsMs  int64
	value float64
}

func newLastIndex() *lastIndex {
	return &lastIndex{entries: make(map[string]lastEntry)}
}

// Update records p if it is newer than the current entry for its signal.
func (idx *lastIndex) Update(p types.Point) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur, ok := idx.entries[p.Signal]
	if ok && cur.tsMs > p.TimestampMs {
		return
	}
	idx.entries[p.Signal] = lastEntry{tsMs: p.TimestampMs, value: p.Value}
}

// Get returns the freshest known value for a signal.
func (idx *lastIndex) Get(signal string) (value float64, tsMs int64, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.entries[signal]
	return e.value, e.tsMs, ok
}

// Len returns the number of tracked signals.
func (idx *lastIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}
