package storage

import (
	"testing"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

func TestLastIndexKeepsNewest(t *testing.T) {
	idx := newLastIndex()
	ts := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)

	idx.Update(types.NewPoint("a_1_1_1", ts, 10, 1))
	idx.Update(types.NewPoint("a_1_1_1", ts.Add(time.Second), 20, 1))
	// A late arrival with an older timestamp must not win.
	idx.Update(types.NewPoint("a_1_1_1", ts.Add(-time.Second), 5, 1))

	v, tsMs, ok := idx.Get("a_1_1_1")
	if !ok {
		t.Fatal("signal missing")
	}
	if v != 20 || tsMs != ts.Add(time.Second).UnixMilli() {
		t.Errorf("got %v@%d, want 20@%d", v, tsMs, ts.Add(time.Second).UnixMilli())
	}
}

func TestLastIndexUnknownSignal(t *testing.T) {
	idx := newLastIndex()
	if _, _, ok := idx.Get("nosuch_1_1_1"); ok {
		t.Error("unknown signal reported ok")
	}
	if idx.Len() != 0 {
		t.Errorf("len = %d, want 0", idx.Len())
	}
}
