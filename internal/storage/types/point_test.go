package types

import (
	"testing"
	"time"
)

func TestNewPoint(t *testing.T) {
	ts := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	p := NewPoint("inairtemp_1_1_1", ts, 22.5, 15)

	if p.Signal != "inairtemp_1_1_1" {
		t.Errorf("signal = %q", p.Signal)
	}
	if p.TimestampMs != ts.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", p.TimestampMs, ts.UnixMilli())
	}
	if !p.TimestampTime().Equal(ts) {
		t.Errorf("round trip = %v, want %v", p.TimestampTime(), ts)
	}
	if p.Cloud != TagNotReplicated || p.Downsample != TagNotDownsampled {
		t.Errorf("tags = %q/%q, want %q/%q", p.Cloud, p.Downsample, TagNotReplicated, TagNotDownsampled)
	}
}

func TestPointBatch(t *testing.T) {
	b := NewPointBatch(4)
	if b.Len() != 0 {
		t.Errorf("new batch len = %d", b.Len())
	}
	b.Add(NewPoint("a_1_1_1", time.Now(), 1, 1))
	b.Add(NewPoint("a_1_1_1", time.Now(), 2, 1))
	if b.Len() != 2 {
		t.Errorf("len = %d, want 2", b.Len())
	}
	if b.Points[1].Value != 2 {
		t.Errorf("points[1].Value = %v, want 2", b.Points[1].Value)
	}
}
