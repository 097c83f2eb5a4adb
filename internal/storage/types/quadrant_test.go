package types

import (
	"testing"
	"time"
)

func TestQuadrantLabels(t *testing.T) {
	want := map[Quadrant]string{
		QuadrantNight:   "ABC_0-6",
		QuadrantMorning: "ABC_6-12",
		QuadrantDay:     "ABC_12-18",
		QuadrantEvening: "ABC_18-24",
	}
	for q, label := range want {
		if q.Label() != label {
			t.Errorf("label(%d) = %q, want %q", q, q.Label(), label)
		}
	}
}

func TestQuadrantWindow(t *testing.T) {
	day := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	start, end := QuadrantDay.Window(day)
	if start.Hour() != 12 || end.Hour() != 18 {
		t.Errorf("window = [%v, %v)", start, end)
	}
	if end.Sub(start) != 6*time.Hour {
		t.Errorf("window length = %v, want 6h", end.Sub(start))
	}

	start, end = QuadrantEvening.Window(day)
	if start.Hour() != 18 {
		t.Errorf("evening start hour = %d, want 18", start.Hour())
	}
	if !end.Equal(day.AddDate(0, 0, 1)) {
		t.Errorf("evening end = %v, want next midnight", end)
	}
}

func TestQuadrantsCoverDay(t *testing.T) {
	day := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	prev := day
	for _, q := range AllQuadrants() {
		start, end := q.Window(day)
		if !start.Equal(prev) {
			t.Errorf("%s starts at %v, want %v", q.Label(), start, prev)
		}
		prev = end
	}
	if !prev.Equal(day.AddDate(0, 0, 1)) {
		t.Errorf("quadrants end at %v, want next midnight", prev)
	}
}

func TestParseQuadrant(t *testing.T) {
	for _, q := range AllQuadrants() {
		got, err := ParseQuadrant(q.Label())
		if err != nil {
			t.Errorf("ParseQuadrant(%q): %v", q.Label(), err)
		}
		if got != q {
			t.Errorf("ParseQuadrant(%q) = %v, want %v", q.Label(), got, q)
		}
	}
	if _, err := ParseQuadrant("ABC_24-30"); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestDayStart(t *testing.T) {
	ts := time.Date(2026, 3, 8, 14, 35, 12, 999, time.UTC)
	got := DayStart(ts)
	want := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DayStart = %v, want %v", got, want)
	}
	if got.Location() != ts.Location() {
		t.Error("DayStart changed location")
	}
}
