package types

import (
	"fmt"
	"time"
)

// Quadrant is one of four fixed 6-hour-of-day windows used for periodic
// aggregation. The quadrant label is the series identity of an aggregate
// point; the originating signal key travels as a back-reference tag.
type Quadrant int

const (
	QuadrantNight   Quadrant = iota // 00:00-06:00
	QuadrantMorning                 // 06:00-12:00
	QuadrantDay                     // 12:00-18:00
	QuadrantEvening                 // 18:00-24:00
)

// Label returns the series identity written to the aggregate namespace.
// The labels match the historical aggregate job so existing dashboards
// keep working.
func (q Quadrant) Label() string {
	switch q {
	case QuadrantNight:
		return "ABC_0-6"
	case QuadrantMorning:
		return "ABC_6-12"
	case QuadrantDay:
		return "ABC_12-18"
	case QuadrantEvening:
		return "ABC_18-24"
	default:
		return fmt.Sprintf("ABC_unknown(%d)", q)
	}
}

// StartHour returns the inclusive start hour of the quadrant.
func (q Quadrant) StartHour() int { return int(q) * 6 }

// EndHour returns the exclusive end hour of the quadrant.
func (q Quadrant) EndHour() int { return int(q)*6 + 6 }

// Window returns the quadrant's [start, end) time range within the day
// containing dayStart. dayStart must be midnight in the zone aggregates
// are computed in.
func (q Quadrant) Window(dayStart time.Time) (start, end time.Time) {
	start = dayStart.Add(time.Duration(q.StartHour()) * time.Hour)
	end = dayStart.Add(time.Duration(q.EndHour()) * time.Hour)
	return start, end
}

// AllQuadrants returns the four quadrants in day order.
func AllQuadrants() []Quadrant {
	return []Quadrant{QuadrantNight, QuadrantMorning, QuadrantDay, QuadrantEvening}
}

// ParseQuadrant parses an aggregate series label back into a Quadrant.
func ParseQuadrant(label string) (Quadrant, error) {
	for _, q := range AllQuadrants() {
		if q.Label() == label {
			return q, nil
		}
	}
	return QuadrantNight, fmt.Errorf("unknown quadrant label: %s", label)
}

// DayStart truncates ts to midnight in its location.
func DayStart(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}
