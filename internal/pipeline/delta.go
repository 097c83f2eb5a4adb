package pipeline

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/singleflight"
)

// priorValue carries one prior-value query answer across singleflight.
type priorValue struct {
	value float64
	found bool
}

// DeltaResolver computes the stored delta for delta-mode signals: the
// absolute difference between the current reading and the last stored
// value within the lookback window.
//
// The resolver degrades instead of failing: a missing prior value, a
// prior of exactly zero or a store query error all yield a delta of
// zero, so a cold start or a flaky store produces flat readings rather
// than dropped ones.
type DeltaResolver struct {
	store    Store
	lookback time.Duration
	group    singleflight.Group
}

// NewDeltaResolver creates a resolver reading prior values from store.
func NewDeltaResolver(store Store, lookback time.Duration) *DeltaResolver {
	return &DeltaResolver{store: store, lookback: lookback}
}

// Resolve returns the delta to store for the given reading.
// Concurrent resolutions for the same signal share one store query.
func (r *DeltaResolver) Resolve(ctx context.Context, signal string, current float64, at time.Time) float64 {
	since := at.Add(-r.lookback)

	v, err, _ := r.group.Do(signal, func() (interface{}, error) {
		value, found, err := r.store.LastValue(ctx, signal, since)
		if err != nil {
			return nil, err
		}
		return priorValue{value: value, found: found}, nil
	})
	if err != nil {
		log.Warn("prior value query failed, storing zero delta",
			"signal", signal, "error", err)
		return 0
	}

	prior := v.(priorValue)
	if !prior.found || prior.value == 0 {
		return 0
	}
	return math.Abs(current - prior.value)
}
