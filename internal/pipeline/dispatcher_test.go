package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/internal/errors"
	"github.com/y-ookuma/uecs2influxdbV2/internal/registry"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage/types"
)

// fakeStore records enqueued points and serves canned prior values.
type fakeStore struct {
	mu       sync.Mutex
	points   []types.Point
	last     map[string]float64
	queryErr error
	stall    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{last: make(map[string]float64)}
}

func (f *fakeStore) Enqueue(ctx context.Context, p types.Point) error {
	if f.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
	return nil
}

func (f *fakeStore) LastValue(_ context.Context, signal string, _ time.Time) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return 0, false, f.queryErr
	}
	v, ok := f.last[signal]
	return v, ok, nil
}

func (f *fakeStore) stored() []types.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Point, len(f.points))
	copy(out, f.points)
	return out
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.Parse([]byte(`{
	  "raw":   {"type": "InAirTemp.mIC", "room": "1", "region": "1", "order": "1", "savemode": "abc"},
	  "diff":  {"type": "InAirCO2.mIC",  "room": "1", "region": "1", "order": "1", "savemode": "diff"},
	  "round": {"type": "WRadiation.mIC","room": "1", "region": "1", "order": "1", "savemode": "on"},
	  "off":   {"type": "Noise.mIC",     "room": "1", "region": "1", "order": "1", "savemode": ""}
	}`))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func ccm(typ string, value float64) []byte {
	return []byte(fmt.Sprintf(
		`<UECS ver="1.00-E10"><DATA type=%q room="1" region="1" order="1" priority="15">%g</DATA></UECS>`,
		typ, value))
}

func startDispatcher(t *testing.T, store Store) *Dispatcher {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.DrainTimeout = 2 * time.Second
	d := NewDispatcher(cfg, testRegistry(t), store)
	d.Start()
	return d
}

func waitForPoints(t *testing.T, store *fakeStore, n int) []types.Point {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pts := store.stored(); len(pts) >= n {
			return pts
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d points, have %d", n, len(store.stored()))
	return nil
}

func TestDispatcherStoresAggregateSignalRaw(t *testing.T) {
	store := newFakeStore()
	d := startDispatcher(t, store)
	defer d.Stop()

	now := time.Now()
	d.Enqueue(Datagram{Payload: ccm("InAirTemp.mIC", 22.5), ReceivedAt: now})

	pts := waitForPoints(t, store, 1)
	if pts[0].Signal != "inairtemp_1_1_1" {
		t.Errorf("signal = %q", pts[0].Signal)
	}
	if pts[0].Value != 22.5 {
		t.Errorf("value = %v, want 22.5", pts[0].Value)
	}
	if pts[0].Priority != 15 {
		t.Errorf("priority = %d, want 15", pts[0].Priority)
	}
}

func TestDispatcherDropsUnpersistedSignals(t *testing.T) {
	store := newFakeStore()
	d := startDispatcher(t, store)

	d.Enqueue(Datagram{Payload: ccm("Noise.mIC", 1), ReceivedAt: time.Now()})
	d.Enqueue(Datagram{Payload: ccm("Unregistered.xXX", 1), ReceivedAt: time.Now()})
	d.Stop()

	if pts := store.stored(); len(pts) != 0 {
		t.Errorf("expected no stored points, got %d", len(pts))
	}
	stats := d.Stats()
	if stats.PolicyDropped != 2 {
		t.Errorf("policyDropped = %d, want 2", stats.PolicyDropped)
	}
}

func TestDispatcherRoundsValues(t *testing.T) {
	store := newFakeStore()
	d := startDispatcher(t, store)
	defer d.Stop()

	d.Enqueue(Datagram{Payload: ccm("WRadiation.mIC", 410.6), ReceivedAt: time.Now()})

	pts := waitForPoints(t, store, 1)
	if pts[0].Value != 411 {
		t.Errorf("value = %v, want 411", pts[0].Value)
	}
}

func TestDispatcherDeltaAgainstPrior(t *testing.T) {
	store := newFakeStore()
	store.last["inairco2_1_1_1"] = 400
	d := startDispatcher(t, store)
	defer d.Stop()

	d.Enqueue(Datagram{Payload: ccm("InAirCO2.mIC", 390), ReceivedAt: time.Now()})

	pts := waitForPoints(t, store, 1)
	if pts[0].Value != 10 {
		t.Errorf("delta = %v, want 10", pts[0].Value)
	}
}

func TestDispatcherDeltaColdStart(t *testing.T) {
	store := newFakeStore()
	d := startDispatcher(t, store)
	defer d.Stop()

	d.Enqueue(Datagram{Payload: ccm("InAirCO2.mIC", 390), ReceivedAt: time.Now()})

	pts := waitForPoints(t, store, 1)
	if pts[0].Value != 0 {
		t.Errorf("cold start delta = %v, want 0", pts[0].Value)
	}
}

func TestDispatcherDeltaQueryFailure(t *testing.T) {
	store := newFakeStore()
	store.queryErr = errors.QueryError("last value", errors.New("store offline"))
	d := startDispatcher(t, store)
	defer d.Stop()

	d.Enqueue(Datagram{Payload: ccm("InAirCO2.mIC", 390), ReceivedAt: time.Now()})

	pts := waitForPoints(t, store, 1)
	if pts[0].Value != 0 {
		t.Errorf("delta on query failure = %v, want 0", pts[0].Value)
	}
}

func TestDispatcherCountsDecodeFailures(t *testing.T) {
	store := newFakeStore()
	d := startDispatcher(t, store)

	d.Enqueue(Datagram{Payload: []byte("not xml"), ReceivedAt: time.Now()})
	d.Stop()

	if stats := d.Stats(); stats.DecodeFailed != 1 {
		t.Errorf("decodeFailed = %d, want 1", stats.DecodeFailed)
	}
}

func TestDispatcherCountsTimeouts(t *testing.T) {
	store := newFakeStore()
	store.stall = true

	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.Timeout = 20 * time.Millisecond
	cfg.DrainTimeout = 2 * time.Second
	d := NewDispatcher(cfg, testRegistry(t), store)
	d.Start()

	d.Enqueue(Datagram{Payload: ccm("InAirTemp.mIC", 22.5), ReceivedAt: time.Now()})
	d.Stop()

	stats := d.Stats()
	if stats.Timeouts != 1 {
		t.Errorf("timeouts = %d, want 1", stats.Timeouts)
	}
	if stats.StoreFailed != 0 {
		t.Errorf("storeFailed = %d, want 0", stats.StoreFailed)
	}
	if pts := store.stored(); len(pts) != 0 {
		t.Errorf("expected no stored points, got %d", len(pts))
	}
}

func TestDispatcherEnqueueAfterStop(t *testing.T) {
	store := newFakeStore()
	d := startDispatcher(t, store)
	d.Stop()

	if d.Enqueue(Datagram{Payload: ccm("InAirTemp.mIC", 1), ReceivedAt: time.Now()}) {
		t.Error("enqueue after stop should report false")
	}
}

func TestDeltaResolverZeroPrior(t *testing.T) {
	store := newFakeStore()
	store.last["inairco2_1_1_1"] = 0
	r := NewDeltaResolver(store, 365*24*time.Hour)

	got := r.Resolve(context.Background(), "inairco2_1_1_1", 390, time.Now())
	if got != 0 {
		t.Errorf("delta with zero prior = %v, want 0", got)
	}
}

func TestDeltaResolverAbsolute(t *testing.T) {
	store := newFakeStore()
	store.last["inairco2_1_1_1"] = 500
	r := NewDeltaResolver(store, 365*24*time.Hour)

	got := r.Resolve(context.Background(), "inairco2_1_1_1", 390, time.Now())
	if got != 110 {
		t.Errorf("delta = %v, want 110", got)
	}
}
