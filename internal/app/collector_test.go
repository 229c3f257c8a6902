package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/memory"
	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allUnits = []domain.UnitCode{
	"AC", "AL", "AM", "AP", "BA", "CE", "DF", "ES", "GO", "MA", "MG", "MS", "MT", "PA",
	"PB", "PE", "PI", "PR", "RJ", "RN", "RO", "RR", "RS", "SC", "SE", "SP", "TO",
}

var t0 = time.Date(2022, 10, 30, 17, 0, 0, 0, time.UTC)

type staticCatalog struct {
	codes []domain.UnitCode
	err   error
}

func (c *staticCatalog) List(context.Context) ([]domain.UnitCode, error) {
	return c.codes, c.err
}

// fakeFetcher serves a valid document for every unit except those listed in
// failing (fetch error) or garbled (unparsable body).
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	failing map[domain.UnitCode]bool
	garbled map[domain.UnitCode]bool
}

func unitDocument(unit domain.UnitCode) []byte {
	return []byte(fmt.Sprintf(`{"hg":"17:00:00","cdabr":%q,"pst":"50,00","cand":[`+
		`{"nm":"LULA","vap":"100","pvap":"50,00"},`+
		`{"nm":"JAIR BOLSONARO","vap":"100","pvap":"50,00"}]}`, unit))
}

func (f *fakeFetcher) FetchAll(_ context.Context, units []domain.UnitCode) []domain.FetchResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([]domain.FetchResult, len(units))
	for i, u := range units {
		switch {
		case f.failing[u]:
			out[i] = domain.FetchResult{Unit: u, Err: fmt.Errorf("%w: %s", domain.ErrFetchFailure, u)}
		case f.garbled[u]:
			out[i] = domain.FetchResult{Unit: u, Document: []byte(`{"cdabr":"x"}`)}
		default:
			out[i] = domain.FetchResult{Unit: u, Document: unitDocument(u), Duration: time.Millisecond}
		}
	}
	return out
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingSnapshotStore struct{}

func (failingSnapshotStore) SaveSnapshot(context.Context, domain.ImportSnapshot) (uuid.UUID, error) {
	return uuid.Nil, errors.New("database down")
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, domain.ProjectionTask) error {
	return errors.New("redis down")
}

func (failingQueue) Dequeue(context.Context, time.Duration) (*domain.ProjectionTask, error) {
	return nil, nil
}

type staticGuard struct{ owned bool }

func (g staticGuard) TryAcquire(context.Context) (bool, error) { return g.owned, nil }

func newTestCollector(fetcher ResultFetcher) (*Collector, *memory.Store, *memory.Queue, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(t0)
	store := memory.NewStore(clock)
	queue := memory.NewQueue(clock)
	c := NewCollector(&staticCatalog{codes: allUnits}, fetcher, store, queue, clock, 5*time.Minute, nil)
	return c, store, queue, clock
}

func TestCollector_RunOnce_ImportsAllUnits(t *testing.T) {
	c, store, queue, _ := newTestCollector(&fakeFetcher{})
	ctx := context.Background()

	report, err := c.RunOnce(ctx)
	require.NoError(t, err)

	assert.Len(t, report.Units, 27)
	assert.Empty(t, report.FetchFailures)
	assert.True(t, report.Enqueued)
	assert.Equal(t, t0, report.RequestedAt)
	assert.Equal(t, StateIdle, c.State())

	snapshot, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.SnapshotID, snapshot.ID)
	require.Len(t, snapshot.Units, 27)
	assert.Equal(t, "Jair Bolsonaro", snapshot.Units[0].Tally.Candidates[1].Name)
	assert.JSONEq(t, string(unitDocument("AC")), string(snapshot.Units[0].Document))

	task, err := queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, snapshot.ID, task.SnapshotID)
	assert.Equal(t, t0, task.RequestedAt)
	assert.Len(t, task.Tallies, 27)
	assert.NotEmpty(t, task.CorrelationID)
}

func TestCollector_RunOnce_PartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{failing: map[domain.UnitCode]bool{"AC": true, "BA": true, "MG": true, "RS": true, "TO": true}}
	reg := prometheus.NewRegistry()
	im := metrics.NewImportMetrics(reg)

	clock := clockwork.NewFakeClockAt(t0)
	store := memory.NewStore(clock)
	c := NewCollector(&staticCatalog{codes: allUnits}, fetcher, store, memory.NewQueue(clock), clock, time.Minute, im)

	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Units, 22)
	assert.ElementsMatch(t, []domain.UnitCode{"AC", "BA", "MG", "RS", "TO"}, report.FetchFailures)

	snapshot, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Units, 22)
	assert.NotContains(t, snapshot.UnitCodes(), domain.UnitCode("AC"))

	assert.Equal(t, 1.0, testutil.ToFloat64(im.CyclesTotal.WithLabelValues(metrics.ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(im.FetchFailures.WithLabelValues("AC")))
	assert.Equal(t, 22.0, testutil.ToFloat64(im.UnitsImported))
	assert.Equal(t, 0.0, testutil.ToFloat64(im.Importing))
}

func TestCollector_RunOnce_ExtractFailureDropsUnit(t *testing.T) {
	c, store, _, _ := newTestCollector(&fakeFetcher{garbled: map[domain.UnitCode]bool{"SP": true}})

	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.UnitCode{"SP"}, report.ExtractFailures)
	assert.Len(t, report.Units, 26)

	snapshot, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, snapshot.UnitCodes(), domain.UnitCode("SP"))
}

func TestCollector_RunOnce_CatalogFailureAbortsCycle(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	store := memory.NewStore(clock)
	queue := memory.NewQueue(clock)
	fetcher := &fakeFetcher{}
	catalog := &staticCatalog{err: fmt.Errorf("%w: 26 codes", domain.ErrInvalidCatalog)}
	c := NewCollector(catalog, fetcher, store, queue, clock, time.Minute, nil)

	_, err := c.RunOnce(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidCatalog)
	assert.Equal(t, 0, fetcher.callCount())
	assert.Equal(t, 0, queue.Len())

	_, err = store.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, StateIdle, c.State())
}

func TestCollector_RunOnce_SaveFailureEnqueuesNothing(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	queue := memory.NewQueue(clock)
	c := NewCollector(&staticCatalog{codes: allUnits}, &fakeFetcher{}, failingSnapshotStore{}, queue, clock, time.Minute, nil)

	_, err := c.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, queue.Len())
}

func TestCollector_RunOnce_EnqueueFailureKeepsSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	store := memory.NewStore(clock)
	im := metrics.NewImportMetrics(prometheus.NewRegistry())
	c := NewCollector(&staticCatalog{codes: allUnits}, &fakeFetcher{}, store, failingQueue{}, clock, time.Minute, im)

	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Enqueued)

	_, err = store.LatestSnapshot(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(im.CyclesTotal.WithLabelValues(metrics.ResultNotQueued)))
}

func TestCollector_RunOnce_GuardNotOwned(t *testing.T) {
	fetcher := &fakeFetcher{}
	c, store, _, _ := newTestCollector(fetcher)
	c.WithGuard(staticGuard{owned: false})

	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 0, fetcher.callCount())

	_, err = store.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCollector_Run_FirstCycleImmediatelyThenEveryInterval(t *testing.T) {
	fetcher := &fakeFetcher{}
	c, store, _, clock := newTestCollector(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(5 * time.Minute)
	assert.Eventually(t, func() bool { return fetcher.callCount() == 2 }, time.Second, 5*time.Millisecond)

	clock.Advance(5 * time.Minute)
	assert.Eventually(t, func() bool { return fetcher.callCount() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after cancellation")
	}

	snapshots, err := store.ListSnapshots(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, snapshots, 3)
	assert.Equal(t, t0.Add(10*time.Minute), snapshots[0].RequestedAt)
}

func TestCollector_Run_KeepsGoingAfterFailedCycle(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	catalog := &staticCatalog{err: errors.New("catalog page unreachable")}
	fetcher := &fakeFetcher{}
	im := metrics.NewImportMetrics(prometheus.NewRegistry())
	c := NewCollector(catalog, fetcher, memory.NewStore(clock), memory.NewQueue(clock), clock, time.Minute, im)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	failed := func() float64 { return testutil.ToFloat64(im.CyclesTotal.WithLabelValues(metrics.ResultFailed)) }

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Eventually(t, func() bool { return failed() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return failed() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestCollector_CheckFresh(t *testing.T) {
	c, _, _, clock := newTestCollector(&fakeFetcher{})
	check := c.CheckFresh(15 * time.Minute)
	ctx := context.Background()

	assert.True(t, c.LastCycle().IsZero())
	assert.NoError(t, check(ctx), "grace period before the first cycle")

	clock.Advance(10 * time.Minute)
	_, err := c.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Minute), c.LastCycle().UTC())

	clock.Advance(15 * time.Minute)
	assert.NoError(t, check(ctx))

	clock.Advance(time.Second)
	err = check(ctx)
	assert.ErrorIs(t, err, ErrStaleImport)
	assert.Contains(t, err.Error(), "15m1s")
}

func TestCollector_CheckFresh_FailedCyclesDoNotCount(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	catalog := &staticCatalog{err: errors.New("catalog page unreachable")}
	c := NewCollector(catalog, &fakeFetcher{}, memory.NewStore(clock), memory.NewQueue(clock), clock, 5*time.Minute, nil)
	check := c.CheckFresh(15 * time.Minute)

	clock.Advance(16 * time.Minute)
	_, err := c.RunOnce(context.Background())
	require.Error(t, err)

	assert.True(t, c.LastCycle().IsZero())
	assert.ErrorIs(t, check(context.Background()), ErrStaleImport)
}

func TestCollector_CheckFresh_SkippedCycleCounts(t *testing.T) {
	c, _, _, clock := newTestCollector(&fakeFetcher{})
	c.WithGuard(staticGuard{owned: false})
	check := c.CheckFresh(15 * time.Minute)

	clock.Advance(14 * time.Minute)
	_, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	clock.Advance(14 * time.Minute)
	assert.NoError(t, check(context.Background()))
}

func TestCollectorState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "importing", StateImporting.String())
	assert.Equal(t, "unknown", CollectorState(7).String())
}
