package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/gbilton/elections-2022/internal/platform/correlation"
	"github.com/gbilton/elections-2022/internal/tally"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrStaleImport is reported by CheckFresh when no cycle finished recently.
var ErrStaleImport = errors.New("no recent import cycle")

// CollectorState is the observable state of the poll loop.
type CollectorState int32

const (
	StateIdle CollectorState = iota
	StateImporting
)

func (s CollectorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateImporting:
		return "importing"
	default:
		return "unknown"
	}
}

// UnitLister yields the validated unit catalog.
type UnitLister interface {
	List(ctx context.Context) ([]domain.UnitCode, error)
}

// ResultFetcher downloads every unit's result document.
type ResultFetcher interface {
	FetchAll(ctx context.Context, units []domain.UnitCode) []domain.FetchResult
}

// SnapshotWriter persists import snapshots.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snapshot domain.ImportSnapshot) (uuid.UUID, error)
}

// CycleGuard decides whether this process runs the current cycle. It lets
// several collector replicas share one schedule.
type CycleGuard interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// CycleReport summarizes one import cycle.
type CycleReport struct {
	SnapshotID      uuid.UUID
	RequestedAt     time.Time
	Units           []domain.UnitCode
	FetchFailures   []domain.UnitCode
	ExtractFailures []domain.UnitCode
	Enqueued        bool
	Skipped         bool
	Duration        time.Duration
}

// Collector is the poll loop: on every tick it imports a snapshot of all
// units and hands projection off to the job queue.
type Collector struct {
	catalog  UnitLister
	fetcher  ResultFetcher
	store    SnapshotWriter
	queue    domain.JobQueue
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.ImportMetrics
	guard    CycleGuard

	created   time.Time
	state     atomic.Int32
	lastCycle atomic.Int64
}

// NewCollector wires the poll loop. m may be nil.
func NewCollector(catalog UnitLister, fetcher ResultFetcher, store SnapshotWriter, queue domain.JobQueue, clock clockwork.Clock, interval time.Duration, m *metrics.ImportMetrics) *Collector {
	return &Collector{
		catalog:  catalog,
		fetcher:  fetcher,
		store:    store,
		queue:    queue,
		clock:    clock,
		interval: interval,
		metrics:  m,
		created:  clock.Now(),
	}
}

// WithGuard makes every cycle conditional on guard.
func (c *Collector) WithGuard(guard CycleGuard) *Collector {
	c.guard = guard
	return c
}

func (c *Collector) State() CollectorState {
	return CollectorState(c.state.Load())
}

// LastCycle is when the last cycle stored a snapshot or deferred to another
// collector. It is zero before the first one.
func (c *Collector) LastCycle() time.Time {
	ns := c.lastCycle.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// CheckFresh returns a readiness check that fails once no cycle has finished
// for maxAge. Before the first cycle the age counts from construction.
func (c *Collector) CheckFresh(maxAge time.Duration) func(context.Context) error {
	return func(context.Context) error {
		since := c.LastCycle()
		if since.IsZero() {
			since = c.created
		}
		if age := c.clock.Since(since); age > maxAge {
			return fmt.Errorf("%w: last finished %s ago", ErrStaleImport, age.Truncate(time.Second))
		}
		return nil
	}
}

// Run imports once immediately and then on every interval until ctx is
// cancelled. Cycle failures are logged and never stop the loop.
func (c *Collector) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.tick(ctx)
		}
	}
}

func (c *Collector) tick(ctx context.Context) {
	if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Import cycle failed", "error", err)
	}
}

// RunOnce runs a single import cycle. It fails when the catalog cannot be
// listed or the snapshot cannot be stored; per-unit failures only shrink the
// snapshot, and an enqueue failure leaves the stored snapshot unprojected.
func (c *Collector) RunOnce(ctx context.Context) (CycleReport, error) {
	ctx, cid := correlation.Start(ctx)
	start := c.clock.Now()
	report := CycleReport{RequestedAt: start}

	if c.guard != nil {
		ok, err := c.guard.TryAcquire(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Cycle guard unavailable, importing anyway", "error", err)
		} else if !ok {
			slog.DebugContext(ctx, "Cycle owned by another collector, skipping")
			report.Skipped = true
			c.countCycle(metrics.ResultSkipped)
			c.markCycle()
			return report, nil
		}
	}

	c.setState(StateImporting)
	defer c.setState(StateIdle)

	snapshot, err := c.importSnapshot(ctx, &report)
	if err != nil {
		report.Duration = c.clock.Since(start)
		c.countCycle(metrics.ResultFailed)
		return report, err
	}
	c.markCycle()

	err = c.queue.Enqueue(ctx, domain.ProjectionTask{
		SnapshotID:    snapshot.ID,
		RequestedAt:   snapshot.RequestedAt,
		Tallies:       snapshot.Tallies(),
		CorrelationID: cid,
	})
	report.Duration = c.clock.Since(start)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue projection", "snapshot_id", report.SnapshotID, "error", err)
		c.countCycle(metrics.ResultNotQueued)
	} else {
		report.Enqueued = true
		c.countCycle(metrics.ResultSuccess)
	}

	if c.metrics != nil {
		c.metrics.CycleDuration.Observe(report.Duration.Seconds())
		c.metrics.UnitsImported.Set(float64(len(report.Units)))
	}

	slog.InfoContext(ctx, "Import cycle complete",
		"snapshot_id", report.SnapshotID,
		"units", len(report.Units),
		"fetch_failures", len(report.FetchFailures),
		"extract_failures", len(report.ExtractFailures),
		"enqueued", report.Enqueued,
		"duration", report.Duration,
	)
	return report, nil
}

func (c *Collector) importSnapshot(ctx context.Context, report *CycleReport) (domain.ImportSnapshot, error) {
	units, err := c.catalog.List(ctx)
	if err != nil {
		return domain.ImportSnapshot{}, fmt.Errorf("failed to list units: %w", err)
	}

	snapshot := domain.ImportSnapshot{
		ID:          uuid.New(),
		RequestedAt: report.RequestedAt,
		Units:       make([]domain.UnitResult, 0, len(units)),
	}

	for _, res := range c.fetcher.FetchAll(ctx, units) {
		if c.metrics != nil && res.Duration > 0 {
			c.metrics.FetchDuration.Observe(res.Duration.Seconds())
		}
		if res.Err != nil {
			slog.WarnContext(ctx, "Unit fetch failed", "unit", res.Unit, "error", res.Err)
			report.FetchFailures = append(report.FetchFailures, res.Unit)
			c.countFetchFailure(res.Unit)
			continue
		}

		t, err := tally.Extract(res.Document)
		if err != nil {
			slog.WarnContext(ctx, "Unit result could not be extracted", "unit", res.Unit, "error", err)
			report.ExtractFailures = append(report.ExtractFailures, res.Unit)
			c.countExtractFailure(res.Unit)
			continue
		}
		if t.Unit != res.Unit {
			slog.WarnContext(ctx, "Unit code in document differs from request", "unit", res.Unit, "document_unit", t.Unit)
			t.Unit = res.Unit
		}

		snapshot.Units = append(snapshot.Units, domain.UnitResult{Unit: res.Unit, Document: res.Document, Tally: t})
		report.Units = append(report.Units, res.Unit)
	}

	id, err := c.store.SaveSnapshot(ctx, snapshot)
	if err != nil {
		return domain.ImportSnapshot{}, fmt.Errorf("failed to save snapshot: %w", err)
	}
	snapshot.ID = id
	report.SnapshotID = id
	return snapshot, nil
}

func (c *Collector) setState(s CollectorState) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.Importing.Set(float64(s))
	}
}

func (c *Collector) markCycle() {
	c.lastCycle.Store(c.clock.Now().UnixNano())
}

func (c *Collector) countCycle(result string) {
	if c.metrics != nil {
		c.metrics.CyclesTotal.WithLabelValues(result).Inc()
	}
}

func (c *Collector) countFetchFailure(unit domain.UnitCode) {
	if c.metrics != nil {
		c.metrics.FetchFailures.WithLabelValues(string(unit)).Inc()
	}
}

func (c *Collector) countExtractFailure(unit domain.UnitCode) {
	if c.metrics != nil {
		c.metrics.ExtractFailures.WithLabelValues(string(unit)).Inc()
	}
}
