// Package memory provides in-process implementations of the storage and
// queue ports for single-process runs and tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store is a domain.SnapshotStore kept in memory. Records are copied on the
// way in and out so callers never share slices with the store.
type Store struct {
	mu          sync.RWMutex
	clock       clockwork.Clock
	snapshots   []domain.ImportSnapshot
	predictions []domain.Prediction
	catalog     []domain.UnitCode
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{clock: clock}
}

func (s *Store) SaveSnapshot(_ context.Context, snapshot domain.ImportSnapshot) (uuid.UUID, error) {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	if snapshot.RequestedAt.IsZero() {
		snapshot.RequestedAt = s.clock.Now()
	}
	snapshot = cloneSnapshot(snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return snapshot.ID, nil
}

func (s *Store) LatestSnapshot(ctx context.Context) (*domain.ImportSnapshot, error) {
	list, _ := s.ListSnapshots(ctx, 1)
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return &list[0], nil
}

func (s *Store) ListSnapshots(_ context.Context, limit int) ([]domain.ImportSnapshot, error) {
	s.mu.RLock()
	out := slices.Clone(s.snapshots)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.ImportSnapshot) int {
		return b.RequestedAt.Compare(a.RequestedAt)
	})
	out = truncate(out, limit)
	for i := range out {
		out[i] = cloneSnapshot(out[i])
	}
	return out, nil
}

func (s *Store) SavePrediction(_ context.Context, prediction domain.Prediction) (uuid.UUID, error) {
	if prediction.ID == uuid.Nil {
		prediction.ID = uuid.New()
	}
	if prediction.ComputedAt.IsZero() {
		prediction.ComputedAt = s.clock.Now()
	}
	prediction.Shares = maps.Clone(prediction.Shares)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = append(s.predictions, prediction)
	return prediction.ID, nil
}

func (s *Store) LatestPrediction(ctx context.Context) (*domain.Prediction, error) {
	list, _ := s.ListPredictions(ctx, 1)
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return &list[0], nil
}

func (s *Store) ListPredictions(_ context.Context, limit int) ([]domain.Prediction, error) {
	s.mu.RLock()
	out := slices.Clone(s.predictions)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.Prediction) int {
		return b.ComputedAt.Compare(a.ComputedAt)
	})
	out = truncate(out, limit)
	for i := range out {
		out[i].Shares = maps.Clone(out[i].Shares)
	}
	return out, nil
}

func (s *Store) SaveCatalogIfAbsent(_ context.Context, codes []domain.UnitCode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog != nil {
		return false, nil
	}
	s.catalog = slices.Clone(codes)
	return true, nil
}

func (s *Store) GetCatalog(_ context.Context) ([]domain.UnitCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return nil, domain.ErrNotFound
	}
	return slices.Clone(s.catalog), nil
}

// Ping satisfies readiness checks.
func (s *Store) Ping(context.Context) error { return nil }

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// cloneSnapshot copies every slice a snapshot holds, down to the raw
// documents and candidate tallies.
func cloneSnapshot(snapshot domain.ImportSnapshot) domain.ImportSnapshot {
	units := make([]domain.UnitResult, len(snapshot.Units))
	for i, u := range snapshot.Units {
		u.Document = slices.Clone(u.Document)
		u.Tally.Candidates = slices.Clone(u.Tally.Candidates)
		units[i] = u
	}
	if snapshot.Units == nil {
		units = nil
	}
	snapshot.Units = units
	return snapshot
}

var _ domain.SnapshotStore = (*Store)(nil)

// queueCapacity bounds the in-memory queue; Enqueue blocks when full.
const queueCapacity = 64

// Queue is a domain.JobQueue over a buffered channel.
type Queue struct {
	tasks chan domain.ProjectionTask
	clock clockwork.Clock
}

func NewQueue(clock clockwork.Clock) *Queue {
	return &Queue{tasks: make(chan domain.ProjectionTask, queueCapacity), clock: clock}
}

func (q *Queue) Enqueue(ctx context.Context, task domain.ProjectionTask) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*domain.ProjectionTask, error) {
	timeout := q.clock.After(wait)
	select {
	case task := <-q.tasks:
		return &task, nil
	case <-timeout:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

var _ domain.JobQueue = (*Queue)(nil)
