package postgres

import (
	"context"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store combines the repositories into a domain.SnapshotStore.
type Store struct {
	pool        *pgxpool.Pool
	snapshots   *SnapshotRepo
	predictions *PredictionRepo
	catalog     *CatalogRepo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:        pool,
		snapshots:   NewSnapshotRepo(pool),
		predictions: NewPredictionRepo(pool),
		catalog:     NewCatalogRepo(pool),
	}
}

func (s *Store) SaveSnapshot(ctx context.Context, snapshot domain.ImportSnapshot) (uuid.UUID, error) {
	return s.snapshots.Save(ctx, snapshot)
}

func (s *Store) LatestSnapshot(ctx context.Context) (*domain.ImportSnapshot, error) {
	return s.snapshots.Latest(ctx)
}

func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]domain.ImportSnapshot, error) {
	return s.snapshots.List(ctx, limit)
}

func (s *Store) SavePrediction(ctx context.Context, prediction domain.Prediction) (uuid.UUID, error) {
	return s.predictions.Save(ctx, prediction)
}

func (s *Store) LatestPrediction(ctx context.Context) (*domain.Prediction, error) {
	return s.predictions.Latest(ctx)
}

func (s *Store) ListPredictions(ctx context.Context, limit int) ([]domain.Prediction, error) {
	return s.predictions.List(ctx, limit)
}

func (s *Store) SaveCatalogIfAbsent(ctx context.Context, codes []domain.UnitCode) (bool, error) {
	return s.catalog.SaveIfAbsent(ctx, codes)
}

func (s *Store) GetCatalog(ctx context.Context) ([]domain.UnitCode, error) {
	return s.catalog.Get(ctx)
}

// Ping checks database connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ domain.SnapshotStore = (*Store)(nil)
