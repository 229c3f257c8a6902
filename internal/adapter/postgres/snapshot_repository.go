package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

const insertSnapshot = `
INSERT INTO import_snapshots (id, requested_at, units, unit_count)
VALUES ($1, $2, $3, $4)`

const selectSnapshots = `
SELECT id, requested_at, units
FROM import_snapshots
ORDER BY requested_at DESC, created_at DESC
LIMIT $1`

// Save appends a snapshot. A zero ID is replaced by a new one.
func (r *SnapshotRepo) Save(ctx context.Context, snapshot domain.ImportSnapshot) (uuid.UUID, error) {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	units := snapshot.Units
	if units == nil {
		units = []domain.UnitResult{}
	}
	payload, err := json.Marshal(units)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode snapshot units: %w", err)
	}

	if _, err := r.pool.Exec(ctx, insertSnapshot, snapshot.ID, snapshot.RequestedAt, payload, len(units)); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return snapshot.ID, nil
}

func (r *SnapshotRepo) Latest(ctx context.Context) (*domain.ImportSnapshot, error) {
	snapshots, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, domain.ErrNotFound
	}
	return &snapshots[0], nil
}

func (r *SnapshotRepo) List(ctx context.Context, limit int) ([]domain.ImportSnapshot, error) {
	rows, err := r.pool.Query(ctx, selectSnapshots, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	snapshots, err := pgx.CollectRows(rows, scanSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(row pgx.CollectableRow) (domain.ImportSnapshot, error) {
	var (
		s     domain.ImportSnapshot
		units []byte
		at    time.Time
	)
	if err := row.Scan(&s.ID, &at, &units); err != nil {
		return s, err
	}
	if err := json.Unmarshal(units, &s.Units); err != nil {
		return s, fmt.Errorf("snapshot %s: %w", s.ID, err)
	}
	s.RequestedAt = at.UTC()
	return s, nil
}

// limitArg maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
