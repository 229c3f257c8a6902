package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PredictionRepo struct {
	pool *pgxpool.Pool
}

func NewPredictionRepo(pool *pgxpool.Pool) *PredictionRepo {
	return &PredictionRepo{pool: pool}
}

const insertPrediction = `
INSERT INTO predictions (id, snapshot_id, shares, computed_at)
VALUES ($1, $2, $3, $4)`

const selectPredictions = `
SELECT id, snapshot_id, shares, computed_at
FROM predictions
ORDER BY computed_at DESC, created_at DESC
LIMIT $1`

// Save appends a prediction. A zero ID is replaced by a new one.
func (r *PredictionRepo) Save(ctx context.Context, prediction domain.Prediction) (uuid.UUID, error) {
	if prediction.ID == uuid.Nil {
		prediction.ID = uuid.New()
	}
	shares, err := json.Marshal(prediction.Shares)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode shares: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertPrediction, prediction.ID, prediction.SnapshotID, shares, prediction.ComputedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert prediction: %w", err)
	}
	return prediction.ID, nil
}

func (r *PredictionRepo) Latest(ctx context.Context) (*domain.Prediction, error) {
	predictions, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(predictions) == 0 {
		return nil, domain.ErrNotFound
	}
	return &predictions[0], nil
}

func (r *PredictionRepo) List(ctx context.Context, limit int) ([]domain.Prediction, error) {
	rows, err := r.pool.Query(ctx, selectPredictions, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}

	predictions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Prediction, error) {
		var (
			p      domain.Prediction
			shares []byte
			at     time.Time
		)
		if err := row.Scan(&p.ID, &p.SnapshotID, &shares, &at); err != nil {
			return p, err
		}
		if err := json.Unmarshal(shares, &p.Shares); err != nil {
			return p, fmt.Errorf("prediction %s: %w", p.ID, err)
		}
		p.ComputedAt = at.UTC()
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}
	return predictions, nil
}
