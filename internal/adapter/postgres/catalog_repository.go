package postgres

import (
	"context"
	"fmt"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepo stores the single unit catalog row.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

const insertCatalog = `
INSERT INTO unit_catalog (singleton, codes)
VALUES (TRUE, $1)
ON CONFLICT (singleton) DO NOTHING`

const selectCatalog = `SELECT codes FROM unit_catalog WHERE singleton`

func (r *CatalogRepo) SaveIfAbsent(ctx context.Context, codes []domain.UnitCode) (bool, error) {
	values := make([]string, len(codes))
	for i, c := range codes {
		values[i] = string(c)
	}

	tag, err := r.pool.Exec(ctx, insertCatalog, values)
	if err != nil {
		return false, fmt.Errorf("failed to insert catalog: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CatalogRepo) Get(ctx context.Context) ([]domain.UnitCode, error) {
	var values []string
	err := r.pool.QueryRow(ctx, selectCatalog).Scan(&values)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	codes := make([]domain.UnitCode, len(values))
	for i, v := range values {
		codes[i] = domain.UnitCode(v)
	}
	return codes, nil
}
