package repository

import (
	"context"
	"errors"
	"fmt"

	"CoinTrend/internal/domain/models"
	domrepo "CoinTrend/internal/domain/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAssetRepository stores assets in PostgreSQL.
type PGAssetRepository struct {
	pool *pgxpool.Pool
}

func NewPGAssetRepository(pool *pgxpool.Pool) *PGAssetRepository {
	return &PGAssetRepository{pool: pool}
}

func (r *PGAssetRepository) FindByName(ctx context.Context, name string) (*models.Asset, error) {
	var a models.Asset
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM assets WHERE name = $1`, name,
	).Scan(&a.ID, &a.Name, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find asset %s: %w", name, err)
	}
	return &a, nil
}

// Create inserts a. When another writer created the same name first, a is updated to the stored row.
func (r *PGAssetRepository) Create(ctx context.Context, a *models.Asset) error {
	const q = `
		INSERT INTO assets (id, name, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, a.ID, a.Name, a.CreatedAt).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("postgres: create asset %s: %w", a.Name, err)
	}
	return nil
}

var _ domrepo.AssetRepository = (*PGAssetRepository)(nil)
