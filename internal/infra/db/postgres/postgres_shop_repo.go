package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/repository"
)

var _ repository.ShopRepository = (*shopRepo)(nil)

type shopRepo struct {
	pool *pgxpool.Pool
}

func NewShopRepo(pool *pgxpool.Pool) *shopRepo {
	return &shopRepo{pool: pool}
}

func (r *shopRepo) Save(ctx context.Context, tx repository.Tx, s *model.Shop) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	const q = `
INSERT INTO shops (id, shop_id, name, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (shop_id) DO UPDATE SET
  name = EXCLUDED.name,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.ShopID, s.Name, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres Save shop: %w", err)
	}
	return nil
}

func (r *shopRepo) FindByShopID(ctx context.Context, tx repository.Tx, shopID string) (*model.Shop, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT id, shop_id, name, created_at, updated_at FROM shops WHERE shop_id = $1;`, shopID)
	if err != nil {
		return nil, err
	}
	var s model.Shop
	if err := row.Scan(&s.ID, &s.ShopID, &s.Name, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: shop: %v", domain.ErrReadDatabaseRow, err)
	}
	return &s, nil
}
