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

var _ repository.PartRepository = (*partRepo)(nil)

type partRepo struct {
	pool *pgxpool.Pool
}

func NewPartRepo(pool *pgxpool.Pool) *partRepo {
	return &partRepo{pool: pool}
}

func (r *partRepo) Save(ctx context.Context, tx repository.Tx, p *model.Part) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	const q = `
INSERT INTO parts (id, normalized_desc, sku, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (normalized_desc) DO UPDATE SET
  sku = EXCLUDED.sku,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.NormalizedDesc, p.SKU, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres Save part: %w", err)
	}
	return nil
}

func (r *partRepo) FindByNormalizedDesc(ctx context.Context, tx repository.Tx, normalized string) (*model.Part, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT id, normalized_desc, sku, created_at, updated_at
FROM parts WHERE normalized_desc = $1;`, normalized)
	if err != nil {
		return nil, err
	}
	var p model.Part
	if err := row.Scan(&p.ID, &p.NormalizedDesc, &p.SKU, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: part: %v", domain.ErrReadDatabaseRow, err)
	}
	return &p, nil
}
