package postgres

import (
	"context"
	"encoding/json"
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

var _ repository.SupplierRepository = (*supplierRepo)(nil)

type supplierRepo struct {
	pool *pgxpool.Pool
}

func NewSupplierRepo(pool *pgxpool.Pool) *supplierRepo {
	return &supplierRepo{pool: pool}
}

func (r *supplierRepo) Save(ctx context.Context, tx repository.Tx, s *model.Supplier) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	aliases, err := json.Marshal(s.Aliases)
	if err != nil {
		return fmt.Errorf("postgres Save supplier: marshal aliases: %w", err)
	}

	const q = `
INSERT INTO suppliers (id, normalized_name, aliases, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  normalized_name = EXCLUDED.normalized_name,
  aliases = EXCLUDED.aliases,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q, s.ID, s.NormalizedName, string(aliases), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres Save supplier: %w", err)
	}
	return nil
}

func (r *supplierRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Supplier, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT id, normalized_name, aliases, created_at, updated_at
FROM suppliers WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanSupplier(row)
}

// FindByNormalizedName matches the indexed normalized name column, falling
// back to alias set membership for surface forms merged under another name.
func (r *supplierRepo) FindByNormalizedName(ctx context.Context, tx repository.Tx, normalized string) (*model.Supplier, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT id, normalized_name, aliases, created_at, updated_at
FROM suppliers
WHERE normalized_name = $1 OR aliases @> to_jsonb($1::text)
ORDER BY created_at LIMIT 1;`, normalized)
	if err != nil {
		return nil, err
	}
	return scanSupplier(row)
}

func scanSupplier(row pgx.Row) (*model.Supplier, error) {
	var (
		s       model.Supplier
		aliases []byte
	)
	if err := row.Scan(&s.ID, &s.NormalizedName, &aliases, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: supplier: %v", domain.ErrReadDatabaseRow, err)
	}
	if err := json.Unmarshal(aliases, &s.Aliases); err != nil {
		return nil, fmt.Errorf("postgres scan supplier aliases: %w", err)
	}
	return &s, nil
}
