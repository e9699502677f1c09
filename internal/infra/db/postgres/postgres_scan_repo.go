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

var _ repository.ScanRepository = (*scanRepo)(nil)

type scanRepo struct {
	pool *pgxpool.Pool
}

func NewScanRepo(pool *pgxpool.Pool) *scanRepo {
	return &scanRepo{pool: pool}
}

func (r *scanRepo) Save(ctx context.Context, tx repository.Tx, s *model.Scan) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	files, err := json.Marshal(s.ScannedFiles)
	if err != nil {
		return fmt.Errorf("postgres Save scan: marshal files: %w", err)
	}
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("postgres Save scan: marshal stats: %w", err)
	}

	const q = `
INSERT INTO scans (id, status, scanned_files, stats, error, started_at, finished_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  scanned_files = EXCLUDED.scanned_files,
  stats = EXCLUDED.stats,
  error = EXCLUDED.error,
  started_at = EXCLUDED.started_at,
  finished_at = EXCLUDED.finished_at,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, string(s.Status), string(files), string(stats), s.Error,
		s.StartedAt, s.FinishedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres Save scan: %w", err)
	}
	return nil
}

func (r *scanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Scan, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT id, status, scanned_files, stats, error, started_at, finished_at, created_at, updated_at
FROM scans WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanScan(row)
}

func (r *scanRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT id, status, scanned_files, stats, error, started_at, finished_at, created_at, updated_at
FROM scans ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres List scans: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Scan, 0, limit)
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanScan(row pgx.Row) (*model.Scan, error) {
	var (
		s            model.Scan
		status       string
		files, stats []byte
	)
	err := row.Scan(&s.ID, &status, &files, &stats, &s.Error,
		&s.StartedAt, &s.FinishedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan: %v", domain.ErrReadDatabaseRow, err)
	}
	s.Status = model.ScanStatus(status)
	if err := json.Unmarshal(files, &s.ScannedFiles); err != nil {
		return nil, fmt.Errorf("postgres scan run files: %w", err)
	}
	if err := json.Unmarshal(stats, &s.Stats); err != nil {
		return nil, fmt.Errorf("postgres scan run stats: %w", err)
	}
	return &s, nil
}
