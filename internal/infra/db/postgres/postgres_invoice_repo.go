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
	"invoice-intel/internal/infra/metrics"
)

var _ repository.InvoiceRepository = (*invoiceRepo)(nil)

type invoiceRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewInvoiceRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *invoiceRepo {
	return &invoiceRepo{pool: pool, tm: tm}
}

const invoiceColumns = `
id, shop_id, supplier_id, status, source_file_id, source_url,
original_storage_key, processed_storage_key, content_hash,
invoice_number, invoice_date, totals, line_items, context,
trend_analysis, recommendations, stage, attempts, locked_at,
last_error, created_at, updated_at`

func (r *invoiceRepo) Save(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	if inv.Processing.Stage == "" {
		inv.Processing.Stage = model.StageQueued
	}

	totals, err := json.Marshal(inv.Totals)
	if err != nil {
		return fmt.Errorf("postgres Save invoice: marshal totals: %w", err)
	}
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("postgres Save invoice: marshal line items: %w", err)
	}
	pctx, err := jsonOrNull(inv.Context)
	if err != nil {
		return fmt.Errorf("postgres Save invoice: marshal context: %w", err)
	}
	trend, err := jsonOrNull(inv.TrendAnalysis)
	if err != nil {
		return fmt.Errorf("postgres Save invoice: marshal trend analysis: %w", err)
	}
	recs, err := jsonOrNull(inv.Recommendations)
	if err != nil {
		return fmt.Errorf("postgres Save invoice: marshal recommendations: %w", err)
	}

	const q = `
INSERT INTO invoices (` + invoiceColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
ON CONFLICT (id) DO UPDATE SET
  shop_id = EXCLUDED.shop_id,
  supplier_id = EXCLUDED.supplier_id,
  status = EXCLUDED.status,
  source_file_id = EXCLUDED.source_file_id,
  source_url = EXCLUDED.source_url,
  original_storage_key = EXCLUDED.original_storage_key,
  processed_storage_key = EXCLUDED.processed_storage_key,
  content_hash = EXCLUDED.content_hash,
  invoice_number = EXCLUDED.invoice_number,
  invoice_date = EXCLUDED.invoice_date,
  totals = EXCLUDED.totals,
  line_items = EXCLUDED.line_items,
  context = EXCLUDED.context,
  trend_analysis = EXCLUDED.trend_analysis,
  recommendations = EXCLUDED.recommendations,
  stage = EXCLUDED.stage,
  attempts = EXCLUDED.attempts,
  locked_at = EXCLUDED.locked_at,
  last_error = EXCLUDED.last_error,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		inv.ID, inv.ShopID, inv.SupplierID, string(inv.Status),
		inv.SourceFileID, inv.SourceURL,
		inv.OriginalStorageKey, inv.ProcessedStorageKey, inv.ContentHash,
		inv.InvoiceNumber, inv.InvoiceDate,
		string(totals), string(items), pctx, trend, recs,
		string(inv.Processing.Stage), inv.Processing.Attempts,
		inv.Processing.LockedAt, inv.Processing.LastError,
		inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres Save invoice: %w", err)
	}
	return nil
}

func (r *invoiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Invoice, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanInvoice(row)
}

func (r *invoiceRepo) FindByContentHash(ctx context.Context, tx repository.Tx, hash, excludeID string) (*model.Invoice, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+invoiceColumns+` FROM invoices
WHERE content_hash = $1 AND content_hash <> '' AND id <> $2
ORDER BY created_at LIMIT 1;`, hash, excludeID)
	if err != nil {
		return nil, err
	}
	return scanInvoice(row)
}

func (r *invoiceRepo) FindBySourceFileID(ctx context.Context, tx repository.Tx, fileID string) (*model.Invoice, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+invoiceColumns+` FROM invoices
WHERE source_file_id = $1 ORDER BY created_at LIMIT 1;`, fileID)
	if err != nil {
		return nil, err
	}
	return scanInvoice(row)
}

func (r *invoiceRepo) List(ctx context.Context, tx repository.Tx, f repository.InvoiceFilter) ([]*model.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	args := make([]interface{}, 0, 4)
	if f.ShopID != "" {
		args = append(args, f.ShopID)
		q += fmt.Sprintf(" AND shop_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	q += " ORDER BY created_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := pickRows(ctx, r.pool, tx, q+";", args...)
	if err != nil {
		return nil, fmt.Errorf("postgres List invoices: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *invoiceRepo) ListRecentProcessed(ctx context.Context, tx repository.Tx, shopID, supplierID, excludeID string, limit int) ([]*model.Invoice, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+invoiceColumns+` FROM invoices
WHERE shop_id = $1 AND supplier_id = $2 AND status = 'processed' AND id <> $3
ORDER BY created_at DESC LIMIT $4;`,
		shopID, supplierID, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres ListRecentProcessed: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// AcquireNext returns stale-leased jobs to the queue, then claims the oldest
// eligible queued job. The select and the transition to processing happen in
// one transaction with FOR UPDATE SKIP LOCKED, so concurrent callers never
// both receive the same job.
func (r *invoiceRepo) AcquireNext(ctx context.Context) (*model.Invoice, error) {
	const sweep = `
UPDATE invoices
SET status = 'queued', stage = 'queued', locked_at = NULL,
    last_error = 'automatically unlocked: stale processing lease',
    updated_at = now()
WHERE status = 'processing' AND locked_at IS NOT NULL AND locked_at < $1;`

	tag, err := execSQL(ctx, r.pool, nil, sweep, time.Now().Add(-model.StaleLeaseAfter))
	if err != nil {
		return nil, fmt.Errorf("postgres AcquireNext sweep: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		metrics.AddStaleLeasesRecovered(int(n))
	}

	var claimed *model.Invoice
	err = r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		row, err := pickRow(ctx, r.pool, tx,
			`SELECT `+invoiceColumns+` FROM invoices
WHERE status = 'queued' AND attempts < $1
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`, model.MaxAttempts)
		if err != nil {
			return err
		}
		inv, err := scanInvoice(row)
		if err != nil {
			return err
		}

		now := time.Now()
		inv.Status = model.InvoiceStatusProcessing
		inv.Processing.Stage = model.StageAcquired
		inv.Processing.LockedAt = &now
		inv.UpdatedAt = now
		_, err = execSQL(ctx, r.pool, tx,
			`UPDATE invoices
SET status = 'processing', stage = 'acquired', locked_at = $2, updated_at = $2
WHERE id = $1;`, inv.ID, now)
		if err != nil {
			return err
		}
		claimed = inv
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var (
		inv               model.Invoice
		status, stage     string
		totals, items     []byte
		pctx, trend, recs []byte
	)
	err := row.Scan(
		&inv.ID, &inv.ShopID, &inv.SupplierID, &status,
		&inv.SourceFileID, &inv.SourceURL,
		&inv.OriginalStorageKey, &inv.ProcessedStorageKey, &inv.ContentHash,
		&inv.InvoiceNumber, &inv.InvoiceDate,
		&totals, &items, &pctx, &trend, &recs,
		&stage, &inv.Processing.Attempts, &inv.Processing.LockedAt,
		&inv.Processing.LastError, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: invoice: %v", domain.ErrReadDatabaseRow, err)
	}
	inv.Status = model.InvoiceStatus(status)
	inv.Processing.Stage = model.Stage(stage)

	if err := json.Unmarshal(totals, &inv.Totals); err != nil {
		return nil, fmt.Errorf("postgres scan invoice totals: %w", err)
	}
	if err := json.Unmarshal(items, &inv.LineItems); err != nil {
		return nil, fmt.Errorf("postgres scan invoice line items: %w", err)
	}
	if len(pctx) > 0 {
		inv.Context = &model.PurchaseContext{}
		if err := json.Unmarshal(pctx, inv.Context); err != nil {
			return nil, fmt.Errorf("postgres scan invoice context: %w", err)
		}
	}
	if len(trend) > 0 {
		inv.TrendAnalysis = &model.TrendAnalysis{}
		if err := json.Unmarshal(trend, inv.TrendAnalysis); err != nil {
			return nil, fmt.Errorf("postgres scan invoice trend: %w", err)
		}
	}
	if len(recs) > 0 {
		if err := json.Unmarshal(recs, &inv.Recommendations); err != nil {
			return nil, fmt.Errorf("postgres scan invoice recommendations: %w", err)
		}
	}
	return &inv, nil
}

func collectInvoices(rows pgx.Rows) ([]*model.Invoice, error) {
	out := make([]*model.Invoice, 0, 16)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// jsonOrNull marshals v, returning a SQL NULL for nil pointers/slices so the
// column stays NULL until the pipeline populates it.
func jsonOrNull(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *model.PurchaseContext:
		if t == nil {
			return nil, nil
		}
	case *model.TrendAnalysis:
		if t == nil {
			return nil, nil
		}
	case []model.Recommendation:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
