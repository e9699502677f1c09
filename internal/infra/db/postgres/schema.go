package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Schema holds the DDL applied by cmd/seed. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS shops (
    id         TEXT PRIMARY KEY,
    shop_id    TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS suppliers (
    id              TEXT PRIMARY KEY,
    normalized_name TEXT NOT NULL UNIQUE,
    aliases         JSONB NOT NULL DEFAULT '[]',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS parts (
    id              TEXT PRIMARY KEY,
    normalized_desc TEXT NOT NULL UNIQUE,
    sku             TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS invoices (
    id                    TEXT PRIMARY KEY,
    shop_id               TEXT NOT NULL,
    supplier_id           TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT 'queued',
    source_file_id        TEXT NOT NULL DEFAULT '',
    source_url            TEXT NOT NULL DEFAULT '',
    original_storage_key  TEXT NOT NULL DEFAULT '',
    processed_storage_key TEXT NOT NULL DEFAULT '',
    content_hash          TEXT NOT NULL DEFAULT '',
    invoice_number        TEXT NOT NULL DEFAULT '',
    invoice_date          TIMESTAMPTZ,
    totals                JSONB NOT NULL DEFAULT '{}',
    line_items            JSONB NOT NULL DEFAULT '[]',
    context               JSONB,
    trend_analysis        JSONB,
    recommendations       JSONB,
    stage                 TEXT NOT NULL DEFAULT 'queued',
    attempts              INT  NOT NULL DEFAULT 0,
    locked_at             TIMESTAMPTZ,
    last_error            TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_claim
    ON invoices (status, attempts, created_at);
CREATE INDEX IF NOT EXISTS idx_invoices_content_hash
    ON invoices (content_hash);
CREATE INDEX IF NOT EXISTS idx_invoices_shop_supplier
    ON invoices (shop_id, supplier_id, status);
CREATE INDEX IF NOT EXISTS idx_invoices_source_file
    ON invoices (source_file_id);

CREATE TABLE IF NOT EXISTS scans (
    id            TEXT PRIMARY KEY,
    status        TEXT NOT NULL DEFAULT 'pending',
    scanned_files JSONB NOT NULL DEFAULT '[]',
    stats         JSONB NOT NULL DEFAULT '{}',
    error         TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ,
    finished_at   TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies the DDL. Safe to call on every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
