package repository

import (
	"context"

	"invoice-intel/internal/domain/model"
)

// InvoiceFilter narrows List results. Zero values mean "no filter".
type InvoiceFilter struct {
	ShopID string
	Status model.InvoiceStatus
	Offset int
	Limit  int
}

type InvoiceRepository interface {
	Save(ctx context.Context, tx Tx, inv *model.Invoice) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Invoice, error)
	List(ctx context.Context, tx Tx, f InvoiceFilter) ([]*model.Invoice, error)

	// AcquireNext first returns stale-leased processing jobs to the queue,
	// then atomically claims the oldest queued job with remaining attempts:
	// the select and the transition to processing are a single atomic
	// operation, so two concurrent callers never both receive the same job.
	// Returns domain.ErrNotFound when no eligible job exists.
	AcquireNext(ctx context.Context) (*model.Invoice, error)

	// FindByContentHash returns another invoice with the same content hash,
	// excluding excludeID. Used for duplicate detection.
	FindByContentHash(ctx context.Context, tx Tx, hash, excludeID string) (*model.Invoice, error)

	// ListRecentProcessed returns up to limit most recently processed
	// invoices for the shop+supplier pair, excluding excludeID, newest first.
	ListRecentProcessed(ctx context.Context, tx Tx, shopID, supplierID, excludeID string, limit int) ([]*model.Invoice, error)

	// FindBySourceFileID is used by scans to detect already-ingested files.
	FindBySourceFileID(ctx context.Context, tx Tx, fileID string) (*model.Invoice, error)
}
