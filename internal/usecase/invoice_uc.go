package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/domain/ports/repository"
)

// Compile-time check
var _ InvoiceUseCase = (*invoiceUC)(nil)

type InvoiceUseCase interface {
	List(ctx context.Context, f repository.InvoiceFilter) ([]*model.Invoice, error)
	Get(ctx context.Context, id string) (*model.Invoice, error)
	// Cancel returns a processing job to the queue without consuming an
	// attempt and moves its source file back to the unprocessed folder when
	// possible. Only processing jobs are cancellable.
	Cancel(ctx context.Context, id string) (*model.Invoice, error)
	// Reprocess re-enqueues a terminal job with a fresh attempt budget and
	// moves its source file back to the unprocessed folder when possible.
	Reprocess(ctx context.Context, id string) (*model.Invoice, error)
}

type invoiceUC struct {
	invoices repository.InvoiceRepository
	staging  adapter.Staging
	log      *zerolog.Logger
}

func NewInvoiceUseCase(invoices repository.InvoiceRepository, staging adapter.Staging, logger *zerolog.Logger) *invoiceUC {
	l := logger.With().Str("component", "InvoiceUseCase").Logger()
	return &invoiceUC{invoices: invoices, staging: staging, log: &l}
}

func (u *invoiceUC) List(ctx context.Context, f repository.InvoiceFilter) ([]*model.Invoice, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return u.invoices.List(ctx, nil, f)
}

func (u *invoiceUC) Get(ctx context.Context, id string) (*model.Invoice, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty invoice id", domain.ErrInvalidArgument)
	}
	return u.invoices.FindByID(ctx, nil, id)
}

func (u *invoiceUC) Cancel(ctx context.Context, id string) (*model.Invoice, error) {
	inv, err := u.invoices.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != model.InvoiceStatusProcessing {
		return nil, domain.ErrNotProcessing
	}
	u.moveBackToUnprocessed(ctx, inv)

	inv.Status = model.InvoiceStatusQueued
	inv.Processing.Stage = model.StageQueued
	inv.Processing.LockedAt = nil
	inv.Processing.LastError = "cancelled by operator"
	if err := u.invoices.Save(ctx, nil, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (u *invoiceUC) Reprocess(ctx context.Context, id string) (*model.Invoice, error) {
	inv, err := u.invoices.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !inv.Terminal() {
		return nil, domain.ErrNotTerminal
	}
	u.moveBackToUnprocessed(ctx, inv)

	inv.Status = model.InvoiceStatusQueued
	inv.Processing.Stage = model.StageQueued
	inv.Processing.Attempts = 0
	inv.Processing.LockedAt = nil
	inv.Processing.LastError = ""
	if err := u.invoices.Save(ctx, nil, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// moveBackToUnprocessed is best effort: a file already consumed by the
// pipeline may have left the staging area entirely.
func (u *invoiceUC) moveBackToUnprocessed(ctx context.Context, inv *model.Invoice) {
	if u.staging == nil || inv.SourceFileID == "" {
		return
	}
	folder, err := u.staging.ResolveFolder(ctx, inv.ShopID, adapter.FolderUnprocessed)
	if err != nil {
		u.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("resolve unprocessed folder failed")
		return
	}
	if err := u.staging.Move(ctx, inv.SourceFileID, folder); err != nil {
		u.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("move back to unprocessed failed")
	}
}
