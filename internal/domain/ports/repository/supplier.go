package repository

import (
	"context"

	"invoice-intel/internal/domain/model"
)

type SupplierRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Supplier) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Supplier, error)
	// FindByNormalizedName matches the normalized name column or alias set
	// membership. Returns domain.ErrNotFound when unseen.
	FindByNormalizedName(ctx context.Context, tx Tx, normalized string) (*model.Supplier, error)
}
