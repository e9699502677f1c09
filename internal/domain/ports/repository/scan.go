package repository

import (
	"context"

	"invoice-intel/internal/domain/model"
)

type ScanRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Scan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Scan, error)
	List(ctx context.Context, tx Tx, limit int) ([]*model.Scan, error)
}
