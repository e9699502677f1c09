package repository

import (
	"context"

	"invoice-intel/internal/domain/model"
)

type PartRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Part) error
	FindByNormalizedDesc(ctx context.Context, tx Tx, normalized string) (*model.Part, error)
}
