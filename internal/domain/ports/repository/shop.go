package repository

import (
	"context"

	"invoice-intel/internal/domain/model"
)

type ShopRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Shop) error
	FindByShopID(ctx context.Context, tx Tx, shopID string) (*model.Shop, error)
}
