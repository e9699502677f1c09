package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/repository"
)

// Compile-time check
var _ EntityResolver = (*resolverUC)(nil)

// EntityResolver is the get-or-create surface for the reference entities an
// invoice links to. Resolution is idempotent: the same surface form always
// lands on the same entity.
type EntityResolver interface {
	// ResolveShop returns the shop for the external shop id, creating it on
	// first sighting.
	ResolveShop(ctx context.Context, tx repository.Tx, shopID string) (*model.Shop, error)
	// ResolveSupplier matches the normalized supplier name against names and
	// aliases; an unseen surface form of a known supplier is appended as a
	// new alias.
	ResolveSupplier(ctx context.Context, tx repository.Tx, surfaceName string) (*model.Supplier, error)
	// ResolvePart returns the part for the line-item description, creating
	// it on first sighting and backfilling the SKU when a later sighting
	// supplies one.
	ResolvePart(ctx context.Context, tx repository.Tx, item model.LineItem) (*model.Part, error)
}

type resolverUC struct {
	shops     repository.ShopRepository
	suppliers repository.SupplierRepository
	parts     repository.PartRepository
}

func NewEntityResolver(shops repository.ShopRepository, suppliers repository.SupplierRepository, parts repository.PartRepository) *resolverUC {
	return &resolverUC{shops: shops, suppliers: suppliers, parts: parts}
}

func (r *resolverUC) ResolveShop(ctx context.Context, tx repository.Tx, shopID string) (*model.Shop, error) {
	if shopID == "" {
		return nil, fmt.Errorf("%w: empty shop id", domain.ErrInvalidArgument)
	}
	s, err := r.shops.FindByShopID(ctx, tx, shopID)
	if err == nil {
		return s, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}
	now := time.Now()
	s = &model.Shop{
		ID:        uuid.NewString(),
		ShopID:    shopID,
		Name:      shopID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.shops.Save(ctx, tx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *resolverUC) ResolveSupplier(ctx context.Context, tx repository.Tx, surfaceName string) (*model.Supplier, error) {
	surface := strings.TrimSpace(surfaceName)
	normalized := model.NormalizeSupplierName(surfaceName)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty supplier name", domain.ErrInvalidArgument)
	}
	s, err := r.suppliers.FindByNormalizedName(ctx, tx, normalized)
	if err == nil {
		if !s.HasAlias(surface) {
			s.Aliases = append(s.Aliases, surface)
			s.UpdatedAt = time.Now()
			if err := r.suppliers.Save(ctx, tx, s); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}
	now := time.Now()
	s = &model.Supplier{
		ID:             uuid.NewString(),
		NormalizedName: normalized,
		Aliases:        []string{surface},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.suppliers.Save(ctx, tx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *resolverUC) ResolvePart(ctx context.Context, tx repository.Tx, item model.LineItem) (*model.Part, error) {
	normalized := model.NormalizePartDesc(item.Description)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty part description", domain.ErrInvalidArgument)
	}
	p, err := r.parts.FindByNormalizedDesc(ctx, tx, normalized)
	if err == nil {
		if p.SKU == "" && item.SKU != "" {
			p.SKU = item.SKU
			p.UpdatedAt = time.Now()
			if err := r.parts.Save(ctx, tx, p); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}
	now := time.Now()
	p = &model.Part{
		ID:             uuid.NewString(),
		NormalizedDesc: normalized,
		SKU:            item.SKU,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.parts.Save(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}
