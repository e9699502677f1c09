package usecase

import (
	"context"
	"errors"
	"testing"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
)

func newResolver() (EntityResolver, *memShopRepo, *memSupplierRepo, *memPartRepo) {
	shops := newMemShopRepo()
	suppliers := newMemSupplierRepo()
	parts := newMemPartRepo()
	return NewEntityResolver(shops, suppliers, parts), shops, suppliers, parts
}

func TestResolveShop_CreatesOnFirstSighting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, shops, _, _ := newResolver()

	s1, err := r.ResolveShop(ctx, nil, "shop1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s1.ShopID != "shop1" || s1.ID == "" {
		t.Fatalf("unexpected shop %+v", s1)
	}

	s2, err := r.ResolveShop(ctx, nil, "shop1")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if s2.ID != s1.ID {
		t.Fatal("resolution must be idempotent")
	}
	if _, err := shops.FindByShopID(ctx, nil, "shop1"); err != nil {
		t.Fatalf("shop not persisted: %v", err)
	}
}

func TestResolveShop_EmptyID(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newResolver()
	if _, err := r.ResolveShop(context.Background(), nil, ""); err == nil {
		t.Fatal("want error for empty shop id")
	}
}

func TestResolveSupplier_NormalizationAndAliases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _, suppliers, _ := newResolver()

	s1, err := r.ResolveSupplier(ctx, nil, "ACME Corp ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s1.NormalizedName != "acme corp" {
		t.Fatalf("want normalized name, got %q", s1.NormalizedName)
	}

	// A different surface form of the same name resolves to the same
	// supplier and appends an alias.
	s2, err := r.ResolveSupplier(ctx, nil, "acme corp")
	if err != nil {
		t.Fatalf("resolve variant: %v", err)
	}
	if s2.ID != s1.ID {
		t.Fatal("variants must resolve to one supplier")
	}

	stored, err := suppliers.FindByID(ctx, nil, s1.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(stored.Aliases) != 2 {
		t.Fatalf("want both surface forms recorded, got %v", stored.Aliases)
	}

	// A repeated surface form does not duplicate the alias.
	if _, err := r.ResolveSupplier(ctx, nil, "acme corp"); err != nil {
		t.Fatalf("resolve repeat: %v", err)
	}
	stored, _ = suppliers.FindByID(ctx, nil, s1.ID)
	if len(stored.Aliases) != 2 {
		t.Fatalf("alias set must not grow on repeats, got %v", stored.Aliases)
	}
}

func TestResolvePart_SKUBackfill(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _, _, parts := newResolver()

	p1, err := r.ResolvePart(ctx, nil, model.LineItem{Description: "Brake  Pad Set"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p1.NormalizedDesc != "brake pad set" {
		t.Fatalf("want collapsed lowercase desc, got %q", p1.NormalizedDesc)
	}
	if p1.SKU != "" {
		t.Fatalf("no SKU supplied yet, got %q", p1.SKU)
	}

	p2, err := r.ResolvePart(ctx, nil, model.LineItem{Description: "brake pad set", SKU: "BP-100"})
	if err != nil {
		t.Fatalf("resolve with sku: %v", err)
	}
	if p2.ID != p1.ID {
		t.Fatal("descriptions must resolve to one part")
	}
	if p2.SKU != "BP-100" {
		t.Fatalf("want SKU backfilled, got %q", p2.SKU)
	}

	stored, err := parts.FindByNormalizedDesc(ctx, nil, "brake pad set")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.SKU != "BP-100" {
		t.Fatalf("backfill not persisted, got %q", stored.SKU)
	}

	// A later sighting without a SKU must not clear the stored one.
	if _, err := r.ResolvePart(ctx, nil, model.LineItem{Description: "brake pad set"}); err != nil {
		t.Fatalf("resolve repeat: %v", err)
	}
	stored, _ = parts.FindByNormalizedDesc(ctx, nil, "brake pad set")
	if stored.SKU != "BP-100" {
		t.Fatalf("SKU must survive later sightings, got %q", stored.SKU)
	}
}

func TestResolveSupplier_ErrorPassthrough(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newResolver()
	_, err := r.ResolveSupplier(context.Background(), nil, "   ")
	if err == nil {
		t.Fatal("want error for blank supplier name")
	}
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}
