package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"invoice-intel/internal/config"
	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	pg "invoice-intel/internal/infra/db/postgres"
)

// seed provisions the schema and a few demo shops so a fresh deployment has
// something to scan against.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema ensured")

	shopRepo := pg.NewShopRepo(pool)
	created := 0
	for _, shopID := range cfg.Scan.Shops {
		if _, err := shopRepo.FindByShopID(ctx, nil, shopID); err == nil {
			continue
		} else if err != domain.ErrNotFound {
			log.Fatalf("find shop %s: %v", shopID, err)
		}
		now := time.Now()
		s := &model.Shop{
			ID:        uuid.NewString(),
			ShopID:    shopID,
			Name:      shopID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := shopRepo.Save(ctx, nil, s); err != nil {
			log.Fatalf("save shop %s: %v", shopID, err)
		}
		created++
	}
	fmt.Printf("%d shops created (%d configured)\n", created, len(cfg.Scan.Shops))
}
