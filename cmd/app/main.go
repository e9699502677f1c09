package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invoice-intel/internal/config"
	aiAdapters "invoice-intel/internal/infra/adapters/ai"
	stagingAdapters "invoice-intel/internal/infra/adapters/staging"
	"invoice-intel/internal/infra/adapters/storage"
	pg "invoice-intel/internal/infra/db/postgres"
	"invoice-intel/internal/infra/logging"
	"invoice-intel/internal/infra/metrics"
	red "invoice-intel/internal/infra/redis"
	"invoice-intel/internal/infra/web"
	"invoice-intel/internal/infra/worker"
	"invoice-intel/internal/usecase"

	"invoice-intel/internal/domain/ports/adapter"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (relaxed logging, noop-friendly)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	invoiceRepo := pg.NewInvoiceRepo(pool, tm)
	supplierRepo := pg.NewSupplierRepo(pool)
	shopRepo := pg.NewShopRepo(pool)
	partRepo := pg.NewPartRepo(pool)
	scanRepo := pg.NewScanRepo(pool)

	// ---- Staging area ----
	var staging adapter.Staging
	switch cfg.Staging.Kind {
	case "drive":
		staging, err = stagingAdapters.NewDriveStaging(&cfg.Staging)
	default:
		staging, err = stagingAdapters.NewLocalStaging(&cfg.Staging)
	}
	if err != nil {
		log.Fatalf("staging: %v", err)
	}
	logger.Info().Str("kind", cfg.Staging.Kind).Msg("staging area ready")

	// ---- Object store ----
	fileStore, err := storage.NewFileStore(cfg.Storage.Root, cfg.Storage.BaseURL, cfg.Storage.SignKey)
	if err != nil {
		log.Fatalf("object store: %v", err)
	}

	// ---- AI provider ----
	var provider aiAdapters.FileChatProvider
	switch cfg.AI.Provider {
	case "gemini":
		provider, err = aiAdapters.NewGeminiProvider(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.Model)
	case "noop":
		provider = &aiAdapters.NoopProvider{}
	default:
		provider, err = aiAdapters.NewOpenAIProvider(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.Model, cfg.AI.RequestTimeout)
	}
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}
	limited := aiAdapters.NewLimitedProvider(provider, rateLimiter, cfg.AI.CallsPerMinute)
	logger.Info().Str("provider", provider.Name()).Str("model", cfg.AI.Model).Msg("ai provider ready")

	extractor := aiAdapters.NewChatExtractor(limited)
	classifier := aiAdapters.NewChatClassifier(limited, logger)
	recommender := aiAdapters.NewChatRecommender(limited, logger)

	// ---- Use cases ----
	resolver := usecase.NewEntityResolver(shopRepo, supplierRepo, partRepo)
	invoiceUC := usecase.NewInvoiceUseCase(invoiceRepo, staging, logger)
	scanUC := usecase.NewScanUseCase(scanRepo, invoiceRepo, staging, locker, cfg.Scan, logger)

	// ---- Pipeline worker ----
	pipeline := worker.NewPipeline(invoiceRepo, tm, resolver, staging, fileStore, extractor, classifier, recommender, logger)
	processor := worker.NewProcessor(invoiceRepo, pipeline, cfg.Worker.IdleInterval, logger)
	go processor.Start(ctx)

	// ---- HTTP server ----
	webServer := web.NewServer(invoiceUC, scanUC, fileStore, cfg.Admin.APIKey, cfg.Storage.URLTTL, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: webServer.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
