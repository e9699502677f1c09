package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/domain/ports/repository"
	"invoice-intel/internal/infra/metrics"
	"invoice-intel/internal/usecase"
)

// trendHistoryLimit bounds the prior-invoice sample used for trend analysis.
const trendHistoryLimit = 10

// Pipeline executes the nine ordered stages over one claimed job. Each stage
// persists its name as a checkpoint before risking a side effect, so a crash
// mid-stage leaves the last attempted stage on record. Retries restart from
// the first stage; stages are idempotent at whole-stage granularity.
type Pipeline struct {
	invoices    repository.InvoiceRepository
	tm          repository.TransactionManager
	resolver    usecase.EntityResolver
	staging     adapter.Staging
	store       adapter.ObjectStore
	extractor   adapter.Extractor
	classifier  adapter.Classifier
	recommender adapter.Recommender
	log         *zerolog.Logger
}

func NewPipeline(
	invoices repository.InvoiceRepository,
	tm repository.TransactionManager,
	resolver usecase.EntityResolver,
	staging adapter.Staging,
	store adapter.ObjectStore,
	extractor adapter.Extractor,
	classifier adapter.Classifier,
	recommender adapter.Recommender,
	logger *zerolog.Logger,
) *Pipeline {
	l := logger.With().Str("component", "Pipeline").Logger()
	return &Pipeline{
		invoices:    invoices,
		tm:          tm,
		resolver:    resolver,
		staging:     staging,
		store:       store,
		extractor:   extractor,
		recommender: recommender,
		classifier:  classifier,
		log:         &l,
	}
}

// Run drives one claimed invoice through all stages and finalization.
func (p *Pipeline) Run(ctx context.Context, inv *model.Invoice) error {
	var (
		data     []byte
		mimeType string
		supplier *model.Supplier
	)

	// 1. downloading
	err := p.stage(ctx, inv, model.StageDownloading, func(ctx context.Context) error {
		if inv.SourceFileID == "" {
			return domain.ErrMissingSourceFile
		}
		var err error
		data, mimeType, _, err = p.staging.Fetch(ctx, inv.SourceFileID)
		return err
	})
	if err != nil {
		return err
	}

	// 2. hashing
	err = p.stage(ctx, inv, model.StageHashing, func(ctx context.Context) error {
		sum := sha256.Sum256(data)
		inv.ContentHash = hex.EncodeToString(sum[:])
		other, err := p.invoices.FindByContentHash(ctx, nil, inv.ContentHash, inv.ID)
		if err == nil {
			return fmt.Errorf("%w: content matches invoice %s", domain.ErrDuplicateInvoice, other.ID)
		}
		if err != domain.ErrNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 3. uploading
	err = p.stage(ctx, inv, model.StageUploading, func(ctx context.Context) error {
		key := adapter.OriginalKey(inv.ShopID, inv.ID, fileExtension(mimeType, data))
		if _, err := p.store.Put(ctx, key, data, mimeType); err != nil {
			return err
		}
		inv.OriginalStorageKey = key
		return nil
	})
	if err != nil {
		return err
	}

	// 4. extracting
	var extracted *adapter.ExtractionResult
	err = p.stage(ctx, inv, model.StageExtracting, func(ctx context.Context) error {
		var err error
		extracted, err = p.extractor.Extract(ctx, data, mimeType)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = extracted.InvoiceNumber
		inv.InvoiceDate = extracted.InvoiceDate
		inv.Totals = extracted.Totals
		inv.LineItems = extracted.LineItems
		return nil
	})
	if err != nil {
		return err
	}

	// 5. resolving_entities
	err = p.stage(ctx, inv, model.StageResolving, func(ctx context.Context) error {
		if _, err := p.resolver.ResolveShop(ctx, nil, inv.ShopID); err != nil {
			return err
		}
		if extracted.SupplierName != "" {
			var err error
			supplier, err = p.resolver.ResolveSupplier(ctx, nil, extracted.SupplierName)
			if err != nil {
				return err
			}
			inv.SupplierID = supplier.ID
		}
		for _, li := range inv.LineItems {
			if _, err := p.resolver.ResolvePart(ctx, nil, li); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 6. classifying_context; the engine never fails.
	err = p.stage(ctx, inv, model.StageClassifying, func(ctx context.Context) error {
		inv.Context = p.classifier.Classify(ctx, extracted.SupplierName, inv.LineItems, inv.InvoiceDate, inv.Totals)
		return nil
	})
	if err != nil {
		return err
	}

	// 7. analyzing_trends; query failures degrade to an explanatory note.
	err = p.stage(ctx, inv, model.StageAnalyzingTrends, func(ctx context.Context) error {
		history, err := p.invoices.ListRecentProcessed(ctx, nil, inv.ShopID, inv.SupplierID, inv.ID, trendHistoryLimit)
		if err != nil {
			p.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("trend history query failed")
			inv.TrendAnalysis = &model.TrendAnalysis{Note: "trend analysis unavailable: history query failed"}
			return nil
		}
		inv.TrendAnalysis = AnalyzeTrends(inv, history)
		return nil
	})
	if err != nil {
		return err
	}

	// 8. generating_recommendations; the engine never fails.
	err = p.stage(ctx, inv, model.StageRecommending, func(ctx context.Context) error {
		inv.Recommendations = p.recommender.Recommend(ctx, extracted.SupplierName, inv.LineItems, inv.Totals)
		return nil
	})
	if err != nil {
		return err
	}

	// 9. persisting
	err = p.stage(ctx, inv, model.StagePersisting, func(ctx context.Context) error {
		artifact := struct {
			InvoiceNumber   string                 `json:"invoice_number,omitempty"`
			InvoiceDate     *time.Time             `json:"invoice_date,omitempty"`
			SupplierName    string                 `json:"supplier_name,omitempty"`
			Totals          model.Totals           `json:"totals"`
			LineItems       []model.LineItem       `json:"line_items"`
			Context         *model.PurchaseContext `json:"context,omitempty"`
			TrendAnalysis   *model.TrendAnalysis   `json:"trend_analysis,omitempty"`
			Recommendations []model.Recommendation `json:"recommendations"`
			ProcessedAt     time.Time              `json:"processed_at"`
		}{
			InvoiceNumber:   inv.InvoiceNumber,
			InvoiceDate:     inv.InvoiceDate,
			SupplierName:    extracted.SupplierName,
			Totals:          inv.Totals,
			LineItems:       inv.LineItems,
			Context:         inv.Context,
			TrendAnalysis:   inv.TrendAnalysis,
			Recommendations: inv.Recommendations,
			ProcessedAt:     time.Now().UTC(),
		}
		payload, err := json.Marshal(artifact)
		if err != nil {
			return err
		}
		key := adapter.ProcessedKey(inv.ShopID, inv.ID)
		if _, err := p.store.Put(ctx, key, payload, "application/json"); err != nil {
			return err
		}
		inv.ProcessedStorageKey = key
		return nil
	})
	if err != nil {
		return err
	}

	return p.finalize(ctx, inv)
}

// finalize marks the job processed and relocates the source file. The move
// is best effort: its failure is logged, never surfaced.
func (p *Pipeline) finalize(ctx context.Context, inv *model.Invoice) error {
	inv.Status = model.InvoiceStatusProcessed
	inv.Processing.Stage = model.StageCompleted
	inv.Processing.LockedAt = nil
	inv.Processing.LastError = ""
	err := p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return p.invoices.Save(ctx, tx, inv)
	})
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	p.moveSourceFile(ctx, inv, adapter.FolderProcessed)
	return nil
}

func (p *Pipeline) moveSourceFile(ctx context.Context, inv *model.Invoice, kind adapter.FolderKind) {
	if inv.SourceFileID == "" {
		return
	}
	folder, err := p.staging.ResolveFolder(ctx, inv.ShopID, kind)
	if err != nil {
		p.log.Warn().Err(err).Str("invoice_id", inv.ID).Str("kind", string(kind)).Msg("resolve folder failed")
		return
	}
	if err := p.staging.Move(ctx, inv.SourceFileID, folder); err != nil {
		p.log.Warn().Err(err).Str("invoice_id", inv.ID).Str("kind", string(kind)).Msg("source file move failed")
	}
}

// stage persists the checkpoint, runs the stage body, and records latency
// and error metrics under the stage's name.
func (p *Pipeline) stage(ctx context.Context, inv *model.Invoice, s model.Stage, fn func(ctx context.Context) error) error {
	inv.Processing.Stage = s
	if err := p.invoices.Save(ctx, nil, inv); err != nil {
		return fmt.Errorf("checkpoint %s: %w", s, err)
	}
	start := time.Now()
	err := fn(ctx)
	metrics.ObserveStage(string(s), int(time.Since(start)/time.Millisecond))
	if err != nil {
		metrics.IncStageError(string(s))
		return fmt.Errorf("stage %s: %w", s, err)
	}
	return p.invoices.Save(ctx, nil, inv)
}

// fileExtension infers the artifact extension from the mime type, sniffing
// the bytes when the type is missing or unhelpful.
func fileExtension(mimeType string, data []byte) string {
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	switch mimeType {
	case "application/pdf":
		return "pdf"
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/tiff":
		return "tiff"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}
