package adapter

import (
	"context"
	"time"

	"invoice-intel/internal/domain/model"
)

// ExtractionResult is the structured output of the extraction engine.
type ExtractionResult struct {
	SupplierName  string
	InvoiceNumber string
	InvoiceDate   *time.Time
	LineItems     []model.LineItem
	Totals        model.Totals
}

// Extractor turns raw document bytes into structured invoice data.
// Extraction failures propagate; the pipeline retries them.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (*ExtractionResult, error)
}

// Classifier assigns purchase context. Implementations must never fail:
// on any internal error they degrade to a neutral routine classification.
type Classifier interface {
	Classify(ctx context.Context, supplierName string, items []model.LineItem, invoiceDate *time.Time, totals model.Totals) *model.PurchaseContext
}

// Recommender produces savings recommendations. Implementations must never
// fail: on any internal error they degrade to an empty list.
type Recommender interface {
	Recommend(ctx context.Context, supplierName string, items []model.LineItem, totals model.Totals) []model.Recommendation
}

// ChatProvider is the minimal chat-completion surface the AI engines sit on.
type ChatProvider interface {
	Chat(ctx context.Context, system, user string) (string, error)
}
