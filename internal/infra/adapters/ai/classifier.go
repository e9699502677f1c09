package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/infra/metrics"
)

var _ adapter.Classifier = (*ChatClassifier)(nil)

const classifySystemPrompt = `You classify purchase context for shop invoices.
Respond with ONLY a JSON object:
{"purchase_type": "routine"|"rush"|"specialty",
 "constraints": {"speed": string, "availability": string, "relationship": string},
 "confidence": number, "explanation": string}`

// ChatClassifier assigns purchase context. Per contract it never fails: on
// any provider or parse error it degrades to a neutral routine
// classification.
type ChatClassifier struct {
	provider FileChatProvider
	log      *zerolog.Logger
}

func NewChatClassifier(provider FileChatProvider, logger *zerolog.Logger) *ChatClassifier {
	l := logger.With().Str("component", "ChatClassifier").Logger()
	return &ChatClassifier{provider: provider, log: &l}
}

func neutralContext() *model.PurchaseContext {
	return &model.PurchaseContext{
		PurchaseType: "routine",
		Constraints:  model.PurchaseConstraints{},
		Confidence:   0.5,
		Explanation:  "classification unavailable; defaulted to routine purchase",
	}
}

func (c *ChatClassifier) Classify(ctx context.Context, supplierName string, items []model.LineItem, invoiceDate *time.Time, totals model.Totals) *model.PurchaseContext {
	start := time.Now()
	reply, err := c.provider.Chat(ctx, classifySystemPrompt, classifyPrompt(supplierName, items, invoiceDate, totals))
	metrics.ObserveAICall("classify", c.provider.Name(), int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("classification degraded to neutral default")
		return neutralContext()
	}

	obj, ok := firstJSONObject(reply)
	if !ok {
		c.log.Warn().Msg("classification response had no JSON object")
		return neutralContext()
	}
	var raw struct {
		PurchaseType string `json:"purchase_type"`
		Constraints  struct {
			Speed        string `json:"speed"`
			Availability string `json:"availability"`
			Relationship string `json:"relationship"`
		} `json:"constraints"`
		Confidence  interface{} `json:"confidence"`
		Explanation string      `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		c.log.Warn().Err(err).Msg("classification response did not decode")
		return neutralContext()
	}

	pt := strings.ToLower(strings.TrimSpace(raw.PurchaseType))
	switch pt {
	case "routine", "rush", "specialty":
	default:
		pt = "routine"
	}
	conf := asFloat(raw.Confidence)
	if conf <= 0 || conf > 1 {
		conf = 0.5
	}
	return &model.PurchaseContext{
		PurchaseType: pt,
		Constraints: model.PurchaseConstraints{
			Speed:        raw.Constraints.Speed,
			Availability: raw.Constraints.Availability,
			Relationship: raw.Constraints.Relationship,
		},
		Confidence:  conf,
		Explanation: raw.Explanation,
	}
}

func classifyPrompt(supplierName string, items []model.LineItem, invoiceDate *time.Time, totals model.Totals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Supplier: %s\n", supplierName)
	if invoiceDate != nil {
		fmt.Fprintf(&b, "Invoice date: %s\n", invoiceDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Total: %.2f (subtotal %.2f, tax %.2f, shipping %.2f)\n",
		totals.Total, totals.Subtotal, totals.Tax, totals.Shipping)
	b.WriteString("Line items:\n")
	for _, li := range items {
		fmt.Fprintf(&b, "- %s x%.2f @ %.2f = %.2f\n", li.Description, li.Quantity, li.UnitPrice, li.Total)
	}
	return b.String()
}
