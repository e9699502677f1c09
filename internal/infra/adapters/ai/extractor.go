package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/infra/metrics"
)

var _ adapter.Extractor = (*ChatExtractor)(nil)

const extractSystemPrompt = `You are an invoice data extraction engine.
Given an invoice document, respond with ONLY a JSON object:
{"supplier_name": string, "invoice_number": string, "invoice_date": "YYYY-MM-DD",
 "line_items": [{"description": string, "sku": string, "mpn": string,
   "quantity": number, "unit_price": number, "total": number, "confidence": number}],
 "totals": {"subtotal": number, "tax": number, "shipping": number, "total": number}}
Use empty strings and zeros for values you cannot read. No prose, no markdown.`

// ChatExtractor turns raw document bytes into structured invoice data via a
// document-grounded chat completion. Extraction errors propagate: the retry
// policy owns them.
type ChatExtractor struct {
	provider FileChatProvider
}

func NewChatExtractor(provider FileChatProvider) *ChatExtractor {
	return &ChatExtractor{provider: provider}
}

func (e *ChatExtractor) Extract(ctx context.Context, data []byte, mimeType string) (*adapter.ExtractionResult, error) {
	start := time.Now()
	reply, err := e.provider.ChatWithFile(ctx, extractSystemPrompt,
		"Extract the structured data from this invoice.", data, mimeType)
	metrics.ObserveAICall("extract", e.provider.Name(), int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	obj, ok := firstJSONObject(reply)
	if !ok {
		return nil, fmt.Errorf("extract: no JSON object in response")
	}
	var raw struct {
		SupplierName  string `json:"supplier_name"`
		InvoiceNumber string `json:"invoice_number"`
		InvoiceDate   string `json:"invoice_date"`
		LineItems     []struct {
			Description string      `json:"description"`
			SKU         string      `json:"sku"`
			MPN         string      `json:"mpn"`
			Quantity    interface{} `json:"quantity"`
			UnitPrice   interface{} `json:"unit_price"`
			Total       interface{} `json:"total"`
			Confidence  interface{} `json:"confidence"`
		} `json:"line_items"`
		Totals struct {
			Subtotal interface{} `json:"subtotal"`
			Tax      interface{} `json:"tax"`
			Shipping interface{} `json:"shipping"`
			Total    interface{} `json:"total"`
		} `json:"totals"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("extract: decode response: %w", err)
	}

	res := &adapter.ExtractionResult{
		SupplierName:  raw.SupplierName,
		InvoiceNumber: raw.InvoiceNumber,
		Totals: model.Totals{
			Subtotal: asFloat(raw.Totals.Subtotal),
			Tax:      asFloat(raw.Totals.Tax),
			Shipping: asFloat(raw.Totals.Shipping),
			Total:    asFloat(raw.Totals.Total),
		},
	}
	if raw.InvoiceDate != "" {
		for _, layout := range []string{"2006-01-02", time.RFC3339, "01/02/2006"} {
			if t, err := time.Parse(layout, raw.InvoiceDate); err == nil {
				res.InvoiceDate = &t
				break
			}
		}
	}
	res.LineItems = make([]model.LineItem, 0, len(raw.LineItems))
	for _, li := range raw.LineItems {
		if li.Description == "" {
			continue
		}
		res.LineItems = append(res.LineItems, model.LineItem{
			Description: li.Description,
			SKU:         li.SKU,
			MPN:         li.MPN,
			Quantity:    asFloat(li.Quantity),
			UnitPrice:   asFloat(li.UnitPrice),
			Total:       asFloat(li.Total),
			Confidence:  asFloat(li.Confidence),
		})
	}
	return res, nil
}
