package adapter

import (
	"context"
	"fmt"
	"time"
)

// ObjectStore is the durable artifact store. Keys follow
// shops/{shopId}/invoices/{jobId}/original.{ext} and .../processed.json.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
	PresignedReadURL(key string, ttl time.Duration) (string, error)
}

func OriginalKey(shopID, invoiceID, ext string) string {
	return fmt.Sprintf("shops/%s/invoices/%s/original.%s", shopID, invoiceID, ext)
}

func ProcessedKey(shopID, invoiceID string) string {
	return fmt.Sprintf("shops/%s/invoices/%s/processed.json", shopID, invoiceID)
}
