package model

import "time"

type InvoiceStatus string

const (
	InvoiceStatusQueued     InvoiceStatus = "queued"
	InvoiceStatusProcessing InvoiceStatus = "processing"
	InvoiceStatusProcessed  InvoiceStatus = "processed"
	InvoiceStatusFailed     InvoiceStatus = "failed"
)

// Stage labels double as resumability checkpoints: each is persisted before
// the stage's side effect runs.
type Stage string

const (
	StageQueued          Stage = "queued"
	StageAcquired        Stage = "acquired"
	StageDownloading     Stage = "downloading"
	StageHashing         Stage = "hashing"
	StageUploading       Stage = "uploading"
	StageExtracting      Stage = "extracting"
	StageResolving       Stage = "resolving_entities"
	StageClassifying     Stage = "classifying_context"
	StageAnalyzingTrends Stage = "analyzing_trends"
	StageRecommending    Stage = "generating_recommendations"
	StagePersisting      Stage = "persisting"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// MaxAttempts is the retry ceiling: jobs at or above it are never claimed.
const MaxAttempts = 3

// StaleLeaseAfter is how old a processing lease may grow before the sweep
// returns the job to the queue.
const StaleLeaseAfter = 30 * time.Minute

type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

type LineItem struct {
	Description string  `json:"description"`
	SKU         string  `json:"sku,omitempty"`
	MPN         string  `json:"mpn,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
	Confidence  float64 `json:"confidence,omitempty"`
}

type PurchaseConstraints struct {
	Speed        string `json:"speed,omitempty"`
	Availability string `json:"availability,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

type PurchaseContext struct {
	PurchaseType string              `json:"purchase_type"` // routine | rush | specialty
	Constraints  PurchaseConstraints `json:"constraints"`
	Confidence   float64             `json:"confidence"`
	Explanation  string              `json:"explanation"`
}

type TrendAnalysis struct {
	PriceChange        *float64 `json:"price_change,omitempty"`
	PriceChangePercent *float64 `json:"price_change_percent,omitempty"`
	Volatility         *float64 `json:"volatility,omitempty"`
	Anomalies          []string `json:"anomalies,omitempty"`
	Note               string   `json:"note,omitempty"`
}

type SavingsRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Recommendation struct {
	Type                string        `json:"type"`
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	SavingsRange        *SavingsRange `json:"savings_range,omitempty"`
	SavingsPercentRange *SavingsRange `json:"savings_percent_range,omitempty"`
	// PotentialSavings is the legacy single-number field, derived from
	// SavingsRange rather than trusted independently.
	PotentialSavings float64  `json:"potential_savings,omitempty"`
	Confidence       float64  `json:"confidence"`
	Evidence         []string `json:"evidence,omitempty"`
	ActionSteps      []string `json:"action_steps,omitempty"`
	EstimatedTime    string   `json:"estimated_time_to_implement,omitempty"`
}

// Processing is the checkpoint/lease sub-record of an invoice job.
type Processing struct {
	Stage     Stage      `json:"stage"`
	Attempts  int        `json:"attempts"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Invoice is the central job record: one invoice document's unit of work
// through the pipeline.
type Invoice struct {
	ID         string
	ShopID     string
	SupplierID string
	Status     InvoiceStatus

	SourceFileID string
	SourceURL    string

	OriginalStorageKey  string
	ProcessedStorageKey string
	ContentHash         string

	InvoiceNumber string
	InvoiceDate   *time.Time
	Totals        Totals
	LineItems     []LineItem

	Context         *PurchaseContext
	TrendAnalysis   *TrendAnalysis
	Recommendations []Recommendation

	Processing Processing

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the job has reached a state with no further
// automatic transitions.
func (i *Invoice) Terminal() bool {
	return i.Status == InvoiceStatusProcessed || i.Status == InvoiceStatusFailed
}

// LeaseExpired reports whether a processing job's lease is older than the
// staleness threshold at the given instant.
func (i *Invoice) LeaseExpired(now time.Time) bool {
	if i.Status != InvoiceStatusProcessing || i.Processing.LockedAt == nil {
		return false
	}
	return now.Sub(*i.Processing.LockedAt) > StaleLeaseAfter
}
