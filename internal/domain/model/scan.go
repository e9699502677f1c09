package model

import "time"

type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

type ScanOutcome string

const (
	ScanOutcomeNew      ScanOutcome = "new"
	ScanOutcomeExisting ScanOutcome = "existing"
	ScanOutcomeSkipped  ScanOutcome = "skipped"
	ScanOutcomeError    ScanOutcome = "error"
)

type ScannedFile struct {
	FileID    string      `json:"file_id"`
	Name      string      `json:"name"`
	ShopID    string      `json:"shop_id"`
	Outcome   ScanOutcome `json:"outcome"`
	InvoiceID string      `json:"invoice_id,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type ScanStats struct {
	Scanned  int `json:"scanned"`
	New      int `json:"new"`
	Existing int `json:"existing"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// Scan is one batch discovery run over the staging area. It only creates
// queued jobs; its lifecycle is independent of the per-job state machine.
type Scan struct {
	ID           string
	Status       ScanStatus
	ScannedFiles []ScannedFile
	Stats        ScanStats
	Error        string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *ScanStats) Record(o ScanOutcome) {
	s.Scanned++
	switch o {
	case ScanOutcomeNew:
		s.New++
	case ScanOutcomeExisting:
		s.Existing++
	case ScanOutcomeSkipped:
		s.Skipped++
	case ScanOutcomeError:
		s.Errors++
	}
}
