package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"invoice-intel/internal/config"
	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/domain/ports/repository"
	"invoice-intel/internal/infra/metrics"
	"invoice-intel/internal/infra/redis"
)

// Compile-time check
var _ ScanUseCase = (*scanUC)(nil)

const scanLockKey = "lock:scan:discovery"
const scanLockTTL = 10 * time.Minute

type ScanUseCase interface {
	// Start runs one discovery pass over every configured shop's unprocessed
	// folder and enqueues a job per new file. At most one scan runs at a
	// time; a concurrent Start returns domain.ErrScanInProgress.
	Start(ctx context.Context) (*model.Scan, error)
	Get(ctx context.Context, id string) (*model.Scan, error)
	List(ctx context.Context, limit int) ([]*model.Scan, error)
}

type scanUC struct {
	scans    repository.ScanRepository
	invoices repository.InvoiceRepository
	staging  adapter.Staging
	locker   redis.Locker
	cfg      config.ScanConfig
	log      *zerolog.Logger
}

func NewScanUseCase(scans repository.ScanRepository, invoices repository.InvoiceRepository, staging adapter.Staging, locker redis.Locker, cfg config.ScanConfig, logger *zerolog.Logger) *scanUC {
	l := logger.With().Str("component", "ScanUseCase").Logger()
	return &scanUC{scans: scans, invoices: invoices, staging: staging, locker: locker, cfg: cfg, log: &l}
}

func (u *scanUC) Start(ctx context.Context) (*model.Scan, error) {
	token, err := u.locker.TryLock(ctx, scanLockKey, scanLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := u.locker.Unlock(context.Background(), scanLockKey, token); err != nil {
			u.log.Warn().Err(err).Msg("scan lock release failed")
		}
	}()

	now := time.Now()
	scan := &model.Scan{
		ID:        uuid.NewString(),
		Status:    model.ScanStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.scans.Save(ctx, nil, scan); err != nil {
		return nil, err
	}

	started := time.Now()
	scan.Status = model.ScanStatusRunning
	scan.StartedAt = &started
	if err := u.scans.Save(ctx, nil, scan); err != nil {
		return nil, err
	}

	for _, shopID := range u.cfg.Shops {
		u.scanShop(ctx, scan, shopID)
	}

	finished := time.Now()
	scan.Status = model.ScanStatusCompleted
	scan.FinishedAt = &finished
	if err := u.scans.Save(ctx, nil, scan); err != nil {
		u.failScan(ctx, scan, err)
		return nil, err
	}
	metrics.IncScan(string(scan.Status))
	u.log.Info().
		Str("scan_id", scan.ID).
		Int("scanned", scan.Stats.Scanned).
		Int("new", scan.Stats.New).
		Int("errors", scan.Stats.Errors).
		Msg("scan finished")
	return scan, nil
}

// failScan parks the record in failed so it is not abandoned in running. The
// write is best effort: the store that just refused the completed save may
// refuse this one too.
func (u *scanUC) failScan(ctx context.Context, scan *model.Scan, cause error) {
	finished := time.Now()
	scan.Status = model.ScanStatusFailed
	scan.Error = cause.Error()
	scan.FinishedAt = &finished
	if err := u.scans.Save(ctx, nil, scan); err != nil {
		u.log.Warn().Err(err).Str("scan_id", scan.ID).Msg("failed-scan save failed")
	}
	metrics.IncScan(string(model.ScanStatusFailed))
	u.log.Error().Err(cause).Str("scan_id", scan.ID).Msg("scan failed")
}

func (u *scanUC) scanShop(ctx context.Context, scan *model.Scan, shopID string) {
	folder, err := u.staging.ResolveFolder(ctx, shopID, adapter.FolderUnprocessed)
	if err != nil {
		u.recordFile(scan, model.ScannedFile{
			ShopID:  shopID,
			Outcome: model.ScanOutcomeError,
			Error:   fmt.Sprintf("resolve unprocessed folder: %v", err),
		})
		return
	}
	files, err := u.staging.ListFolder(ctx, folder)
	if err != nil {
		u.recordFile(scan, model.ScannedFile{
			ShopID:  shopID,
			Outcome: model.ScanOutcomeError,
			Error:   fmt.Sprintf("list folder: %v", err),
		})
		return
	}

	for _, f := range files {
		u.recordFile(scan, u.ingest(ctx, shopID, f))
	}
}

func (u *scanUC) ingest(ctx context.Context, shopID string, f adapter.StagedFile) model.ScannedFile {
	rec := model.ScannedFile{FileID: f.ID, Name: f.Name, ShopID: shopID}

	if !u.allowedExtension(f.Name) {
		rec.Outcome = model.ScanOutcomeSkipped
		return rec
	}

	existing, err := u.invoices.FindBySourceFileID(ctx, nil, f.ID)
	if err == nil {
		rec.Outcome = model.ScanOutcomeExisting
		rec.InvoiceID = existing.ID
		return rec
	}
	if err != domain.ErrNotFound {
		rec.Outcome = model.ScanOutcomeError
		rec.Error = err.Error()
		return rec
	}

	now := time.Now()
	inv := &model.Invoice{
		ID:           uuid.NewString(),
		ShopID:       shopID,
		Status:       model.InvoiceStatusQueued,
		SourceFileID: f.ID,
		Processing:   model.Processing{Stage: model.StageQueued},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.invoices.Save(ctx, nil, inv); err != nil {
		rec.Outcome = model.ScanOutcomeError
		rec.Error = err.Error()
		return rec
	}
	rec.Outcome = model.ScanOutcomeNew
	rec.InvoiceID = inv.ID
	return rec
}

func (u *scanUC) recordFile(scan *model.Scan, rec model.ScannedFile) {
	scan.ScannedFiles = append(scan.ScannedFiles, rec)
	scan.Stats.Record(rec.Outcome)
	metrics.IncScanFile(string(rec.Outcome))
}

func (u *scanUC) allowedExtension(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	for _, allowed := range u.cfg.Extensions {
		if ext == strings.ToLower(strings.TrimPrefix(allowed, ".")) {
			return true
		}
	}
	return false
}

func (u *scanUC) Get(ctx context.Context, id string) (*model.Scan, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty scan id", domain.ErrInvalidArgument)
	}
	return u.scans.FindByID(ctx, nil, id)
}

func (u *scanUC) List(ctx context.Context, limit int) ([]*model.Scan, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.scans.List(ctx, nil, limit)
}
