package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type memShopRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Shop // by external shop id
}

func newMemShopRepo() *memShopRepo {
	return &memShopRepo{store: make(map[string]*model.Shop)}
}

func (m *memShopRepo) Save(ctx context.Context, tx repository.Tx, s *model.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ShopID] = &cp
	return nil
}

func (m *memShopRepo) FindByShopID(ctx context.Context, tx repository.Tx, shopID string) (*model.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[shopID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memShopRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.store {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memSupplierRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Supplier // by id
}

func newMemSupplierRepo() *memSupplierRepo {
	return &memSupplierRepo{store: make(map[string]*model.Supplier)}
}

func (m *memSupplierRepo) Save(ctx context.Context, tx repository.Tx, s *model.Supplier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Aliases = append([]string(nil), s.Aliases...)
	m.store[s.ID] = &cp
	return nil
}

func (m *memSupplierRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSupplierRepo) FindByNormalizedName(ctx context.Context, tx repository.Tx, normalized string) (*model.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.store {
		if s.NormalizedName == normalized || s.HasAlias(normalized) {
			cp := *s
			cp.Aliases = append([]string(nil), s.Aliases...)
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memPartRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Part // by normalized description
}

func newMemPartRepo() *memPartRepo {
	return &memPartRepo{store: make(map[string]*model.Part)}
}

func (m *memPartRepo) Save(ctx context.Context, tx repository.Tx, p *model.Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.NormalizedDesc] = &cp
	return nil
}

func (m *memPartRepo) FindByNormalizedDesc(ctx context.Context, tx repository.Tx, normalized string) (*model.Part, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[normalized]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type memScanRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Scan

	// failOnStatus makes Save reject writes of exactly that status.
	failOnStatus model.ScanStatus
	failErr      error
}

func newMemScanRepo() *memScanRepo {
	return &memScanRepo{store: make(map[string]*model.Scan)}
}

func (m *memScanRepo) Save(ctx context.Context, tx repository.Tx, s *model.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOnStatus != "" && s.Status == m.failOnStatus {
		return m.failErr
	}
	cp := *s
	cp.ScannedFiles = append([]model.ScannedFile(nil), s.ScannedFiles...)
	m.store[s.ID] = &cp
	return nil
}

func (m *memScanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memScanRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Scan
	for _, s := range m.store {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memInvoiceRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{store: make(map[string]*model.Invoice)}
}

func (m *memInvoiceRepo) Save(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.store[inv.ID] = &cp
	return nil
}

func (m *memInvoiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvoiceRepo) List(ctx context.Context, tx repository.Tx, f repository.InvoiceFilter) ([]*model.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Invoice
	for _, inv := range m.store {
		if f.ShopID != "" && inv.ShopID != f.ShopID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memInvoiceRepo) AcquireNext(ctx context.Context) (*model.Invoice, error) {
	return nil, domain.ErrNotFound
}

func (m *memInvoiceRepo) FindByContentHash(ctx context.Context, tx repository.Tx, hash, excludeID string) (*model.Invoice, error) {
	return nil, domain.ErrNotFound
}

func (m *memInvoiceRepo) ListRecentProcessed(ctx context.Context, tx repository.Tx, shopID, supplierID, excludeID string, limit int) ([]*model.Invoice, error) {
	return nil, nil
}

func (m *memInvoiceRepo) FindBySourceFileID(ctx context.Context, tx repository.Tx, fileID string) (*model.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.store {
		if inv.SourceFileID == fileID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// fakeStaging serves a static folder listing and records moves.
type fakeStaging struct {
	mu      sync.Mutex
	folders map[string][]adapter.StagedFile // folder ref -> files
	moves   map[string]string
	listErr error
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{folders: make(map[string][]adapter.StagedFile), moves: make(map[string]string)}
}

func (f *fakeStaging) Fetch(ctx context.Context, fileID string) ([]byte, string, string, error) {
	return nil, "", "", fmt.Errorf("not staged: %s", fileID)
}

func (f *fakeStaging) Move(ctx context.Context, fileID, destFolderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves[fileID] = destFolderID
	return nil
}

func (f *fakeStaging) ResolveFolder(ctx context.Context, shopID string, kind adapter.FolderKind) (string, error) {
	return shopID + "/" + string(kind), nil
}

func (f *fakeStaging) ListFolder(ctx context.Context, folderID string) ([]adapter.StagedFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.folders[folderID], nil
}

// fakeLocker grants the lock unless held.
type fakeLocker struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return "", domain.ErrScanInProgress
	}
	l.held = true
	return "token", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}
