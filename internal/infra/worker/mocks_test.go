package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/domain/ports/repository"
)

// memInvoiceRepo is an in-memory job record store mirroring the claim
// semantics of the real one: stale-lease sweep, FIFO by creation time,
// attempts below the ceiling, atomic under one mutex.
type memInvoiceRepo struct {
	mu      sync.Mutex
	store   map[string]*model.Invoice
	saveErr error
	now     func() time.Time
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{store: make(map[string]*model.Invoice), now: time.Now}
}

func (m *memInvoiceRepo) Save(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	cp.UpdatedAt = m.now()
	m.store[inv.ID] = &cp
	return nil
}

func (m *memInvoiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvoiceRepo) List(ctx context.Context, tx repository.Tx, f repository.InvoiceFilter) ([]*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	return out, nil
}

func (m *memInvoiceRepo) AcquireNext(ctx context.Context) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	for _, inv := range m.store {
		if inv.Status == model.InvoiceStatusProcessing && inv.Processing.LockedAt != nil &&
			now.Sub(*inv.Processing.LockedAt) > model.StaleLeaseAfter {
			inv.Status = model.InvoiceStatusQueued
			inv.Processing.Stage = model.StageQueued
			inv.Processing.LockedAt = nil
			inv.Processing.LastError = "automatically unlocked: stale processing lease"
		}
	}

	var eligible []*model.Invoice
	for _, inv := range m.store {
		if inv.Status == model.InvoiceStatusQueued && inv.Processing.Attempts < model.MaxAttempts {
			eligible = append(eligible, inv)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].CreatedAt.Before(eligible[j].CreatedAt) })

	inv := eligible[0]
	inv.Status = model.InvoiceStatusProcessing
	inv.Processing.Stage = model.StageAcquired
	inv.Processing.LockedAt = &now
	cp := *inv
	return &cp, nil
}

func (m *memInvoiceRepo) FindByContentHash(ctx context.Context, tx repository.Tx, hash, excludeID string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.store {
		if inv.ContentHash != "" && inv.ContentHash == hash && inv.ID != excludeID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memInvoiceRepo) ListRecentProcessed(ctx context.Context, tx repository.Tx, shopID, supplierID, excludeID string, limit int) ([]*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Invoice
	for _, inv := range m.store {
		if inv.Status != model.InvoiceStatusProcessed || inv.ID == excludeID {
			continue
		}
		if inv.ShopID != shopID || inv.SupplierID != supplierID {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memInvoiceRepo) FindBySourceFileID(ctx context.Context, tx repository.Tx, fileID string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.store {
		if inv.SourceFileID == fileID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type mockTxManager struct{}

func (mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// memStaging holds staged files keyed by file id and records moves.
type memStaging struct {
	mu         sync.Mutex
	files      map[string]stagedBytes
	moves      map[string]string // fileID -> destination folder
	fetchOrder []string
}

type stagedBytes struct {
	data []byte
	mime string
	name string
}

func newMemStaging() *memStaging {
	return &memStaging{files: make(map[string]stagedBytes), moves: make(map[string]string)}
}

func (m *memStaging) addFile(id, name, mime string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = stagedBytes{data: data, mime: mime, name: name}
}

func (m *memStaging) Fetch(ctx context.Context, fileID string) ([]byte, string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return nil, "", "", fmt.Errorf("staged file %s not found", fileID)
	}
	m.fetchOrder = append(m.fetchOrder, fileID)
	return f.data, f.mime, f.name, nil
}

func (m *memStaging) Move(ctx context.Context, fileID, destFolderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves[fileID] = destFolderID
	return nil
}

func (m *memStaging) ResolveFolder(ctx context.Context, shopID string, kind adapter.FolderKind) (string, error) {
	return shopID + "/" + string(kind), nil
}

func (m *memStaging) ListFolder(ctx context.Context, folderID string) ([]adapter.StagedFile, error) {
	return nil, nil
}

func (m *memStaging) movedTo(fileID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moves[fileID]
}

// memStore is an in-memory object store.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return key, nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return data, m.types[key], nil
}

func (m *memStore) PresignedReadURL(key string, ttl time.Duration) (string, error) {
	return "http://store.test/files?key=" + key, nil
}

// fakeExtractor returns a scripted sequence of results and errors.
type fakeExtractor struct {
	mu      sync.Mutex
	result  *adapter.ExtractionResult
	errs    []error // consumed one per call; nil entry means success
	calls   int
	lastErr error
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte, mimeType string) (*adapter.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	f.lastErr = err
	if err != nil {
		return nil, err
	}
	cp := *f.result
	return &cp, nil
}

type fakeClassifier struct {
	ctxValue *model.PurchaseContext
}

func (f *fakeClassifier) Classify(ctx context.Context, supplierName string, items []model.LineItem, invoiceDate *time.Time, totals model.Totals) *model.PurchaseContext {
	if f.ctxValue != nil {
		return f.ctxValue
	}
	return &model.PurchaseContext{PurchaseType: "routine", Confidence: 0.5, Explanation: "default"}
}

type fakeRecommender struct {
	recs []model.Recommendation
}

func (f *fakeRecommender) Recommend(ctx context.Context, supplierName string, items []model.LineItem, totals model.Totals) []model.Recommendation {
	return f.recs
}

// memEntityResolver avoids pulling the full resolver wiring into every test.
type memEntityResolver struct {
	mu        sync.Mutex
	suppliers map[string]*model.Supplier
	shops     map[string]*model.Shop
	parts     map[string]*model.Part
}

func newMemEntityResolver() *memEntityResolver {
	return &memEntityResolver{
		suppliers: make(map[string]*model.Supplier),
		shops:     make(map[string]*model.Shop),
		parts:     make(map[string]*model.Part),
	}
}

func (r *memEntityResolver) ResolveShop(ctx context.Context, tx repository.Tx, shopID string) (*model.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shops[shopID]; ok {
		return s, nil
	}
	s := &model.Shop{ID: "shop-" + shopID, ShopID: shopID, Name: shopID}
	r.shops[shopID] = s
	return s, nil
}

func (r *memEntityResolver) ResolveSupplier(ctx context.Context, tx repository.Tx, surfaceName string) (*model.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	norm := model.NormalizeSupplierName(surfaceName)
	if s, ok := r.suppliers[norm]; ok {
		return s, nil
	}
	s := &model.Supplier{ID: "sup-" + norm, NormalizedName: norm, Aliases: []string{surfaceName}}
	r.suppliers[norm] = s
	return s, nil
}

func (r *memEntityResolver) ResolvePart(ctx context.Context, tx repository.Tx, item model.LineItem) (*model.Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	norm := model.NormalizePartDesc(item.Description)
	if p, ok := r.parts[norm]; ok {
		return p, nil
	}
	p := &model.Part{ID: "part-" + norm, NormalizedDesc: norm, SKU: item.SKU}
	r.parts[norm] = p
	return p, nil
}
