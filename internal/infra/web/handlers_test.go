package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/repository"
	"invoice-intel/internal/infra/adapters/storage"
)

const testAPIKey = "test-api-key"

func newLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// stubInvoiceUC serves canned invoices and records mutation calls.
type stubInvoiceUC struct {
	invoices  map[string]*model.Invoice
	cancelled []string
}

func (s *stubInvoiceUC) List(ctx context.Context, f repository.InvoiceFilter) ([]*model.Invoice, error) {
	var out []*model.Invoice
	for _, inv := range s.invoices {
		if f.ShopID != "" && inv.ShopID != f.ShopID {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *stubInvoiceUC) Get(ctx context.Context, id string) (*model.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

func (s *stubInvoiceUC) Cancel(ctx context.Context, id string) (*model.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if inv.Status != model.InvoiceStatusProcessing {
		return nil, domain.ErrNotProcessing
	}
	inv.Status = model.InvoiceStatusQueued
	inv.Processing.Stage = model.StageQueued
	s.cancelled = append(s.cancelled, id)
	return inv, nil
}

func (s *stubInvoiceUC) Reprocess(ctx context.Context, id string) (*model.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !inv.Terminal() {
		return nil, domain.ErrNotTerminal
	}
	inv.Status = model.InvoiceStatusQueued
	inv.Processing.Attempts = 0
	return inv, nil
}

type stubScanUC struct {
	scans   map[string]*model.Scan
	started *model.Scan
	err     error
}

func (s *stubScanUC) Start(ctx context.Context) (*model.Scan, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.started, nil
}

func (s *stubScanUC) Get(ctx context.Context, id string) (*model.Scan, error) {
	sc, ok := s.scans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sc, nil
}

func (s *stubScanUC) List(ctx context.Context, limit int) ([]*model.Scan, error) {
	var out []*model.Scan
	for _, sc := range s.scans {
		out = append(out, sc)
	}
	return out, nil
}

type fixture struct {
	invoices *stubInvoiceUC
	scans    *stubScanUC
	files    *storage.FileStore
	server   *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir(), "http://api.test", "sign-key")
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	f := &fixture{
		invoices: &stubInvoiceUC{invoices: make(map[string]*model.Invoice)},
		scans:    &stubScanUC{scans: make(map[string]*model.Scan)},
		files:    files,
	}
	f.server = NewServer(f.invoices, f.scans, files, testAPIKey, time.Minute, newLogger())
	return f
}

func (f *fixture) do(t *testing.T, method, path string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestAuth_RejectsMissingAndWrongTokens(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/invoices", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403 with wrong token, got %d", rec.Code)
	}
}

func TestInvoices_ListAndGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.invoices.invoices["J1"] = &model.Invoice{
		ID:     "J1",
		ShopID: "shop1",
		Status: model.InvoiceStatusProcessed,
		Totals: model.Totals{Total: 109.34},
		Processing: model.Processing{
			Stage: model.StageCompleted,
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	rec := f.do(t, http.MethodGet, "/api/v1/invoices?shop_id=shop1", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var list struct {
		Items []invoiceView `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != "J1" {
		t.Fatalf("unexpected list %+v", list.Items)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/J1", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var got invoiceView
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Totals.Total != 109.34 || got.Stage != "completed" {
		t.Fatalf("unexpected view %+v", got)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/missing", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestInvoices_GetAttachesPresignedURLs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.invoices.invoices["J1"] = &model.Invoice{
		ID:                  "J1",
		ShopID:              "shop1",
		Status:              model.InvoiceStatusProcessed,
		OriginalStorageKey:  "shops/shop1/invoices/J1/original.pdf",
		ProcessedStorageKey: "shops/shop1/invoices/J1/processed.json",
	}
	f.invoices.invoices["J2"] = &model.Invoice{
		ID:     "J2",
		ShopID: "shop1",
		Status: model.InvoiceStatusQueued,
	}

	rec := f.do(t, http.MethodGet, "/api/v1/invoices/J1", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var got invoiceView
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for name, raw := range map[string]string{"original": got.OriginalURL, "processed": got.ProcessedURL} {
		if raw == "" {
			t.Fatalf("%s url missing from view", name)
		}
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("%s url unparseable: %v", name, err)
		}
		if _, err := f.files.ParseReadToken(u.Query().Get("token")); err != nil {
			t.Fatalf("%s url token does not verify: %v", name, err)
		}
	}

	// A job the pipeline has not touched yet carries no links.
	rec = f.do(t, http.MethodGet, "/api/v1/invoices/J2", true)
	var bare invoiceView
	if err := json.NewDecoder(rec.Body).Decode(&bare); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bare.OriginalURL != "" || bare.ProcessedURL != "" {
		t.Fatalf("keyless job must have no urls, got %+v", bare)
	}
}

func TestInvoices_CancelAndReprocessConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.invoices.invoices["P"] = &model.Invoice{ID: "P", Status: model.InvoiceStatusProcessing}
	f.invoices.invoices["D"] = &model.Invoice{ID: "D", Status: model.InvoiceStatusFailed}

	rec := f.do(t, http.MethodPost, "/api/v1/invoices/P/cancel", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel want 200, got %d", rec.Code)
	}
	// P is queued now, so a second cancel conflicts.
	rec = f.do(t, http.MethodPost, "/api/v1/invoices/P/cancel", true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double cancel want 409, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/D/reprocess", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("reprocess want 200, got %d", rec.Code)
	}
	// D is queued now, no longer terminal.
	rec = f.do(t, http.MethodPost, "/api/v1/invoices/D/reprocess", true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reprocess of queued job want 409, got %d", rec.Code)
	}
}

func TestScans_StartGetAndConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	started := time.Now()
	f.scans.started = &model.Scan{
		ID:        "S1",
		Status:    model.ScanStatusCompleted,
		Stats:     model.ScanStats{Scanned: 2, New: 2},
		StartedAt: &started,
	}
	f.scans.scans["S1"] = f.scans.started

	rec := f.do(t, http.MethodPost, "/api/v1/scans", true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", rec.Code)
	}
	var sv scanView
	if err := json.NewDecoder(rec.Body).Decode(&sv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sv.ID != "S1" || sv.Stats.New != 2 {
		t.Fatalf("unexpected scan view %+v", sv)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/scans/S1", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	f.scans.err = domain.ErrScanInProgress
	rec = f.do(t, http.MethodPost, "/api/v1/scans", true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("concurrent scan want 409, got %d", rec.Code)
	}
}

func TestFiles_PresignedDownload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	key := "shops/shop1/invoices/J1/processed.json"
	if _, err := f.files.Put(ctx, key, []byte(`{"ok":true}`), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	signed, err := f.files.PresignedReadURL(key, time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// The file endpoint needs no API key; the token is the authorization.
	rec := f.do(t, http.MethodGet, "/files?"+u.RawQuery, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("want stored content type, got %q", ct)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Fatalf("bytes mismatch: %q", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/files?token=garbage", false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad token want 403, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/files", false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing token want 400, got %d", rec.Code)
	}
}

func TestHealth_Open(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}
