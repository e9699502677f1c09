package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/repository"
)

// invoiceView is the API projection of a job record: internal collaborator
// errors are reduced to the captured message string.
type invoiceView struct {
	ID         string `json:"id"`
	ShopID     string `json:"shop_id"`
	SupplierID string `json:"supplier_id,omitempty"`
	Status     string `json:"status"`

	SourceFileID        string `json:"source_file_id,omitempty"`
	OriginalStorageKey  string `json:"original_storage_key,omitempty"`
	ProcessedStorageKey string `json:"processed_storage_key,omitempty"`
	OriginalURL         string `json:"original_url,omitempty"`
	ProcessedURL        string `json:"processed_url,omitempty"`
	ContentHash         string `json:"content_hash,omitempty"`

	InvoiceNumber string                 `json:"invoice_number,omitempty"`
	InvoiceDate   string                 `json:"invoice_date,omitempty"`
	Totals        model.Totals           `json:"totals"`
	LineItems     []model.LineItem       `json:"line_items,omitempty"`
	Context       *model.PurchaseContext `json:"context,omitempty"`
	TrendAnalysis *model.TrendAnalysis   `json:"trend_analysis,omitempty"`
	Recs          []model.Recommendation `json:"recommendations,omitempty"`

	Stage     string `json:"stage"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toInvoiceView(inv *model.Invoice) invoiceView {
	v := invoiceView{
		ID:                  inv.ID,
		ShopID:              inv.ShopID,
		SupplierID:          inv.SupplierID,
		Status:              string(inv.Status),
		SourceFileID:        inv.SourceFileID,
		OriginalStorageKey:  inv.OriginalStorageKey,
		ProcessedStorageKey: inv.ProcessedStorageKey,
		ContentHash:         inv.ContentHash,
		InvoiceNumber:       inv.InvoiceNumber,
		Totals:              inv.Totals,
		LineItems:           inv.LineItems,
		Context:             inv.Context,
		TrendAnalysis:       inv.TrendAnalysis,
		Recs:                inv.Recommendations,
		Stage:               string(inv.Processing.Stage),
		Attempts:            inv.Processing.Attempts,
		LastError:           inv.Processing.LastError,
		CreatedAt:           inv.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:           inv.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if inv.InvoiceDate != nil {
		v.InvoiceDate = inv.InvoiceDate.Format("2006-01-02")
	}
	return v
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.InvoiceFilter{
		ShopID: q.Get("shop_id"),
		Status: model.InvoiceStatus(q.Get("status")),
	}
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	invs, err := s.invoiceUC.List(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]invoiceView, 0, len(invs))
	for _, inv := range invs {
		items = append(items, toInvoiceView(inv))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoiceUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	v := toInvoiceView(inv)
	s.attachFileURLs(&v)
	s.writeJSON(w, http.StatusOK, v)
}

// attachFileURLs signs time-limited download links for whichever storage keys
// the pipeline has written so far.
func (s *Server) attachFileURLs(v *invoiceView) {
	if v.OriginalStorageKey != "" {
		u, err := s.files.PresignedReadURL(v.OriginalStorageKey, s.urlTTL)
		if err != nil {
			s.log.Warn().Err(err).Str("invoice_id", v.ID).Msg("presign original failed")
		} else {
			v.OriginalURL = u
		}
	}
	if v.ProcessedStorageKey != "" {
		u, err := s.files.PresignedReadURL(v.ProcessedStorageKey, s.urlTTL)
		if err != nil {
			s.log.Warn().Err(err).Str("invoice_id", v.ID).Msg("presign processed failed")
		} else {
			v.ProcessedURL = u
		}
	}
}

func (s *Server) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoiceUC.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toInvoiceView(inv))
}

func (s *Server) reprocessInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoiceUC.Reprocess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toInvoiceView(inv))
}

type scanView struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"`
	Files      []model.ScannedFile `json:"scanned_files,omitempty"`
	Stats      model.ScanStats     `json:"stats"`
	Error      string              `json:"error,omitempty"`
	StartedAt  string              `json:"started_at,omitempty"`
	FinishedAt string              `json:"finished_at,omitempty"`
}

func toScanView(sc *model.Scan) scanView {
	v := scanView{
		ID:     sc.ID,
		Status: string(sc.Status),
		Files:  sc.ScannedFiles,
		Stats:  sc.Stats,
		Error:  sc.Error,
	}
	if sc.StartedAt != nil {
		v.StartedAt = sc.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if sc.FinishedAt != nil {
		v.FinishedAt = sc.FinishedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return v
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scanUC.Start(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toScanView(sc))
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scanUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toScanView(sc))
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	scans, err := s.scanUC.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]scanView, 0, len(scans))
	for _, sc := range scans {
		items = append(items, toScanView(sc))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// serveFile redeems a presigned read token for the stored artifact bytes.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}
	key, err := s.files.ParseReadToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusForbidden)
		return
	}
	data, contentType, err := s.files.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotProcessing), errors.Is(err, domain.ErrNotTerminal), errors.Is(err, domain.ErrScanInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
