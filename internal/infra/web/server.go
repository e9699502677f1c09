package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"invoice-intel/internal/infra/adapters/storage"
	"invoice-intel/internal/usecase"
)

// Server is the admin-facing HTTP surface: invoice CRUD, scans, presigned
// file redemption, health and metrics.
type Server struct {
	invoiceUC usecase.InvoiceUseCase
	scanUC    usecase.ScanUseCase
	files     *storage.FileStore
	apiKey    string
	urlTTL    time.Duration
	log       *zerolog.Logger
}

func NewServer(invoiceUC usecase.InvoiceUseCase, scanUC usecase.ScanUseCase, files *storage.FileStore, apiKey string, urlTTL time.Duration, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &Server{invoiceUC: invoiceUC, scanUC: scanUC, files: files, apiKey: apiKey, urlTTL: urlTTL, log: &l}
}

// Router builds the full route tree. The /api/v1 subtree is behind bearer
// auth; /files, /health and /metrics are open.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/invoices", s.listInvoices)
		r.Get("/invoices/{id}", s.getInvoice)
		r.Post("/invoices/{id}/cancel", s.cancelInvoice)
		r.Post("/invoices/{id}/reprocess", s.reprocessInvoice)
		r.Get("/scans", s.listScans)
		r.Post("/scans", s.startScan)
		r.Get("/scans/{id}", s.getScan)
	})

	r.Get("/files", s.serveFile)
	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}
		if parts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
