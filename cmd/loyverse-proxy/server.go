package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/loyverse-proxy/pkg/cache"
	"github.com/Sternrassler/loyverse-proxy/pkg/catalog"
	"github.com/Sternrassler/loyverse-proxy/pkg/client"
	"github.com/Sternrassler/loyverse-proxy/pkg/logging"
	"github.com/Sternrassler/loyverse-proxy/pkg/metrics"
	"github.com/Sternrassler/loyverse-proxy/pkg/notify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const (
	msgProductFailed   = "No se pudo obtener el producto"
	msgProductNotFound = "Producto no encontrado"
	msgProductsFailed  = "No se pudieron obtener los productos"
	msgEmailFailed     = "Error al enviar el correo"
	msgEmailInvalid    = "Correo inválido"
)

// catalogService is the part of catalog.Service the handlers use.
type catalogService interface {
	Product(ctx context.Context, id string) (*client.Item, error)
	Listing(ctx context.Context) ([]client.Item, error)
	Catalog(ctx context.Context, q catalog.CatalogQuery) (*catalog.Page, error)
	Search(ctx context.Context, q catalog.SearchQuery) (*catalog.SearchPage, error)
	Purge(ctx context.Context) error
	Ping(ctx context.Context) error
}

type subscriber interface {
	Subscribe(ctx context.Context, email string) error
}

type server struct {
	catalog  catalogService
	notifier subscriber
	adminKey string
	logger   zerolog.Logger
}

func newServer(svc catalogService, notifier subscriber, adminKey string) *server {
	return &server{
		catalog:  svc,
		notifier: notifier,
		adminKey: adminKey,
		logger:   logging.NewLogger("http"),
	}
}

func (s *server) routes(corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, h http.HandlerFunc) {
		// handler id without the method keeps the metric label readable
		_, path, _ := strings.Cut(pattern, " ")
		mux.Handle(pattern, metrics.Instrument(path, h))
	}

	handle("GET /productos/{id}", s.handleProduct)
	handle("GET /productos", s.handleListing)
	handle("GET /catalogo/{categoria}", s.handleCatalog)
	handle("GET /busqueda/{busqueda}", s.handleSearch)
	handle("POST /email", s.handleEmail)
	handle("POST /admin/cache/purge", s.handlePurge)

	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	return withMiddleware(mux, s.logger, corsOrigins)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.catalog.Ping(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Snapshot store not ready")
		http.Error(w, "Cache backend unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *server) handleProduct(w http.ResponseWriter, r *http.Request) {
	item, err := s.catalog.Product(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": msgProductNotFound})
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("id", r.PathValue("id")).Msg("Product lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgProductFailed})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) handleListing(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.Listing(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Listing failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgProductsFailed})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.catalog.Catalog(r.Context(), catalog.CatalogQuery{
		Category: r.PathValue("categoria"),
		Color:    q.Get("color"),
		Size:     q.Get("talla"),
		Page:     intParam(q.Get("page")),
		Limit:    intParam(q.Get("limit")),
	})
	if err != nil {
		s.productsError(w, r, err)
		return
	}
	writeCached(w, r, page.ETag, page)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.catalog.Search(r.Context(), catalog.SearchQuery{
		Term:  r.PathValue("busqueda"),
		Page:  intParam(q.Get("page")),
		Limit: intParam(q.Get("limit")),
	})
	if err != nil {
		s.productsError(w, r, err)
		return
	}
	writeCached(w, r, page.ETag, page)
}

func (s *server) productsError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrInvalidQuery) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("Catalog request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgProductsFailed})
}

type subscribeRequest struct {
	Email string `json:"email"`
}

func (s *server) handleEmail(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": msgEmailInvalid})
		return
	}
	email, err := notify.ValidateEmail(req.Email)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": msgEmailInvalid})
		return
	}

	if s.notifier == nil {
		hlog.FromRequest(r).Error().Msg("Email delivery not configured")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": msgEmailFailed})
		return
	}
	if err := s.notifier.Subscribe(r.Context(), email); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Subscription failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": msgEmailFailed})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": email, "mgs": "success"})
}

func (s *server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if s.adminKey != "" {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}
	if err := s.catalog.Purge(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Purge failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "purge failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// intParam reads the leading integer of a query value ("2abc" is 2, "1.5"
// is 1). A value without one is 0 and takes the default downstream.
func intParam(raw string) int {
	s := strings.TrimLeft(raw, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// writeCached answers 304 when the client already holds etag.
func writeCached(w http.ResponseWriter, r *http.Request, etag string, v any) {
	if etag != "" {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
	}
	if cache.NotModified(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
