package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/exporter"
	"product-catalog-migrator/internal/importer"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/metrics"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/translation"
)

// Importer runs one import document.
type Importer interface {
	Import(ctx context.Context, doc importer.Document, opts importer.Options) (importer.Report, error)
}

// Exporter builds the export document of a language.
type Exporter interface {
	Export(ctx context.Context, lng string) ([]domain.Row, error)
}

// ProductReader looks up products.
type ProductReader interface {
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	importer     Importer
	exporter     Exporter
	products     ProductReader
	linking      translation.Capability
	detector     *translation.Detector
	validate     *validator.Validate
	maxBodyBytes int64
	log          zerolog.Logger
}

// HandlerConfig carries the collaborators of an HTTPHandler.
type HandlerConfig struct {
	Importer     Importer
	Exporter     Exporter
	Products     ProductReader
	Linking      translation.Capability
	Detector     *translation.Detector
	MaxBodyBytes int64
	Log          zerolog.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(cfg HandlerConfig) *HTTPHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}
	return &HTTPHandler{
		importer:     cfg.Importer,
		exporter:     cfg.Exporter,
		products:     cfg.Products,
		linking:      cfg.Linking,
		detector:     cfg.Detector,
		validate:     validator.New(),
		maxBodyBytes: cfg.MaxBodyBytes,
		log:          cfg.Log,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	var body bytes.Buffer
	if payload != nil {
		enc := json.NewEncoder(&body)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(payload); err != nil {
			http.Error(w, `{"error": "Internal server error during JSON encoding"}`, http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body.Bytes())
}

// --- Import ---

// ImportQuery is the query string of an import request.
type ImportQuery struct {
	Status           string `validate:"omitempty,oneof=publish draft pending private future"`
	AuthorID         int64  `validate:"gte=0"`
	TaxLanguage      string `validate:"max=200"`
	CreateSlugSuffix string `validate:"max=100"`
}

// importOptions reads the run options from the query string, starting from the defaults.
func (h *HTTPHandler) importOptions(r *http.Request) (importer.Options, error) {
	q := r.URL.Query()
	opts := importer.DefaultOptions()

	flags := []struct {
		name string
		dst  *bool
	}{
		{"update", &opts.Update},
		{"update_if_changed", &opts.UpdateIfChanged},
		{"id_only", &opts.IDOnly},
		{"prefer_id", &opts.PreferID},
		{"preserve_slug", &opts.PreserveSlug},
		{"skip_empty", &opts.SkipEmpty},
		{"dry_run", &opts.DryRun},
		{"link_siblings", &opts.LinkSiblings},
		{"merge_parents", &opts.MergeParents},
	}
	for _, f := range flags {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, errors.New("invalid value for " + f.name)
		}
		*f.dst = v
	}

	input := ImportQuery{
		Status:           strings.ToLower(strings.TrimSpace(q.Get("status"))),
		TaxLanguage:      q.Get("tax_language"),
		CreateSlugSuffix: q.Get("create_slug_suffix"),
	}
	if raw := q.Get("author"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return opts, errors.New("invalid value for author")
		}
		input.AuthorID = id
	}
	if err := h.validate.Struct(input); err != nil {
		return opts, err
	}
	if input.Status != "" {
		opts.Status = domain.Status(input.Status)
	}
	opts.AuthorID = input.AuthorID
	opts.TaxLanguage = input.TaxLanguage
	opts.CreateSlugSuffix = input.CreateSlugSuffix
	return opts, nil
}

func (h *HTTPHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	opts, err := h.importOptions(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	defer r.Body.Close()

	doc, err := importer.ParseDocument(body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	report, err := h.importer.Import(r.Context(), doc, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("import failed")
		switch {
		case errors.Is(err, importer.ErrInvalidStatus):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respondWithError(w, http.StatusServiceUnavailable, "Import interrupted: "+report.Summary())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to run import")
		}
		return
	}

	code := http.StatusOK
	if report.Created > 0 {
		code = http.StatusCreated
	}
	respondWithJSON(w, code, report)
}

// --- Export ---

func (h *HTTPHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	code := lang.Normalize(chi.URLParam(r, "lang"))
	if code == "" {
		respondWithError(w, http.StatusBadRequest, "Language is required")
		return
	}

	rows, err := h.exporter.Export(r.Context(), code)
	if err != nil {
		h.log.Error().Err(err).Str("lang", code).Msg("export failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to build export")
		return
	}

	var body bytes.Buffer
	if err := exporter.Write(&body, rows); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to encode export")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="products_`+code+`.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body.Bytes())
}

// --- Translations ---

// TranslationsResponse lists the language variants of a product.
type TranslationsResponse struct {
	ProductID    int64                   `json:"product_id"`
	Lang         string                  `json:"lang"`
	Translations domain.TranslationGroup `json:"translations"`
}

func (h *HTTPHandler) GetProductTranslations(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	if _, err := h.products.GetProductByID(r.Context(), productID); err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			h.log.Error().Err(err).Int64("id", productID).Msg("GetProductByID failed")
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		}
		return
	}

	resp := TranslationsResponse{ProductID: productID}
	if h.detector != nil {
		code, _, err := h.detector.ProductLanguage(r.Context(), productID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to detect product language")
			return
		}
		resp.Lang = code
	}
	if linker, ok := h.linking.Linker(); ok {
		group, err := linker.ProductGroup(r.Context(), productID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve translations")
			return
		}
		resp.Translations = group
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// --- Route Registration ---

// MetricsMiddleware records the count and latency of each request under its route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Handle("/metrics", metrics.MetricsHandler())

	r.Route("/api/v1/imports", func(r chi.Router) {
		r.Use(MetricsMiddleware)
		r.Post("/", h.CreateImport) // POST /api/v1/imports
	})

	r.Route("/api/v1/exports", func(r chi.Router) {
		r.Use(MetricsMiddleware)
		r.Get("/{lang}", h.GetExport) // GET /api/v1/exports/{lang}
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Use(MetricsMiddleware)
		r.Get("/{productId}/translations", h.GetProductTranslations)
	})
}
