package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/facturaIA/invoice-integrity-service/internal/ai"
	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/db"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/events"
	"github.com/facturaIA/invoice-integrity-service/internal/logging"
	"github.com/facturaIA/invoice-integrity-service/internal/metrics"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
	"github.com/facturaIA/invoice-integrity-service/internal/services"
)

const (
	MaxBodySize = 5 * 1024 * 1024 // 5MB
	Version     = "1.0.0"
)

// InvoiceStore is the persistence the stored-invoice endpoints need
type InvoiceStore interface {
	services.InvoiceSource
	services.ValidationFlagStore
	SetDuplicationFlag(ctx context.Context, id string, duplicate bool) error
	ValidationSummary(ctx context.Context) (*models.ValidationSummary, error)
}

// ReportArchive keeps rendered reports and analyses
type ReportArchive interface {
	ArchiveReport(ctx context.Context, tenant string, report *models.ValidationReport, text string) (string, error)
	ArchiveAnalysis(ctx context.Context, tenant string, result *models.DuplicateAnalysisResult) (string, error)
	GetPresignedURL(ctx context.Context, objectPath string) (string, error)
}

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Deps bundles what the handler needs. Store, Archive and Explainer may be
// nil; the endpoints that depend on them answer 503.
type Deps struct {
	Validator *services.ArithmeticValidator
	Detector  *duplication.Detector
	Store     InvoiceStore
	Archive   ReportArchive
	Publisher events.Publisher
	Explainer *ai.Explainer
	Metrics   *metrics.AppMetrics
	Logger    logging.Logger
	Checks    map[string]HealthCheck
}

// Handler handles HTTP requests for invoice integrity checks
type Handler struct {
	Deps
	batch *services.BatchValidator
}

// NewHandler creates a new API handler
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	h := &Handler{Deps: deps}
	if deps.Store != nil {
		h.batch = services.NewBatchValidator(deps.Validator, deps.Store, deps.Store, deps.Logger)
	}
	return h
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	if h.Metrics != nil {
		router.Use(Instrument(h.Metrics))
	}

	// Ad-hoc checks on the posted invoice
	router.HandleFunc("/api/validate", h.ValidateInvoice).Methods("POST")
	router.HandleFunc("/api/duplicates/analyze", h.AnalyzeInvoice).Methods("POST")

	// Stored invoices
	router.HandleFunc("/api/invoices/{id}/validate", h.ValidateStoredInvoice).Methods("POST")
	router.HandleFunc("/api/invoices/{id}/duplicates", h.AnalyzeStoredInvoice).Methods("POST")
	router.HandleFunc("/api/invoices/{id}/report", h.GetReport).Methods("GET")
	router.HandleFunc("/api/invoices/{id}/explain", h.ExplainInvoice).Methods("POST")
	router.HandleFunc("/api/validate-all", h.ValidateAll).Methods("POST")
	router.HandleFunc("/api/validation-summary", h.GetValidationSummary).Methods("GET")

	router.HandleFunc("/health", h.Health).Methods("GET")
	if h.Metrics != nil {
		router.Handle("/metrics", h.Metrics.Handler()).Methods("GET")
	}

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp string                   `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Memory    MemoryStats              `json:"memory"`
	Services  map[string]ServiceStatus `json:"services"`
	Rules     int                      `json:"rules"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health reports process stats and every configured dependency. Any
// unreachable dependency marks the service degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Services: make(map[string]ServiceStatus, len(h.Checks)),
		Rules:    len(h.Validator.Tests()),
	}

	status := http.StatusOK
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			response.Services[name] = ServiceStatus{Available: false, Error: err.Error()}
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Services[name] = ServiceStatus{Available: true}
	}

	h.sendJSON(w, status, response)
}

// ValidateInvoice runs the arithmetic checks on the invoice in the body
func (h *Handler) ValidateInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.decodeInvoice(w, r)
	if !ok {
		return
	}

	report := h.Validator.Validate(inv)
	h.observeValidation(report)
	h.sendJSON(w, http.StatusOK, report)
}

// AnalyzeInvoice checks the invoice in the body against the stored corpus
func (h *Handler) AnalyzeInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.decodeInvoice(w, r)
	if !ok {
		return
	}

	result := h.analyze(r.Context(), inv)
	h.sendJSON(w, http.StatusOK, result)
}

// ValidateStoredInvoice validates a stored invoice, records the flag and
// publishes the outcome
func (h *Handler) ValidateStoredInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ctx := r.Context()
	invoiceID := mux.Vars(r)["id"]

	report, err := h.batch.ValidateOne(ctx, invoiceID)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	h.observeValidation(report)

	if err := h.Publisher.PublishValidation(ctx, db.TenantFromContext(ctx), report); err != nil {
		h.eventFailed("validation", invoiceID, err)
	}

	h.sendJSON(w, http.StatusOK, report)
}

// AnalyzeStoredInvoice runs duplicate detection for a stored invoice. An
// unknown id answers 404 with a VERIFY_INVOICE_EXISTS result.
func (h *Handler) AnalyzeStoredInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ctx := r.Context()
	invoiceID := mux.Vars(r)["id"]
	tenant := db.TenantFromContext(ctx)

	inv, err := h.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			h.sendJSON(w, http.StatusNotFound, duplication.NotFound(invoiceID))
			return
		}
		h.sendAppError(w, err)
		return
	}

	result := h.analyze(ctx, inv)

	// Indeterminate results leave the stored flag untouched
	if result.Status == models.StatusComplete {
		if err := h.Store.SetDuplicationFlag(ctx, invoiceID, result.IsDuplicate); err != nil {
			h.Logger.Warn("failed to store duplication flag", logging.String("invoice_id", invoiceID), logging.Err(err))
		}
	}
	if err := h.Publisher.PublishDuplication(ctx, tenant, result); err != nil {
		h.eventFailed("duplication", invoiceID, err)
	}

	response := map[string]interface{}{"analysis": result}
	if wantArchive(r) && h.Archive != nil {
		if path, err := h.Archive.ArchiveAnalysis(ctx, tenant, result); err == nil {
			response["archived_to"] = path
		} else {
			h.Logger.Warn("failed to archive analysis", logging.String("invoice_id", invoiceID), logging.Err(err))
		}
	}
	h.sendJSON(w, http.StatusOK, response)
}

// GetReport renders the fixed-width validation report for a stored invoice.
// With ?archive=true the report is stored and a download link returned.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ctx := r.Context()
	invoiceID := mux.Vars(r)["id"]

	inv, err := h.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	report := h.Validator.Validate(inv)
	h.observeValidation(report)

	var buf bytes.Buffer
	if err := services.RenderTextReport(&buf, report); err != nil {
		h.sendAppError(w, apperrors.Wrap(err, apperrors.CodeInternal, "failed to render report"))
		return
	}

	if !wantArchive(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	if h.Archive == nil {
		h.sendError(w, http.StatusServiceUnavailable, apperrors.CodeUnavailable, "report storage not available")
		return
	}
	path, err := h.Archive.ArchiveReport(ctx, db.TenantFromContext(ctx), report, buf.String())
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	response := map[string]interface{}{
		"success":     true,
		"invoice_id":  invoiceID,
		"archived_to": path,
		"report":      buf.String(),
	}
	if url, err := h.Archive.GetPresignedURL(ctx, path); err == nil {
		response["url"] = url
	}
	h.sendJSON(w, http.StatusOK, response)
}

// ExplainInvoice validates and analyzes a stored invoice and asks the
// configured model to summarize both
func (h *Handler) ExplainInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	if h.Explainer == nil {
		h.sendError(w, http.StatusServiceUnavailable, apperrors.CodeUnavailable, "explainer not configured")
		return
	}
	ctx := r.Context()

	inv, err := h.Store.GetInvoice(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.sendAppError(w, err)
		return
	}

	report := h.Validator.Validate(inv)
	result := h.analyze(ctx, inv)
	explanation := h.Explainer.Explain(ctx, report, result)

	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"explanation": explanation,
		"validation":  report,
		"duplication": result,
	})
}

// ValidateAll validates every stored invoice of the tenant
func (h *Handler) ValidateAll(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	result, err := h.batch.ValidateAll(r.Context())
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	for _, report := range result.Reports {
		h.observeValidation(report)
	}

	// Reports are omitted unless asked for; a tenant can hold thousands
	if detailed, _ := strconv.ParseBool(r.URL.Query().Get("detailed")); !detailed {
		result.Reports = nil
	}
	h.sendJSON(w, http.StatusOK, result)
}

// GetValidationSummary returns flag counts for the tenant
func (h *Handler) GetValidationSummary(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	summary, err := h.Store.ValidationSummary(r.Context())
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, summary)
}

func (h *Handler) analyze(ctx context.Context, inv *models.InvoiceRecord) *models.DuplicateAnalysisResult {
	start := time.Now()
	result, err := h.Detector.AnalyzeForDuplicates(ctx, inv)
	if err != nil {
		h.Logger.Warn("duplicate analysis incomplete", logging.String("invoice_id", inv.ID), logging.Err(err))
	}
	if h.Metrics != nil {
		h.Metrics.ObserveAnalysis(result, time.Since(start))
	}
	return result
}

func (h *Handler) observeValidation(report *models.ValidationReport) {
	if h.Metrics != nil {
		h.Metrics.ObserveValidation(report)
	}
}

func (h *Handler) eventFailed(eventType, invoiceID string, err error) {
	h.Logger.Warn("failed to publish event",
		logging.String("type", eventType),
		logging.String("invoice_id", invoiceID),
		logging.Err(err))
	if h.Metrics != nil {
		h.Metrics.ObserveEventFailure(eventType)
	}
}

func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.Store == nil {
		h.sendError(w, http.StatusServiceUnavailable, apperrors.CodeUnavailable, "database not available")
		return false
	}
	return true
}

func (h *Handler) decodeInvoice(w http.ResponseWriter, r *http.Request) (*models.InvoiceRecord, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	var inv models.InvoiceRecord
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendError(w, http.StatusRequestEntityTooLarge, apperrors.CodeInvalidInput, "request body too large")
			return nil, false
		}
		h.sendError(w, http.StatusBadRequest, apperrors.CodeInvalidInput, "invalid invoice JSON: "+err.Error())
		return nil, false
	}
	return &inv, true
}

func wantArchive(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("archive"))
	return v
}

func (h *Handler) sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// sendAppError maps an error code to its HTTP status
func (h *Handler) sendAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := apperrors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", logging.Err(err))
	}
	h.sendError(w, status, code, err.Error())
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, code apperrors.ErrorCode, message string) {
	h.sendJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  string(code),
	})
}
