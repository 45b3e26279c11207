package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-integrity-service/internal/ai"
	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/metrics"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
	"github.com/facturaIA/invoice-integrity-service/internal/services"
	"github.com/facturaIA/invoice-integrity-service/internal/similarity"
)

type memoryStore struct {
	mu         sync.Mutex
	invoices   map[string]*models.InvoiceRecord
	order      []string
	validated  map[string]bool
	duplicates map[string]bool
	summaryErr error
	listErr    error
}

func newMemoryStore(invoices ...*models.InvoiceRecord) *memoryStore {
	s := &memoryStore{
		invoices:   make(map[string]*models.InvoiceRecord),
		validated:  make(map[string]bool),
		duplicates: make(map[string]bool),
	}
	for _, inv := range invoices {
		s.invoices[inv.ID] = inv
		s.order = append(s.order, inv.ID)
	}
	return s
}

func (s *memoryStore) ListInvoiceIDs(context.Context) ([]string, error) {
	return s.order, s.listErr
}

func (s *memoryStore) GetInvoice(_ context.Context, id string) (*models.InvoiceRecord, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice not found")
	}
	return inv, nil
}

func (s *memoryStore) SetValidationFlag(_ context.Context, id string, passed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validated[id] = passed
	return nil
}

func (s *memoryStore) SetDuplicationFlag(_ context.Context, id string, duplicate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicates[id] = duplicate
	return nil
}

func (s *memoryStore) ValidationSummary(context.Context) (*models.ValidationSummary, error) {
	if s.summaryErr != nil {
		return nil, s.summaryErr
	}
	return &models.ValidationSummary{TotalInvoices: len(s.invoices), Validated: len(s.validated)}, nil
}

type recordingPublisher struct {
	validations []*models.ValidationReport
	analyses    []*models.DuplicateAnalysisResult
	err         error
}

func (p *recordingPublisher) PublishValidation(_ context.Context, _ string, r *models.ValidationReport) error {
	p.validations = append(p.validations, r)
	return p.err
}

func (p *recordingPublisher) PublishDuplication(_ context.Context, _ string, r *models.DuplicateAnalysisResult) error {
	p.analyses = append(p.analyses, r)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type fakeArchive struct {
	reports  map[string]string
	analyses int
}

func (a *fakeArchive) ArchiveReport(_ context.Context, tenant string, report *models.ValidationReport, text string) (string, error) {
	if a.reports == nil {
		a.reports = make(map[string]string)
	}
	path := "invoice-reports/" + tenant + "/" + report.InvoiceID + "-validation.txt"
	a.reports[path] = text
	return path, nil
}

func (a *fakeArchive) ArchiveAnalysis(context.Context, string, *models.DuplicateAnalysisResult) (string, error) {
	a.analyses++
	return "invoice-reports/shared/analysis.json", nil
}

func (a *fakeArchive) GetPresignedURL(_ context.Context, path string) (string, error) {
	return "https://minio.local/" + path + "?sig=1", nil
}

func amt(v float64) models.Amount { return models.NewAmount(v) }

func testInvoice(id, number string) *models.InvoiceRecord {
	return &models.InvoiceRecord{
		ID:            id,
		InvoiceNumber: number,
		SupplierName:  "Acme Corp",
		InvoiceDate:   models.NewDate(2024, 3, 15),
		TaxableValue:  amt(1000),
		TotalTax:      amt(180),
		TotalValue:    amt(1180),
		LineItems: []models.LineItem{{
			Description:  "Laptop stand",
			HSNCode:      "8473",
			Quantity:     amt(2),
			UnitPrice:    amt(500),
			TaxableValue: amt(1000),
			SGSTRate:     amt(9),
			SGSTAmount:   amt(90),
			CGSTRate:     amt(9),
			CGSTAmount:   amt(90),
			TotalAmount:  amt(1180),
		}},
	}
}

type testEnv struct {
	handler   *Handler
	router    http.Handler
	store     *memoryStore
	publisher *recordingPublisher
	archive   *fakeArchive
	metrics   *metrics.AppMetrics
}

func newTestEnv(t *testing.T, invoices ...*models.InvoiceRecord) *testEnv {
	t.Helper()

	validator, err := services.NewDefaultValidator(nil)
	require.NoError(t, err)

	corpus := make([]models.InvoiceRecord, 0, len(invoices))
	for _, inv := range invoices {
		corpus = append(corpus, *inv)
	}
	detector, err := duplication.NewDetector(duplication.DefaultConfig(),
		duplication.NewMemoryRetriever(corpus, similarity.DefaultWeights()))
	require.NoError(t, err)

	env := &testEnv{
		store:     newMemoryStore(invoices...),
		publisher: &recordingPublisher{},
		archive:   &fakeArchive{},
		metrics:   metrics.New(false),
	}
	env.handler = NewHandler(Deps{
		Validator: validator,
		Detector:  detector,
		Store:     env.store,
		Archive:   env.archive,
		Publisher: env.publisher,
		Explainer: ai.NewExplainer(nil, 0, nil),
		Metrics:   env.metrics,
	})
	env.router = env.handler.SetupRoutes()
	return env
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestValidateInvoice(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/validate", mustJSON(t, testInvoice("inv-1", "INV-100")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	report := decode[models.ValidationReport](t, w)
	assert.Greater(t, report.TestsRun, 0)
	assert.Zero(t, report.TestsFailed)
	assert.True(t, report.OverallPassed)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Validations.WithLabelValues("valid")))
}

func TestValidateInvoice_BadBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/validate", []byte(`{"line_items": [`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestAnalyzeInvoice_FindsStoredDuplicate(t *testing.T) {
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"))

	w := env.do(http.MethodPost, "/api/duplicates/analyze", mustJSON(t, testInvoice("inv-new", "inv-100")))
	require.Equal(t, http.StatusOK, w.Code)

	result := decode[models.DuplicateAnalysisResult](t, w)
	assert.Equal(t, models.StatusComplete, result.Status)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, models.ActionHighConfidenceDuplicate, result.RecommendedAction)
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, "inv-1", result.Matches[0].OriginalInvoiceID)
}

func TestValidateStoredInvoice(t *testing.T) {
	broken := testInvoice("inv-2", "INV-200")
	broken.TotalValue = amt(1500)
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"), broken)

	w := env.do(http.MethodPost, "/api/invoices/inv-2/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	report := decode[models.ValidationReport](t, w)
	assert.False(t, report.OverallPassed)
	assert.Equal(t, map[string]bool{"inv-2": false}, env.store.validated)
	require.Len(t, env.publisher.validations, 1)
	assert.Equal(t, "inv-2", env.publisher.validations[0].InvoiceID)
}

func TestValidateStoredInvoice_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/invoices/nope/validate", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, env.publisher.validations)
}

func TestAnalyzeStoredInvoice(t *testing.T) {
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"), testInvoice("inv-2", "INV-100"))

	w := env.do(http.MethodPost, "/api/invoices/inv-2/duplicates?archive=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Analysis   models.DuplicateAnalysisResult `json:"analysis"`
		ArchivedTo string                         `json:"archived_to"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Analysis.IsDuplicate)
	assert.NotEmpty(t, body.ArchivedTo)
	assert.Equal(t, 1, env.archive.analyses)
	assert.Equal(t, map[string]bool{"inv-2": true}, env.store.duplicates)
	assert.Len(t, env.publisher.analyses, 1)
}

func TestAnalyzeStoredInvoice_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/invoices/ghost/duplicates", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	result := decode[models.DuplicateAnalysisResult](t, w)
	assert.Equal(t, models.StatusNotFound, result.Status)
	assert.Equal(t, models.ActionVerifyInvoiceExists, result.RecommendedAction)
	assert.Empty(t, env.store.duplicates)
}

func TestAnalyzeStoredInvoice_EventFailureIsCounted(t *testing.T) {
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"))
	env.publisher.err = errors.New("broker down")

	w := env.do(http.MethodPost, "/api/invoices/inv-1/duplicates", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.EventFailures.WithLabelValues("duplication")))
}

func TestGetReport(t *testing.T) {
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"))

	t.Run("plain text", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/invoices/inv-1/report", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
		assert.Contains(t, w.Body.String(), "ARITHMETIC VALIDATION REPORT")
		assert.Contains(t, w.Body.String(), "Invoice INV-100 (inv-1)")
	})

	t.Run("archived", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/invoices/inv-1/report?archive=true", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode[map[string]interface{}](t, w)
		path, _ := body["archived_to"].(string)
		assert.Contains(t, env.archive.reports, path)
		assert.Contains(t, body["url"], "sig=1")
	})

	t.Run("archive unavailable", func(t *testing.T) {
		env.handler.Archive = nil
		w := env.do(http.MethodGet, "/api/invoices/inv-1/report?archive=true", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestExplainInvoice_Fallback(t *testing.T) {
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"))

	w := env.do(http.MethodPost, "/api/invoices/inv-1/explain", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Explanation ai.Explanation `json:"explanation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ai.SourceFallback, body.Explanation.Source)
	assert.Contains(t, body.Explanation.Text, "arithmetic checks passed")
	assert.Contains(t, body.Explanation.Text, "No duplicate patterns were found.")
}

func TestValidateAll(t *testing.T) {
	broken := testInvoice("inv-2", "INV-200")
	broken.TotalValue = amt(99)
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"), broken)

	w := env.do(http.MethodPost, "/api/validate-all", nil)
	require.Equal(t, http.StatusOK, w.Code)

	result := decode[models.BatchValidationResult](t, w)
	assert.Equal(t, 2, result.TotalInvoices)
	assert.Equal(t, 1, result.PassedValidation)
	assert.Equal(t, 1, result.FailedValidation)
	assert.Equal(t, 50.0, result.SuccessRate)
	assert.Empty(t, result.Reports)

	w = env.do(http.MethodPost, "/api/validate-all?detailed=true", nil)
	assert.Len(t, decode[models.BatchValidationResult](t, w).Reports, 2)
}

func TestValidationSummary(t *testing.T) {
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"))

	w := env.do(http.MethodGet, "/api/validation-summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.ValidationSummary](t, w).TotalInvoices)

	env.store.summaryErr = apperrors.Wrap(errors.New("conn reset"), apperrors.CodeStorageFailed, "summary query failed")
	w = env.do(http.MethodGet, "/api/validation-summary", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "STORAGE_FAILED", decode[map[string]string](t, w)["code"])
}

func TestStoredEndpoints_WithoutDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Store = nil

	for _, path := range []string{"/api/validate-all", "/api/invoices/inv-1/validate", "/api/invoices/inv-1/explain"} {
		w := env.do(http.MethodPost, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestAnalyzeInvoice_WithoutDatabaseIsIndeterminate(t *testing.T) {
	env := newTestEnv(t)
	detector, err := duplication.NewDetector(duplication.DefaultConfig(),
		duplication.UnavailableRetriever{Reason: "candidate store not available"})
	require.NoError(t, err)
	env.handler.Store = nil
	env.handler.Detector = detector

	w := env.do(http.MethodPost, "/api/duplicates/analyze", mustJSON(t, testInvoice("inv-new", "INV-100")))
	require.Equal(t, http.StatusOK, w.Code)

	result := decode[models.DuplicateAnalysisResult](t, w)
	assert.Equal(t, models.StatusIndeterminate, result.Status)
	assert.Equal(t, models.ActionIndeterminate, result.RecommendedAction)
	assert.False(t, result.IsDuplicate)
	assert.Nil(t, result.Confidence)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Checks = map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}

	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 10, resp.Rules)
	assert.True(t, resp.Services["database"].Available)

	env.handler.Checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	w = env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp = decode[HealthResponse](t, w)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connection refused", resp.Services["redis"].Error)
}

func TestMetricsEndpoint_UsesRouteTemplate(t *testing.T) {
	env := newTestEnv(t, testInvoice("inv-1", "INV-100"))
	env.do(http.MethodPost, "/api/invoices/inv-1/validate", nil)

	w := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/api/invoices/{id}/validate"`)
	assert.NotContains(t, w.Body.String(), `route="/api/invoices/inv-1/validate"`)
}
