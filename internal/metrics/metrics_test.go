package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

func scrape(t *testing.T, m *AppMetrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestObserveValidation(t *testing.T) {
	m := New(false)

	m.ObserveValidation(&models.ValidationReport{TestsRun: 3, TestsPassed: 3, OverallPassed: true})
	m.ObserveValidation(&models.ValidationReport{TestsRun: 3, TestsPassed: 1, TestsFailed: 2, DataErrors: 1})
	m.ObserveValidation(&models.ValidationReport{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("nothing_to_validate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationDataErrors))
}

func TestObserveAnalysis(t *testing.T) {
	m := New(false)

	conf := 0.9
	m.ObserveAnalysis(&models.DuplicateAnalysisResult{
		Status:             models.StatusComplete,
		Confidence:         &conf,
		CandidatesCompared: 4,
		RecommendedAction:  models.ActionHighConfidenceDuplicate,
	}, 20*time.Millisecond)
	m.ObserveAnalysis(&models.DuplicateAnalysisResult{
		Status:            models.StatusIndeterminate,
		RecommendedAction: models.ActionIndeterminate,
	}, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateAnalyses.WithLabelValues("HIGH_CONFIDENCE_DUPLICATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateAnalyses.WithLabelValues("DUPLICATION_INDETERMINATE")))

	out := scrape(t, m)
	assert.Contains(t, out, "invoice_integrity_duplicate_confidence_count 1")
	assert.Contains(t, out, "invoice_integrity_duplicate_analysis_duration_seconds_count 2")
}

func TestObserveHTTPAndEvents(t *testing.T) {
	m := New(false)

	m.ObserveHTTP(http.MethodPost, "/api/validate", http.StatusOK, 5*time.Millisecond)
	m.ObserveHTTP(http.MethodPost, "/api/validate", http.StatusOK, 7*time.Millisecond)
	m.ObserveEventFailure("invoice.validated")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/validate", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventFailures.WithLabelValues("invoice.validated")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPDuration))
}

func TestNew_WithRuntime(t *testing.T) {
	out := scrape(t, New(true))
	assert.Contains(t, out, "go_goroutines")
}
