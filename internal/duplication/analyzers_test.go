package duplication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-integrity-service/internal/models"
	"github.com/facturaIA/invoice-integrity-service/internal/similarity"
)

func line(desc, hsn string, qty, price float64) models.LineItem {
	return models.LineItem{
		Description:  desc,
		HSNCode:      hsn,
		Quantity:     models.NewAmount(qty),
		UnitPrice:    models.NewAmount(price),
		TaxableValue: models.NewAmount(qty * price),
	}
}

func invoice(id, number, supplier string, total float64, day int, lines ...models.LineItem) *models.InvoiceRecord {
	return &models.InvoiceRecord{
		ID:            id,
		InvoiceNumber: number,
		SupplierName:  supplier,
		InvoiceDate:   models.NewDate(2024, 3, day),
		TotalValue:    models.NewAmount(total),
		LineItems:     lines,
	}
}

func scenarios() ScenarioConfig { return DefaultConfig().Scenarios }

func TestExactInvoiceAnalyzer(t *testing.T) {
	a := ExactInvoiceAnalyzer{}

	tests := []struct {
		name      string
		current   *models.InvoiceRecord
		candidate *models.InvoiceRecord
		match     bool
	}{
		{
			name:      "identical",
			current:   invoice("new", "INV-100", "Acme Corp", 1000, 15),
			candidate: invoice("old", "INV-100", "Acme Corp", 500, 1),
			match:     true,
		},
		{
			name:      "case and spacing",
			current:   invoice("new", "inv-100", "ACME  corp", 1000, 15),
			candidate: invoice("old", "INV-100", "Acme Corp", 1000, 15),
			match:     true,
		},
		{
			name:      "different supplier",
			current:   invoice("new", "INV-100", "Acme Corp", 1000, 15),
			candidate: invoice("old", "INV-100", "Zenith Traders", 1000, 15),
		},
		{
			name:      "different number",
			current:   invoice("new", "INV-100", "Acme Corp", 1000, 15),
			candidate: invoice("old", "INV-101", "Acme Corp", 1000, 15),
		},
		{
			name:      "blank number never matches",
			current:   invoice("new", "", "Acme Corp", 1000, 15),
			candidate: invoice("old", "", "Acme Corp", 1000, 15),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := a.Analyze(tt.current, tt.candidate)
			if !tt.match {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, models.MatchExactInvoice, m.MatchType)
			assert.Equal(t, 0.95, m.Confidence)
			assert.Equal(t, models.ActionHighConfidenceDuplicate, m.RecommendedAction)
			assert.Equal(t, "old", m.OriginalInvoiceID)
			assert.Equal(t, "new", m.DuplicateInvoiceID)
			assert.NotEmpty(t, m.Evidence)
		})
	}
}

func TestSupplierAmountDateAnalyzer(t *testing.T) {
	a := SupplierAmountDateAnalyzer{cfg: scenarios(), weights: similarity.DefaultWeights()}
	current := invoice("new", "INV-200", "Acme Industries Pvt Ltd", 1180.000, 15)
	require.Greater(t, similarity.String(current.SupplierName, "Acme Industries Pvt. Ltd"), 0.8)

	t.Run("fires", func(t *testing.T) {
		candidate := invoice("old", "A/77", "Acme Industries Pvt. Ltd", 1180.005, 15)

		m := a.Analyze(current, candidate)
		require.NotNil(t, m)
		assert.Equal(t, 0.90, m.Confidence)
		assert.Equal(t, models.ActionHighConfidenceDuplicate, m.RecommendedAction)
		assert.Equal(t, "2024-03-15", m.MatchingFields["invoice_date"])
	})

	t.Run("one cent is still equal", func(t *testing.T) {
		assert.NotNil(t, a.Analyze(current, invoice("old", "A/77", "Acme Industries Pvt. Ltd", 1180.01, 15)))
	})

	t.Run("amount differs", func(t *testing.T) {
		assert.Nil(t, a.Analyze(current, invoice("old", "A/77", "Acme Industries Pvt. Ltd", 1180.02, 15)))
	})

	t.Run("different day", func(t *testing.T) {
		assert.Nil(t, a.Analyze(current, invoice("old", "A/77", "Acme Industries Pvt. Ltd", 1180, 16)))
	})

	t.Run("missing date", func(t *testing.T) {
		candidate := invoice("old", "A/77", "Acme Industries Pvt. Ltd", 1180, 15)
		candidate.InvoiceDate = models.Date{}
		assert.Nil(t, a.Analyze(current, candidate))
	})

	t.Run("different supplier", func(t *testing.T) {
		assert.Nil(t, a.Analyze(current, invoice("old", "A/77", "Zenith Traders", 1180, 15)))
	})
}

func TestSupplierAmountAnalyzer_StrictBoundary(t *testing.T) {
	a := SupplierAmountAnalyzer{cfg: scenarios(), weights: similarity.DefaultWeights()}
	current := invoice("new", "INV-300", "Acme Corp", 100, 15)

	assert.Nil(t, a.Analyze(current, invoice("old", "X-1", "Acme Corp", 99, 2)),
		"exactly one percent difference must not fire")

	m := a.Analyze(current, invoice("old", "X-1", "Acme Corp", 99.5, 2))
	require.NotNil(t, m)
	assert.Equal(t, 0.85, m.Confidence)
	assert.Equal(t, models.ActionLikelyDuplicate, m.RecommendedAction)

	assert.Nil(t, a.Analyze(current, invoice("old", "X-1", "Zenith Traders", 100, 2)))
}

func TestProductLineAnalyzer(t *testing.T) {
	a := ProductLineAnalyzer{cfg: scenarios(), weights: similarity.DefaultWeights()}
	laptop := line("Dell Latitude 5420 Laptop", "8471", 2, 55000)
	monitor := line("LG 24 inch Monitor", "8528", 2, 12000)

	t.Run("all lines pair", func(t *testing.T) {
		current := invoice("new", "N-1", "Acme Corp", 134000, 15, laptop, monitor)
		candidate := invoice("old", "O-1", "Acme Corp", 134000, 2, monitor, laptop)

		m := a.Analyze(current, candidate)
		require.NotNil(t, m)
		assert.Equal(t, 0.75, m.Confidence)
		assert.Equal(t, models.ActionPossibleDuplicate, m.RecommendedAction)
		assert.Equal(t, "2/2", m.MatchingFields["matching_items"])
	})

	t.Run("one incidental line in a large invoice", func(t *testing.T) {
		current := invoice("new", "N-1", "Acme Corp", 1, 15, laptop)
		candidate := invoice("old", "O-1", "Acme Corp", 1, 2,
			laptop,
			line("Office chair ergonomic", "9401", 10, 7000),
			line("Printer toner cartridge", "8443", 5, 3000),
			line("Whiteboard markers pack", "9608", 20, 150),
		)
		assert.Nil(t, a.Analyze(current, candidate))
	})

	t.Run("unrelated products", func(t *testing.T) {
		current := invoice("new", "N-1", "Acme Corp", 1, 15, laptop)
		candidate := invoice("old", "O-1", "Acme Corp", 1, 2, line("Printer toner cartridge", "8443", 5, 3000))
		assert.Nil(t, a.Analyze(current, candidate))
	})

	t.Run("no lines", func(t *testing.T) {
		assert.Nil(t, a.Analyze(invoice("new", "N-1", "Acme Corp", 1, 15), invoice("old", "O-1", "Acme Corp", 1, 2, laptop)))
	})
}

func TestHSNPatternAnalyzer(t *testing.T) {
	a := HSNPatternAnalyzer{cfg: scenarios()}

	current := invoice("new", "N-1", "Acme Corp", 1, 15, line("a", "8471", 1, 1), line("b", "8528", 1, 1))
	same := invoice("old", "O-1", "Acme Corp", 1, 2, line("c", " 8528", 1, 1), line("d", "8471", 1, 1))
	partial := invoice("old", "O-2", "Acme Corp", 1, 2, line("c", "8471", 1, 1), line("d", "9403", 1, 1))
	none := invoice("old", "O-3", "Acme Corp", 1, 2, line("c", "", 1, 1))

	m := a.Analyze(current, same)
	require.NotNil(t, m)
	assert.Equal(t, 0.70, m.Confidence)
	assert.Equal(t, "8471,8528", m.MatchingFields["hsn_codes"])

	assert.Nil(t, a.Analyze(current, partial))
	assert.Nil(t, a.Analyze(current, none))
}

func TestRatePatternAnalyzer(t *testing.T) {
	a := RatePatternAnalyzer{cfg: scenarios()}

	current := invoice("new", "N-1", "Acme Corp", 1, 15, line("a", "", 2, 500), line("b", "", 4, 250))
	same := invoice("old", "O-1", "Acme Corp", 1, 2, line("x", "", 1, 500), line("y", "", 1, 250))
	near := invoice("old", "O-2", "Acme Corp", 1, 2, line("x", "", 1, 495), line("y", "", 1, 252))
	far := invoice("old", "O-3", "Acme Corp", 1, 2, line("x", "", 1, 100), line("y", "", 1, 900))

	m := a.Analyze(current, same)
	require.NotNil(t, m)
	assert.Equal(t, 0.70, m.Confidence)
	assert.Equal(t, models.MatchRatePattern, m.MatchType)

	assert.NotNil(t, a.Analyze(current, near))
	assert.Nil(t, a.Analyze(current, far))
	assert.Nil(t, a.Analyze(current, invoice("old", "O-4", "Acme Corp", 1, 2)))
}

func TestDefaultAnalyzers_Order(t *testing.T) {
	var types []models.MatchType
	for _, a := range DefaultAnalyzers(DefaultConfig()) {
		types = append(types, a.Type())
	}
	assert.Equal(t, []models.MatchType{
		models.MatchExactInvoice,
		models.MatchSupplierAmountDate,
		models.MatchSupplierAmountSimilarity,
		models.MatchProductLineSimilarity,
		models.MatchHSNPattern,
		models.MatchRatePattern,
	}, types)
}
