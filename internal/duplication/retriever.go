package duplication

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
	"github.com/facturaIA/invoice-integrity-service/internal/similarity"
)

// CandidateRetriever returns prior invoices plausibly related to inv. Every
// implementation excludes inv's own id and applies all of Filters.
type CandidateRetriever interface {
	RetrieveCandidates(ctx context.Context, inv *models.InvoiceRecord, f Filters) ([]models.InvoiceRecord, error)
}

// SupplierKey folds case and all whitespace for exact supplier or invoice
// number comparison
func SupplierKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// Accept reports whether candidate passes the filters relative to current.
// The amount and date filters only apply when current carries that data.
func (f Filters) Accept(current, candidate *models.InvoiceRecord, w similarity.Weights) bool {
	if candidate.ID != "" && candidate.ID == current.ID {
		return false
	}
	return f.SupplierMatches(current.SupplierName, candidate.SupplierName, w) &&
		f.AmountInRange(current, candidate) &&
		f.DateInWindow(current, candidate)
}

// SupplierMatches accepts an exact supplier match or a similar enough name
func (f Filters) SupplierMatches(a, b string, w similarity.Weights) bool {
	if ka := SupplierKey(a); ka != "" && ka == SupplierKey(b) {
		return true
	}
	return similarity.StringWith(w, a, b) >= f.SupplierSimilarityMin
}

// AmountInRange checks the candidate's grand total against ±AmountRangePct of
// the current one
func (f Filters) AmountInRange(current, candidate *models.InvoiceRecord) bool {
	cur, err := current.TotalValue.Decimal()
	if err != nil {
		return true
	}
	cand, err := candidate.TotalValue.Decimal()
	if err != nil {
		return false
	}
	limit := cur.Abs().Mul(decimal.NewFromFloat(f.AmountRangePct))
	return cand.Sub(cur).Abs().LessThanOrEqual(limit)
}

// DateInWindow checks the candidate's date is within DateWindowDays
func (f Filters) DateInWindow(current, candidate *models.InvoiceRecord) bool {
	if current.InvoiceDate.IsZero() {
		return true
	}
	if candidate.InvoiceDate.IsZero() {
		return false
	}
	return current.InvoiceDate.DaysApart(candidate.InvoiceDate) <= f.DateWindowDays
}

// AmountBounds returns the inclusive total range implied by the filters, and
// false when current has no usable total
func (f Filters) AmountBounds(current *models.InvoiceRecord) (lo, hi decimal.Decimal, ok bool) {
	cur, err := current.TotalValue.Decimal()
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	delta := cur.Abs().Mul(decimal.NewFromFloat(f.AmountRangePct))
	return cur.Sub(delta), cur.Add(delta), true
}

// UnavailableRetriever stands in when no candidate store is configured. Every
// call fails, so analysis ends INDETERMINATE instead of approving against an
// empty history.
type UnavailableRetriever struct {
	Reason string
}

func (u UnavailableRetriever) RetrieveCandidates(ctx context.Context, inv *models.InvoiceRecord, f Filters) ([]models.InvoiceRecord, error) {
	reason := u.Reason
	if reason == "" {
		reason = "candidate store not available"
	}
	return nil, apperrors.New(apperrors.CodeUnavailable, reason)
}

// MemoryRetriever serves candidates from an in-process corpus
type MemoryRetriever struct {
	mu       sync.RWMutex
	invoices []models.InvoiceRecord
	weights  similarity.Weights
}

// NewMemoryRetriever copies corpus; later changes to the slice are not seen
func NewMemoryRetriever(corpus []models.InvoiceRecord, w similarity.Weights) *MemoryRetriever {
	invoices := make([]models.InvoiceRecord, len(corpus))
	copy(invoices, corpus)
	return &MemoryRetriever{invoices: invoices, weights: w}
}

// Add appends invoices to the corpus
func (m *MemoryRetriever) Add(invoices ...models.InvoiceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = append(m.invoices, invoices...)
}

// Len returns the corpus size
func (m *MemoryRetriever) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.invoices)
}

// Get finds an invoice by id
func (m *MemoryRetriever) Get(id string) (models.InvoiceRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.invoices {
		if inv.ID == id {
			return inv, true
		}
	}
	return models.InvoiceRecord{}, false
}

func (m *MemoryRetriever) RetrieveCandidates(ctx context.Context, inv *models.InvoiceRecord, f Filters) ([]models.InvoiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.InvoiceRecord
	for i := range m.invoices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Accept(inv, &m.invoices[i], m.weights) {
			out = append(out, m.invoices[i])
		}
	}

	// most recent first so Limit keeps the closest history
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InvoiceDate.After(out[j].InvoiceDate.Time)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
