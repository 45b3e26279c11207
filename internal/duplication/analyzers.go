package duplication

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/invoice-integrity-service/internal/models"
	"github.com/facturaIA/invoice-integrity-service/internal/similarity"
)

// Fixed scenario confidences
const (
	ConfidenceExactInvoice       = 0.95
	ConfidenceSupplierAmountDate = 0.90
	ConfidenceSupplierAmount     = 0.85
	ConfidenceProductLine        = 0.75
	ConfidenceHSNPattern         = 0.70
	ConfidenceRatePattern        = 0.70
)

// Analyzer compares the current invoice with one candidate. It returns nil
// when its trigger is not met; a nil result carries no evidence either way.
type Analyzer interface {
	Type() models.MatchType
	Analyze(current, candidate *models.InvoiceRecord) *models.DuplicateMatch
}

// DefaultAnalyzers returns the six scenarios in descending order of certainty
func DefaultAnalyzers(cfg Config) []Analyzer {
	return []Analyzer{
		ExactInvoiceAnalyzer{},
		SupplierAmountDateAnalyzer{cfg: cfg.Scenarios, weights: cfg.Weights},
		SupplierAmountAnalyzer{cfg: cfg.Scenarios, weights: cfg.Weights},
		ProductLineAnalyzer{cfg: cfg.Scenarios, weights: cfg.Weights},
		HSNPatternAnalyzer{cfg: cfg.Scenarios},
		RatePatternAnalyzer{cfg: cfg.Scenarios},
	}
}

// newMatch fills provenance. The candidate is the earlier, original invoice.
func newMatch(t models.MatchType, current, candidate *models.InvoiceRecord, confidence float64, action models.Action) *models.DuplicateMatch {
	return &models.DuplicateMatch{
		MatchType:              t,
		OriginalInvoiceID:      candidate.ID,
		OriginalInvoiceNumber:  candidate.InvoiceNumber,
		DuplicateInvoiceID:     current.ID,
		DuplicateInvoiceNumber: current.InvoiceNumber,
		Confidence:             confidence,
		MatchingFields:         map[string]string{},
		Evidence:               []string{},
		RecommendedAction:      action,
	}
}

// roundScore removes float noise below 1e-9 so strict comparisons against
// configured levels behave at the boundary
func roundScore(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// ExactInvoiceAnalyzer: same invoice number from the same supplier
type ExactInvoiceAnalyzer struct{}

func (ExactInvoiceAnalyzer) Type() models.MatchType { return models.MatchExactInvoice }

func (a ExactInvoiceAnalyzer) Analyze(current, candidate *models.InvoiceRecord) *models.DuplicateMatch {
	num := SupplierKey(current.InvoiceNumber)
	supplier := SupplierKey(current.SupplierName)
	if num == "" || supplier == "" {
		return nil
	}
	if num != SupplierKey(candidate.InvoiceNumber) || supplier != SupplierKey(candidate.SupplierName) {
		return nil
	}

	m := newMatch(a.Type(), current, candidate, ConfidenceExactInvoice, models.ActionHighConfidenceDuplicate)
	m.MatchingFields["invoice_number"] = candidate.InvoiceNumber
	m.MatchingFields["supplier_name"] = candidate.SupplierName
	m.Evidence = append(m.Evidence,
		fmt.Sprintf("Exact invoice number match: %s", candidate.InvoiceNumber),
		fmt.Sprintf("Same supplier: %s", candidate.SupplierName),
	)
	return m
}

// SupplierAmountDateAnalyzer: similar supplier, same grand total, same day
type SupplierAmountDateAnalyzer struct {
	cfg     ScenarioConfig
	weights similarity.Weights
}

func (SupplierAmountDateAnalyzer) Type() models.MatchType { return models.MatchSupplierAmountDate }

func (a SupplierAmountDateAnalyzer) Analyze(current, candidate *models.InvoiceRecord) *models.DuplicateMatch {
	if !current.InvoiceDate.SameDay(candidate.InvoiceDate) {
		return nil
	}
	cur, err := current.TotalValue.Decimal()
	if err != nil {
		return nil
	}
	cand, err := candidate.TotalValue.Decimal()
	if err != nil {
		return nil
	}
	diff := cur.Sub(cand).Abs()
	if diff.GreaterThan(decimal.NewFromFloat(a.cfg.AmountTolerance)) {
		return nil
	}
	supplierSim := roundScore(similarity.StringWith(a.weights, current.SupplierName, candidate.SupplierName))
	if supplierSim <= a.cfg.SupplierDateSimilarity {
		return nil
	}

	m := newMatch(a.Type(), current, candidate, ConfidenceSupplierAmountDate, models.ActionHighConfidenceDuplicate)
	m.MatchingFields["supplier_name"] = candidate.SupplierName
	m.MatchingFields["total_value"] = cand.StringFixed(2)
	m.MatchingFields["invoice_date"] = candidate.InvoiceDate.String()
	m.Evidence = append(m.Evidence,
		fmt.Sprintf("Supplier similarity: %s (%s / %s)", pct(supplierSim), current.SupplierName, candidate.SupplierName),
		fmt.Sprintf("Identical amount: %s (difference %s)", cand.StringFixed(2), diff.StringFixed(2)),
		fmt.Sprintf("Same invoice date: %s", candidate.InvoiceDate.String()),
	)
	return m
}

// SupplierAmountAnalyzer: similar supplier and nearly identical grand total
type SupplierAmountAnalyzer struct {
	cfg     ScenarioConfig
	weights similarity.Weights
}

func (SupplierAmountAnalyzer) Type() models.MatchType { return models.MatchSupplierAmountSimilarity }

func (a SupplierAmountAnalyzer) Analyze(current, candidate *models.InvoiceRecord) *models.DuplicateMatch {
	if !current.TotalValue.Numeric() || !candidate.TotalValue.Numeric() {
		return nil
	}
	amountSim := roundScore(similarity.Amount(current.TotalValue.Float64(), candidate.TotalValue.Float64()))
	if amountSim <= a.cfg.AmountSimilarity {
		return nil
	}
	supplierSim := roundScore(similarity.StringWith(a.weights, current.SupplierName, candidate.SupplierName))
	if supplierSim <= a.cfg.SupplierAmountSimilarity {
		return nil
	}

	m := newMatch(a.Type(), current, candidate, ConfidenceSupplierAmount, models.ActionLikelyDuplicate)
	m.MatchingFields["supplier_name"] = candidate.SupplierName
	m.MatchingFields["total_value"] = candidate.TotalValue.String()
	m.Evidence = append(m.Evidence,
		fmt.Sprintf("Supplier similarity: %s", pct(supplierSim)),
		fmt.Sprintf("Amount similarity: %s (%.2f vs %.2f)", pct(amountSim),
			current.TotalValue.Float64(), candidate.TotalValue.Float64()),
	)
	return m
}

// ProductLineAnalyzer: line descriptions pair up across the two invoices
type ProductLineAnalyzer struct {
	cfg     ScenarioConfig
	weights similarity.Weights
}

func (ProductLineAnalyzer) Type() models.MatchType { return models.MatchProductLineSimilarity }

type linePair struct {
	current   string
	candidate string
	score     float64
}

// pairLines greedily gives each current line its best unused candidate line
// above the description level
func (a ProductLineAnalyzer) pairLines(current, candidate []models.LineItem) []linePair {
	used := make([]bool, len(candidate))
	var pairs []linePair
	for _, item := range current {
		if strings.TrimSpace(item.Description) == "" {
			continue
		}
		best, bestIdx := 0.0, -1
		for j, other := range candidate {
			if used[j] {
				continue
			}
			if s := roundScore(similarity.StringWith(a.weights, item.Description, other.Description)); s > best {
				best, bestIdx = s, j
			}
		}
		if bestIdx >= 0 && best > a.cfg.DescriptionSimilarity {
			used[bestIdx] = true
			pairs = append(pairs, linePair{current: item.Description, candidate: candidate[bestIdx].Description, score: best})
		}
	}
	return pairs
}

func (a ProductLineAnalyzer) Analyze(current, candidate *models.InvoiceRecord) *models.DuplicateMatch {
	if len(current.LineItems) == 0 || len(candidate.LineItems) == 0 {
		return nil
	}
	pairs := a.pairLines(current.LineItems, candidate.LineItems)
	if len(pairs) == 0 {
		return nil
	}

	total := 0.0
	for _, p := range pairs {
		total += p.score
	}
	avg := roundScore(total / float64(len(pairs)))
	longer := len(current.LineItems)
	if len(candidate.LineItems) > longer {
		longer = len(candidate.LineItems)
	}
	fraction := float64(len(pairs)) / float64(longer)
	if avg <= a.cfg.ProductAverageSimilarity || fraction < a.cfg.MinProductMatchFraction {
		return nil
	}

	m := newMatch(a.Type(), current, candidate, ConfidenceProductLine, models.ActionPossibleDuplicate)
	m.MatchingFields["matching_items"] = fmt.Sprintf("%d/%d", len(pairs), longer)
	m.Evidence = append(m.Evidence,
		fmt.Sprintf("Product similarity: %s", pct(avg)),
		fmt.Sprintf("Matching products: %d out of %d", len(pairs), longer),
	)
	for _, p := range pairs {
		m.Evidence = append(m.Evidence, fmt.Sprintf("Product match: %s ~ %s (%s)", p.current, p.candidate, pct(p.score)))
	}
	return m
}

// HSNPatternAnalyzer: the invoices bill the same classification codes
type HSNPatternAnalyzer struct {
	cfg ScenarioConfig
}

func (HSNPatternAnalyzer) Type() models.MatchType { return models.MatchHSNPattern }

func (a HSNPatternAnalyzer) Analyze(current, candidate *models.InvoiceRecord) *models.DuplicateMatch {
	codesA, codesB := current.HSNCodes(), candidate.HSNCodes()
	score := roundScore(similarity.Jaccard(codesA, codesB))
	if score <= a.cfg.HSNSimilarity {
		return nil
	}

	common := similarity.Intersection(codesA, codesB)
	m := newMatch(a.Type(), current, candidate, ConfidenceHSNPattern, models.ActionPossibleDuplicate)
	m.MatchingFields["hsn_codes"] = strings.Join(common, ",")
	m.Evidence = append(m.Evidence,
		fmt.Sprintf("HSN code similarity: %s", pct(score)),
		fmt.Sprintf("Matching HSN codes: %s", strings.Join(common, ", ")),
	)
	return m
}

// RatePatternAnalyzer: per-line unit rates line up
type RatePatternAnalyzer struct {
	cfg ScenarioConfig
}

func (RatePatternAnalyzer) Type() models.MatchType { return models.MatchRatePattern }

func (a RatePatternAnalyzer) Analyze(current, candidate *models.InvoiceRecord) *models.DuplicateMatch {
	ratesA, ratesB := current.UnitRates(), candidate.UnitRates()
	score := roundScore(similarity.List(ratesA, ratesB))
	if score <= a.cfg.RateSimilarity {
		return nil
	}

	m := newMatch(a.Type(), current, candidate, ConfidenceRatePattern, models.ActionPossibleDuplicate)
	m.MatchingFields["unit_rates"] = formatRates(ratesB)
	m.Evidence = append(m.Evidence,
		fmt.Sprintf("Rate similarity: %s", pct(score)),
		fmt.Sprintf("Unit rates: [%s] vs [%s]", formatRates(ratesA), formatRates(ratesB)),
	)
	return m
}

func formatRates(rates []float64) string {
	parts := make([]string, len(rates))
	for i, r := range rates {
		parts[i] = fmt.Sprintf("%.2f", r)
	}
	return strings.Join(parts, ", ")
}
