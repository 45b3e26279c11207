package duplication

import (
	"fmt"
	"sort"
	"strings"

	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// ActionFor maps an overall confidence to a recommended action
func ActionFor(confidence float64, t Thresholds) models.Action {
	switch {
	case confidence >= t.Duplicate:
		return models.ActionHighConfidenceDuplicate
	case confidence >= t.Likely:
		return models.ActionLikelyDuplicate
	case confidence >= t.Possible:
		return models.ActionPossibleDuplicate
	default:
		return models.ActionApproveAsUnique
	}
}

// SortMatches orders matches by confidence descending, then candidate id, then
// match type, so the result does not depend on comparison order
func SortMatches(matches []models.DuplicateMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.OriginalInvoiceID != b.OriginalInvoiceID {
			return a.OriginalInvoiceID < b.OriginalInvoiceID
		}
		return a.MatchType < b.MatchType
	})
}

// Aggregate reduces every match for inv into one verdict. The overall
// confidence is the strongest single piece of evidence, never an average.
func Aggregate(inv *models.InvoiceRecord, matches []models.DuplicateMatch, t Thresholds) *models.DuplicateAnalysisResult {
	sorted := make([]models.DuplicateMatch, len(matches))
	copy(sorted, matches)
	SortMatches(sorted)

	confidence := 0.0
	for _, m := range sorted {
		if m.Confidence > confidence {
			confidence = m.Confidence
		}
	}

	result := &models.DuplicateAnalysisResult{
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		Status:            models.StatusComplete,
		IsDuplicate:       confidence >= t.Duplicate,
		Confidence:        &confidence,
		Matches:           sorted,
		RecommendedAction: ActionFor(confidence, t),
	}
	result.Summary = summarize(inv, result)
	return result
}

// Indeterminate is the verdict when candidates could not be retrieved. The
// confidence stays undefined so the invoice is never approved by default.
func Indeterminate(inv *models.InvoiceRecord, err error) *models.DuplicateAnalysisResult {
	result := &models.DuplicateAnalysisResult{
		InvoiceID:         inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		Status:            models.StatusIndeterminate,
		Matches:           []models.DuplicateMatch{},
		RecommendedAction: models.ActionIndeterminate,
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Summary = fmt.Sprintf("Invoice Analysis: %s\nDuplicate check could not complete: %s\nManual duplicate review required.",
		inv.InvoiceNumber, result.Error)
	return result
}

// NotFound is the verdict for a stored invoice id that does not exist
func NotFound(id string) *models.DuplicateAnalysisResult {
	return &models.DuplicateAnalysisResult{
		InvoiceID:         id,
		Status:            models.StatusNotFound,
		Matches:           []models.DuplicateMatch{},
		RecommendedAction: models.ActionVerifyInvoiceExists,
		Summary:           "Invoice not found in database",
		Error:             fmt.Sprintf("invoice %s not found", id),
	}
}

func summarize(inv *models.InvoiceRecord, r *models.DuplicateAnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice Analysis: %s\n", inv.InvoiceNumber)
	fmt.Fprintf(&b, "Supplier: %s\n", inv.SupplierName)
	if inv.TotalValue.Numeric() {
		fmt.Fprintf(&b, "Amount: %.2f\n", inv.TotalValue.Float64())
	} else {
		b.WriteString("Amount: unknown\n")
	}

	if len(r.Matches) > 0 {
		fmt.Fprintf(&b, "\nFound %d potential duplicate(s):\n", len(r.Matches))
		for i, m := range r.Matches {
			fmt.Fprintf(&b, "%d. %s (Confidence: %.1f%%, Type: %s)\n", i+1, m.OriginalInvoiceNumber, m.Confidence*100, m.MatchType)
		}
	} else {
		b.WriteString("\nNo significant duplicate patterns detected.\n")
	}

	if r.IsDuplicate {
		b.WriteString("\nCONCLUSION: This invoice appears to be a DUPLICATE.")
	} else {
		b.WriteString("\nCONCLUSION: This invoice appears to be UNIQUE.")
	}
	return b.String()
}
