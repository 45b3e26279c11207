// Package ai turns validation reports and duplicate analyses into a short
// narrative for reviewers. The LLM is optional: without a provider, or when
// the call fails, a deterministic explanation is returned instead.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facturaIA/invoice-integrity-service/internal/logging"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// SourceFallback marks an explanation built without an LLM
const SourceFallback = "fallback"

const systemPrompt = `You are an accounts-payable auditor. You receive the arithmetic validation
and duplicate-detection results for one invoice. Explain in plain English, in at most
six sentences, what is wrong (if anything), which figures disagree, and what the
reviewer should do next. Do not invent numbers that are not in the input.`

// Explanation is returned to API clients
type Explanation struct {
	InvoiceID string `json:"invoice_id"`
	Text      string `json:"explanation"`
	Source    string `json:"source"`
	Error     string `json:"error,omitempty"`
}

type Explainer struct {
	provider Provider
	timeout  time.Duration
	logger   logging.Logger
}

// NewExplainer accepts a nil provider and a nil logger
func NewExplainer(p Provider, timeout time.Duration, logger logging.Logger) *Explainer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Explainer{provider: p, timeout: timeout, logger: logger}
}

// Explain never fails: provider errors are reported in Explanation.Error
// alongside the fallback text. Either argument may be nil.
func (e *Explainer) Explain(ctx context.Context, report *models.ValidationReport, analysis *models.DuplicateAnalysisResult) *Explanation {
	out := &Explanation{InvoiceID: invoiceID(report, analysis)}

	if e.provider == nil {
		out.Text = Fallback(report, analysis)
		out.Source = SourceFallback
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, err := e.provider.Complete(ctx, systemPrompt, BuildPrompt(report, analysis))
	text = cleanResponse(text)
	if err == nil && text == "" {
		err = fmt.Errorf("%s returned an empty response", e.provider.Name())
	}
	if err != nil {
		e.logger.Warn("llm explanation failed, using fallback",
			logging.String("provider", e.provider.Name()),
			logging.Err(err))
		out.Text = Fallback(report, analysis)
		out.Source = SourceFallback
		out.Error = err.Error()
		return out
	}

	e.logger.Debug("llm explanation generated",
		logging.String("provider", e.provider.Name()),
		logging.Duration("duration", time.Since(start)))
	out.Text = text
	out.Source = e.provider.Name()
	return out
}

func invoiceID(report *models.ValidationReport, analysis *models.DuplicateAnalysisResult) string {
	if report != nil && report.InvoiceID != "" {
		return report.InvoiceID
	}
	if analysis != nil {
		return analysis.InvoiceID
	}
	return ""
}

// BuildPrompt lays out the facts the model may use
func BuildPrompt(report *models.ValidationReport, analysis *models.DuplicateAnalysisResult) string {
	var sb strings.Builder

	if report != nil {
		fmt.Fprintf(&sb, "Invoice %s (id %s)\n\n", report.InvoiceNumber, report.InvoiceID)
		fmt.Fprintf(&sb, "Arithmetic validation: %d run, %d passed, %d failed, %d data errors\n",
			report.TestsRun, report.TestsPassed, report.TestsFailed, report.DataErrors)
		for _, r := range report.Results {
			if r.Passed {
				continue
			}
			fmt.Fprintf(&sb, "- FAILED %s: expected %.2f, actual %.2f (tolerance %.2f). %s\n",
				r.TestName, r.Expected, r.Actual, r.Tolerance, r.Message)
		}
		for _, s := range report.NotApplicable {
			fmt.Fprintf(&sb, "- not applicable %s: missing %s\n", s.TestName, strings.Join(s.MissingFields, ", "))
		}
	}

	if analysis != nil {
		sb.WriteString("\nDuplicate detection: ")
		if conf, ok := analysis.ConfidenceScore(); ok {
			fmt.Fprintf(&sb, "confidence %.2f, action %s\n", conf, analysis.RecommendedAction)
		} else {
			fmt.Fprintf(&sb, "%s, action %s\n", analysis.Status, analysis.RecommendedAction)
		}
		for _, m := range analysis.Matches {
			fmt.Fprintf(&sb, "- %s with invoice %s (%.2f): %s\n",
				m.MatchType, m.OriginalInvoiceNumber, m.Confidence, strings.Join(m.Evidence, "; "))
		}
	}

	return sb.String()
}

// Fallback is the deterministic explanation
func Fallback(report *models.ValidationReport, analysis *models.DuplicateAnalysisResult) string {
	var parts []string

	if report != nil {
		switch {
		case report.TestsRun == 0:
			parts = append(parts, "No arithmetic checks could run because the invoice lacks the required fields.")
		case report.OverallPassed:
			parts = append(parts, fmt.Sprintf("All %d arithmetic checks passed.", report.TestsRun))
		default:
			var names []string
			for _, r := range report.Results {
				if !r.Passed {
					names = append(names, r.TestName)
				}
			}
			parts = append(parts, fmt.Sprintf("%d of %d arithmetic checks failed: %s.",
				report.TestsFailed, report.TestsRun, strings.Join(names, ", ")))
			if report.DataErrors > 0 {
				parts = append(parts, fmt.Sprintf("%d check(s) hit non-numeric values; correct the extracted fields first.", report.DataErrors))
			}
		}
	}

	if analysis != nil {
		switch analysis.RecommendedAction {
		case models.ActionHighConfidenceDuplicate:
			parts = append(parts, "The invoice is very likely a duplicate"+matchedWith(analysis)+"; block payment until reviewed.")
		case models.ActionLikelyDuplicate:
			parts = append(parts, "The invoice resembles an earlier one"+matchedWith(analysis)+"; review before approval.")
		case models.ActionPossibleDuplicate:
			parts = append(parts, "Some duplicate patterns were found"+matchedWith(analysis)+"; worth a quick check.")
		case models.ActionApproveAsUnique:
			parts = append(parts, "No duplicate patterns were found.")
		case models.ActionIndeterminate:
			parts = append(parts, "Duplicate detection could not complete; a manual duplicate review is required.")
		case models.ActionVerifyInvoiceExists:
			parts = append(parts, "The invoice could not be found.")
		}
	}

	if len(parts) == 0 {
		return "Nothing to explain."
	}
	return strings.Join(parts, " ")
}

func matchedWith(a *models.DuplicateAnalysisResult) string {
	if len(a.Matches) == 0 || a.Matches[0].OriginalInvoiceNumber == "" {
		return ""
	}
	return " (best match: " + a.Matches[0].OriginalInvoiceNumber + ")"
}

// cleanResponse strips markdown fences some models wrap answers in
func cleanResponse(s string) string {
	fence := strings.Repeat("`", 3)
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, fence+"markdown")
	s = strings.TrimPrefix(s, fence+"text")
	s = strings.TrimPrefix(s, fence)
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}
