package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

const reportWidth = 60

// RenderTextReport writes a fixed-width plain text rendering of report
func RenderTextReport(w io.Writer, report *models.ValidationReport) error {
	var b strings.Builder

	rule := strings.Repeat("=", reportWidth)
	b.WriteString(rule + "\n")
	b.WriteString(center("ARITHMETIC VALIDATION REPORT") + "\n")
	b.WriteString(center(fmt.Sprintf("Invoice %s (%s)", report.InvoiceNumber, report.InvoiceID)) + "\n")
	b.WriteString(rule + "\n\n")

	for _, r := range report.Results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s\n", status, r.TestName)
		fmt.Fprintf(&b, "       Expected: %.2f, Actual: %.2f (±%.2f)\n", r.Expected, r.Actual, r.Tolerance)
		if r.SkippedLines > 0 {
			fmt.Fprintf(&b, "       Lines without data: %d\n", r.SkippedLines)
		}
		if !r.Passed {
			for _, msg := range strings.Split(r.Message, "; ") {
				fmt.Fprintf(&b, "       Error: %s\n", msg)
			}
		}
	}

	if len(report.NotApplicable) > 0 {
		b.WriteString("\nNot applicable:\n")
		for _, s := range report.NotApplicable {
			fmt.Fprintf(&b, "  - %s (missing: %s)\n", s.TestName, strings.Join(s.MissingFields, ", "))
		}
	}

	b.WriteString("\n" + strings.Repeat("-", reportWidth) + "\n")
	fmt.Fprintf(&b, "Tests Run: %d\n", report.TestsRun)
	fmt.Fprintf(&b, "Passed: %d\n", report.TestsPassed)
	fmt.Fprintf(&b, "Failed: %d\n", report.TestsFailed)
	if report.DataErrors > 0 {
		fmt.Fprintf(&b, "Data Errors: %d\n", report.DataErrors)
	}
	fmt.Fprintf(&b, "Overall: %s\n", overallLabel(report))

	_, err := io.WriteString(w, b.String())
	return err
}

func overallLabel(report *models.ValidationReport) string {
	switch {
	case report.TestsRun == 0:
		return "NOTHING TO VALIDATE"
	case report.OverallPassed:
		return "VALID"
	default:
		return "INVALID"
	}
}

func center(s string) string {
	n := len([]rune(s))
	if n >= reportWidth {
		return s
	}
	return strings.Repeat(" ", (reportWidth-n)/2) + s
}
