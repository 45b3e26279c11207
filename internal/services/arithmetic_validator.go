package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/invoice-integrity-service/internal/logging"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// ArithmeticValidator checks the internal arithmetic of an invoice. It holds
// only its test catalog and is safe for concurrent use.
type ArithmeticValidator struct {
	tests  []models.ValidationTest
	logger logging.Logger
}

// NewArithmeticValidator creates a validator over a catalog that has already
// been through ParseCatalog
func NewArithmeticValidator(tests []models.ValidationTest, logger logging.Logger) *ArithmeticValidator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ArithmeticValidator{tests: tests, logger: logger.Named("validator")}
}

// NewDefaultValidator uses the built-in catalog
func NewDefaultValidator(logger logging.Logger) (*ArithmeticValidator, error) {
	tests, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return NewArithmeticValidator(tests, logger), nil
}

// LoadValidator builds a validator from rulesFile (the built-in catalog when
// empty). A positive tolerance replaces every rule's own tolerance.
func LoadValidator(rulesFile string, tolerance float64, logger logging.Logger) (*ArithmeticValidator, error) {
	tests, err := LoadCatalog(rulesFile)
	if err != nil {
		return nil, err
	}
	if tolerance > 0 {
		if tests, err = WithTolerance(tests, tolerance); err != nil {
			return nil, err
		}
	}
	return NewArithmeticValidator(tests, logger), nil
}

// Tests returns the catalog in execution order
func (v *ArithmeticValidator) Tests() []models.ValidationTest {
	return v.tests
}

// Discover splits the catalog into tests the invoice has data for and tests it
// does not. Missing data never turns into a pass or a failure.
func (v *ArithmeticValidator) Discover(inv *models.InvoiceRecord) ([]models.ValidationTest, []models.SkippedTest) {
	var applicable []models.ValidationTest
	var skipped []models.SkippedTest

	for _, t := range v.tests {
		var missing []string
		if t.Scope == models.ScopeLine {
			missing = bestLineMissing(t, inv.LineItems)
		} else {
			missing = missingGroups(t, func(f string) bool { return invoiceHas(inv, f) })
		}

		if len(missing) == 0 {
			applicable = append(applicable, t)
			continue
		}
		skipped = append(skipped, models.SkippedTest{TestID: t.ID, TestName: t.Name, MissingFields: missing})
	}
	return applicable, skipped
}

// Validate runs every applicable test and aggregates the results
func (v *ArithmeticValidator) Validate(inv *models.InvoiceRecord) *models.ValidationReport {
	applicable, skipped := v.Discover(inv)

	report := &models.ValidationReport{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Results:       make([]models.ValidationResult, 0, len(applicable)),
		NotApplicable: skipped,
	}
	if report.NotApplicable == nil {
		report.NotApplicable = []models.SkippedTest{}
	}

	for _, t := range applicable {
		var result models.ValidationResult
		if t.Scope == models.ScopeLine {
			result = runLineTest(t, inv.LineItems)
		} else {
			result = runInvoiceTest(t, inv)
		}

		report.Results = append(report.Results, result)
		if result.Passed {
			report.TestsPassed++
		} else {
			report.TestsFailed++
		}
		if result.DataError {
			report.DataErrors++
		}
	}

	report.TestsRun = len(report.Results)
	report.OverallPassed = report.TestsFailed == 0

	v.logger.Debug("invoice validated",
		logging.String("invoice_id", inv.ID),
		logging.Int("tests_run", report.TestsRun),
		logging.Int("tests_failed", report.TestsFailed),
		logging.Int("not_applicable", len(skipped)),
	)
	return report
}

func runLineTest(t models.ValidationTest, items []models.LineItem) models.ValidationResult {
	rule := lineRules[t.ID]
	result := newResult(t)

	for i, item := range items {
		if len(missingGroups(t, func(f string) bool { return lineHas(item, f) })) > 0 {
			result.SkippedLines++
			continue
		}
		check := evaluate(t.Tolerance, func() (outcome, error) { return rule(item) })
		check.Subject = fmt.Sprintf("line %d", i+1)
		if check.Message != "" {
			check.Message = fmt.Sprintf("Line %d: %s", i+1, check.Message)
		}
		result.Checks = append(result.Checks, check)
	}

	finishResult(&result)
	return result
}

func runInvoiceTest(t models.ValidationTest, inv *models.InvoiceRecord) models.ValidationResult {
	rule := invoiceRules[t.ID]
	result := newResult(t)

	check := evaluate(t.Tolerance, func() (outcome, error) { return rule(inv) })
	check.Subject = "invoice"
	result.Checks = append(result.Checks, check)

	finishResult(&result)
	return result
}

func newResult(t models.ValidationTest) models.ValidationResult {
	return models.ValidationResult{
		TestID:      t.ID,
		TestName:    t.Name,
		Description: t.Description,
		Tolerance:   t.Tolerance,
		Checks:      []models.CheckResult{},
	}
}

// evaluate compares rounded expected and actual values. A data error becomes
// a failed check rather than an error return.
func evaluate(tolerance float64, rule func() (outcome, error)) models.CheckResult {
	out, err := rule()
	if err != nil {
		return models.CheckResult{
			Passed:    false,
			DataError: true,
			Message:   fmt.Sprintf("Data error: %s", err.Error()),
		}
	}

	expected := out.expected.Round(2)
	actual := out.actual.Round(2)
	withinTolerance := expected.Sub(actual).Abs().LessThanOrEqual(decimal.NewFromFloat(tolerance))

	check := models.CheckResult{
		Expected: expected.InexactFloat64(),
		Actual:   actual.InexactFloat64(),
		Passed:   withinTolerance && out.conflict == "",
	}
	switch {
	case out.conflict != "":
		check.Message = out.conflict
	case !withinTolerance:
		check.Message = fmt.Sprintf("%s ≠ %s(%s)", out.lhs, out.rhs, actual.StringFixed(2))
	}
	return check
}

func finishResult(result *models.ValidationResult) {
	result.Passed = true
	var messages []string
	for _, c := range result.Checks {
		if c.Passed {
			continue
		}
		if result.Passed {
			result.Expected = c.Expected
			result.Actual = c.Actual
		}
		result.Passed = false
		result.DataError = result.DataError || c.DataError
		messages = append(messages, c.Message)
	}
	if result.Passed && len(result.Checks) > 0 {
		result.Expected = result.Checks[0].Expected
		result.Actual = result.Checks[0].Actual
	}
	result.Message = strings.Join(messages, "; ")
}

// missingGroups lists the unsatisfied groups of t, alternatives joined by "|"
func missingGroups(t models.ValidationTest, has func(string) bool) []string {
	var missing []string
	for _, group := range t.Required {
		satisfied := false
		for _, f := range group {
			if has(f) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing = append(missing, strings.Join(group, "|"))
		}
	}
	return missing
}

// bestLineMissing returns nil when some line satisfies t, otherwise the gaps of
// the line that came closest
func bestLineMissing(t models.ValidationTest, items []models.LineItem) []string {
	if len(items) == 0 {
		return []string{"line_items"}
	}
	var best []string
	for i, item := range items {
		missing := missingGroups(t, func(f string) bool { return lineHas(item, f) })
		if len(missing) == 0 {
			return nil
		}
		if i == 0 || len(missing) < len(best) {
			best = missing
		}
	}
	return best
}

func lineHas(item models.LineItem, field string) bool {
	if field == fieldTaxAmount {
		return hasTax(item)
	}
	a, ok := item.Field(field)
	return ok && a.Present()
}

func invoiceHas(inv *models.InvoiceRecord, field string) bool {
	if strings.HasPrefix(field, lineFieldPrefix) {
		lf := strings.TrimPrefix(field, lineFieldPrefix)
		if len(inv.LineItems) == 0 {
			return false
		}
		for _, item := range inv.LineItems {
			if !lineHas(item, lf) {
				return false
			}
		}
		return true
	}
	a, ok := inv.Field(field)
	return ok && a.Present()
}
