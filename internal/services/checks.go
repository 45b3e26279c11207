package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// Pseudo-fields understood by rule definitions
const (
	fieldTaxAmount  = "tax_amount"
	lineFieldPrefix = "lines."
)

var hundred = decimal.NewFromInt(100)

// outcome is what a rule computed for one subject. A non-empty conflict fails
// the check regardless of the numbers.
type outcome struct {
	expected decimal.Decimal
	actual   decimal.Decimal
	lhs      string
	rhs      string
	conflict string
}

type lineRule func(item models.LineItem) (outcome, error)
type invoiceRule func(inv *models.InvoiceRecord) (outcome, error)

// dataError marks a required field that is present but unreadable
type dataError struct {
	field string
	raw   string
}

func (e *dataError) Error() string {
	return fmt.Sprintf("%s is not numeric (%q)", e.field, e.raw)
}

var lineRules = map[string]lineRule{
	"line_item_total":      lineItemTotal,
	"gst_calculation":      rateCheck("GST", models.FieldGSTRate, models.FieldGSTAmount),
	"sgst_calculation":     rateCheck("SGST", models.FieldSGSTRate, models.FieldSGSTAmount),
	"cgst_calculation":     rateCheck("CGST", models.FieldCGSTRate, models.FieldCGSTAmount),
	"igst_calculation":     rateCheck("IGST", models.FieldIGSTRate, models.FieldIGSTAmount),
	"total_tax_components": totalTaxComponents,
	"item_total_with_tax":  itemTotalWithTax,
}

var invoiceRules = map[string]invoiceRule{
	"invoice_taxable_sum": invoiceTaxableSum,
	"invoice_tax_sum":     invoiceTaxSum,
	"invoice_grand_total": invoiceGrandTotal,
}

var taxAmountFields = []string{
	models.FieldGSTAmount, models.FieldSGSTAmount, models.FieldCGSTAmount, models.FieldIGSTAmount,
}

func required(a models.Amount, field string) (decimal.Decimal, error) {
	d, err := a.Decimal()
	if err != nil {
		return decimal.Zero, &dataError{field: field, raw: a.Raw()}
	}
	return d, nil
}

// optional reads a non-required field; absent or unreadable counts as zero
func optional(a models.Amount) (decimal.Decimal, bool) {
	if !a.Numeric() {
		return decimal.Zero, false
	}
	d, _ := a.Decimal()
	return d, true
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func lineItemField(item models.LineItem, name string) models.Amount {
	a, _ := item.Field(name)
	return a
}

func hasTax(item models.LineItem) bool {
	for _, f := range taxAmountFields {
		if lineItemField(item, f).Present() {
			return true
		}
	}
	return false
}

// lineTax is the tax a line actually charges: intra-state SGST+CGST,
// inter-state IGST, or a lump GST, whichever is largest.
func lineTax(item models.LineItem) decimal.Decimal {
	sgst, _ := optional(item.SGSTAmount)
	cgst, _ := optional(item.CGSTAmount)
	igst, _ := optional(item.IGSTAmount)
	gst, _ := optional(item.GSTAmount)
	return decimal.Max(sgst.Add(cgst), igst, gst)
}

func lineItemTotal(item models.LineItem) (outcome, error) {
	qty, err := required(item.Quantity, models.FieldQuantity)
	if err != nil {
		return outcome{}, err
	}
	price, err := required(item.UnitPrice, models.FieldUnitPrice)
	if err != nil {
		return outcome{}, err
	}

	var actual decimal.Decimal
	if item.TaxableValue.Present() {
		if actual, err = required(item.TaxableValue, models.FieldTaxableValue); err != nil {
			return outcome{}, err
		}
	} else {
		if actual, err = required(item.TotalAmount, models.FieldTotalAmount); err != nil {
			return outcome{}, err
		}
		if hasTax(item) {
			actual = actual.Sub(lineTax(item))
		}
	}

	expected := qty.Mul(price)
	return outcome{
		expected: expected,
		actual:   actual,
		lhs:      fmt.Sprintf("Quantity(%s) × Rate(%s) = %s", qty.String(), money(price), money(expected)),
		rhs:      "Total",
	}, nil
}

func rateCheck(label, rateField, amountField string) lineRule {
	return func(item models.LineItem) (outcome, error) {
		taxable, err := required(item.TaxableValue, models.FieldTaxableValue)
		if err != nil {
			return outcome{}, err
		}
		rate, err := required(lineItemField(item, rateField), rateField)
		if err != nil {
			return outcome{}, err
		}
		amount, err := required(lineItemField(item, amountField), amountField)
		if err != nil {
			return outcome{}, err
		}

		expected := taxable.Mul(rate).Div(hundred)
		return outcome{
			expected: expected,
			actual:   amount,
			lhs: fmt.Sprintf("Taxable(%s) × %s Rate(%s%%) = %s",
				money(taxable), label, rate.String(), money(expected)),
			rhs: label,
		}, nil
	}
}

func totalTaxComponents(item models.LineItem) (outcome, error) {
	gst, err := required(item.GSTAmount, models.FieldGSTAmount)
	if err != nil {
		return outcome{}, err
	}

	var parts []string
	component := func(a models.Amount, field, label string) (decimal.Decimal, error) {
		if !a.Present() {
			return decimal.Zero, nil
		}
		d, err := required(a, field)
		if err != nil {
			return decimal.Zero, err
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", label, money(d)))
		return d, nil
	}

	sgst, err := component(item.SGSTAmount, models.FieldSGSTAmount, "SGST")
	if err != nil {
		return outcome{}, err
	}
	cgst, err := component(item.CGSTAmount, models.FieldCGSTAmount, "CGST")
	if err != nil {
		return outcome{}, err
	}
	igst, err := component(item.IGSTAmount, models.FieldIGSTAmount, "IGST")
	if err != nil {
		return outcome{}, err
	}

	intra := sgst.Add(cgst)
	expected := intra.Add(igst)
	out := outcome{
		expected: expected,
		actual:   gst,
		lhs:      fmt.Sprintf("%s = %s", strings.Join(parts, " + "), money(expected)),
		rhs:      "GST",
	}
	if intra.IsPositive() && igst.IsPositive() {
		out.conflict = fmt.Sprintf(
			"SGST+CGST(%s) and IGST(%s) both charged (intra-state and inter-state tax are mutually exclusive)",
			money(intra), money(igst))
	}
	return out, nil
}

func itemTotalWithTax(item models.LineItem) (outcome, error) {
	taxable, err := required(item.TaxableValue, models.FieldTaxableValue)
	if err != nil {
		return outcome{}, err
	}
	total, err := required(item.TotalAmount, models.FieldTotalAmount)
	if err != nil {
		return outcome{}, err
	}
	for _, f := range taxAmountFields {
		if a := lineItemField(item, f); a.Present() {
			if _, err := required(a, f); err != nil {
				return outcome{}, err
			}
		}
	}

	tax := lineTax(item)
	expected := taxable.Add(tax)
	return outcome{
		expected: expected,
		actual:   total,
		lhs:      fmt.Sprintf("Taxable(%s) + Tax(%s) = %s", money(taxable), money(tax), money(expected)),
		rhs:      "Total",
	}, nil
}

func invoiceTaxableSum(inv *models.InvoiceRecord) (outcome, error) {
	actual, err := required(inv.TaxableValue, models.FieldTaxableValue)
	if err != nil {
		return outcome{}, err
	}
	sum := decimal.Zero
	for i, item := range inv.LineItems {
		v, err := required(item.TaxableValue, fmt.Sprintf("line %d %s", i+1, models.FieldTaxableValue))
		if err != nil {
			return outcome{}, err
		}
		sum = sum.Add(v)
	}
	return outcome{
		expected: sum,
		actual:   actual,
		lhs:      fmt.Sprintf("Sum of line taxable values(%s)", money(sum)),
		rhs:      "Invoice taxable",
	}, nil
}

func invoiceTaxSum(inv *models.InvoiceRecord) (outcome, error) {
	actual, err := required(inv.TotalTax, models.FieldTotalTax)
	if err != nil {
		return outcome{}, err
	}
	sum := decimal.Zero
	for i, item := range inv.LineItems {
		for _, f := range taxAmountFields {
			if a := lineItemField(item, f); a.Present() {
				if _, err := required(a, fmt.Sprintf("line %d %s", i+1, f)); err != nil {
					return outcome{}, err
				}
			}
		}
		sum = sum.Add(lineTax(item))
	}
	return outcome{
		expected: sum,
		actual:   actual,
		lhs:      fmt.Sprintf("Sum of line taxes(%s)", money(sum)),
		rhs:      "Invoice tax",
	}, nil
}

func invoiceGrandTotal(inv *models.InvoiceRecord) (outcome, error) {
	taxable, err := required(inv.TaxableValue, models.FieldTaxableValue)
	if err != nil {
		return outcome{}, err
	}
	tax, err := required(inv.TotalTax, models.FieldTotalTax)
	if err != nil {
		return outcome{}, err
	}
	total, err := required(inv.TotalValue, models.FieldTotalValue)
	if err != nil {
		return outcome{}, err
	}

	expected := taxable.Add(tax)
	return outcome{
		expected: expected,
		actual:   total,
		lhs:      fmt.Sprintf("Taxable(%s) + Tax(%s) = %s", money(taxable), money(tax), money(expected)),
		rhs:      "Total",
	}, nil
}
