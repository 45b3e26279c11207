package models

import (
	"strings"
	"time"
)

// InvoiceRecord is one parsed invoice as delivered by the extraction service.
// The engine only reads it.
type InvoiceRecord struct {
	ID            string     `json:"id"`
	InvoiceNumber string     `json:"invoice_number"`
	SupplierName  string     `json:"supplier_name"`
	SupplierTaxID string     `json:"supplier_tax_id,omitempty"` // GSTIN
	InvoiceDate   Date       `json:"invoice_date"`
	Currency      string     `json:"currency,omitempty"`
	TaxableValue  Amount     `json:"taxable_value"`
	TotalTax      Amount     `json:"total_tax"`
	TotalValue    Amount     `json:"total_value"` // grand total
	LineItems     []LineItem `json:"line_items"`
	Status        string     `json:"status,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// LineItem is one row of an invoice. Rates are percentages (9 means 9%).
type LineItem struct {
	Description  string `json:"description"`
	HSNCode      string `json:"hsn_code,omitempty"` // classification code
	Quantity     Amount `json:"quantity"`
	UnitPrice    Amount `json:"unit_price"`
	TaxableValue Amount `json:"taxable_value"`
	GSTRate      Amount `json:"gst_rate"`
	GSTAmount    Amount `json:"gst_amount"`
	SGSTRate     Amount `json:"sgst_rate"`
	SGSTAmount   Amount `json:"sgst_amount"`
	CGSTRate     Amount `json:"cgst_rate"`
	CGSTAmount   Amount `json:"cgst_amount"`
	IGSTRate     Amount `json:"igst_rate"`
	IGSTAmount   Amount `json:"igst_amount"`
	TotalAmount  Amount `json:"total_amount"` // line total including tax
}

// Line item field names as used by validation rule definitions
const (
	FieldQuantity     = "quantity"
	FieldUnitPrice    = "unit_price"
	FieldTaxableValue = "taxable_value"
	FieldGSTRate      = "gst_rate"
	FieldGSTAmount    = "gst_amount"
	FieldSGSTRate     = "sgst_rate"
	FieldSGSTAmount   = "sgst_amount"
	FieldCGSTRate     = "cgst_rate"
	FieldCGSTAmount   = "cgst_amount"
	FieldIGSTRate     = "igst_rate"
	FieldIGSTAmount   = "igst_amount"
	FieldTotalAmount  = "total_amount"

	FieldTotalTax   = "total_tax"
	FieldTotalValue = "total_value"
)

// Field looks up a line item amount by name. ok is false for unknown names.
func (l LineItem) Field(name string) (Amount, bool) {
	switch name {
	case FieldQuantity:
		return l.Quantity, true
	case FieldUnitPrice:
		return l.UnitPrice, true
	case FieldTaxableValue:
		return l.TaxableValue, true
	case FieldGSTRate:
		return l.GSTRate, true
	case FieldGSTAmount:
		return l.GSTAmount, true
	case FieldSGSTRate:
		return l.SGSTRate, true
	case FieldSGSTAmount:
		return l.SGSTAmount, true
	case FieldCGSTRate:
		return l.CGSTRate, true
	case FieldCGSTAmount:
		return l.CGSTAmount, true
	case FieldIGSTRate:
		return l.IGSTRate, true
	case FieldIGSTAmount:
		return l.IGSTAmount, true
	case FieldTotalAmount:
		return l.TotalAmount, true
	}
	return Amount{}, false
}

// Field looks up an invoice-level amount by name
func (inv *InvoiceRecord) Field(name string) (Amount, bool) {
	switch name {
	case FieldTaxableValue:
		return inv.TaxableValue, true
	case FieldTotalTax:
		return inv.TotalTax, true
	case FieldTotalValue:
		return inv.TotalValue, true
	}
	return Amount{}, false
}

// HSNCodes returns the non-empty classification codes of all lines
func (inv *InvoiceRecord) HSNCodes() []string {
	codes := make([]string, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		if code := strings.TrimSpace(item.HSNCode); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// UnitRates returns the numeric unit prices in line order
func (inv *InvoiceRecord) UnitRates() []float64 {
	rates := make([]float64, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		if item.UnitPrice.Numeric() {
			rates = append(rates, item.UnitPrice.Float64())
		}
	}
	return rates
}
