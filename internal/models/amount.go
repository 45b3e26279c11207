package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotNumeric is returned when a present field cannot be read as a number
var ErrNotNumeric = errors.New("value is not numeric")

// Amount is a numeric field as it came out of extraction. The zero value is
// an absent field; a present field may still be non-numeric ("N/A", "12,3x").
type Amount struct {
	value   decimal.Decimal
	raw     string
	present bool
	numeric bool
}

var amountCleaner = strings.NewReplacer(
	",", "",
	"₹", "",
	"$", "",
	"Rs.", "",
	"INR", "",
	"%", "",
	" ", "",
)

// NewAmount creates a present numeric amount
func NewAmount(v float64) Amount {
	return Amount{value: decimal.NewFromFloat(v), present: true, numeric: true}
}

// AmountOf wraps a decimal as a present numeric amount
func AmountOf(d decimal.Decimal) Amount {
	return Amount{value: d, present: true, numeric: true}
}

// AmountFromPtr maps a nullable column to an Amount
func AmountFromPtr(v *float64) Amount {
	if v == nil {
		return Amount{}
	}
	return NewAmount(*v)
}

// ParseAmount reads extractor text. Thousands separators, currency markers and
// a trailing percent sign are ignored. Blank text is an absent field.
func ParseAmount(s string) Amount {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Amount{}
	}
	d, err := decimal.NewFromString(amountCleaner.Replace(raw))
	if err != nil {
		return Amount{raw: raw, present: true}
	}
	return Amount{value: d, raw: raw, present: true, numeric: true}
}

// Present reports whether the field was extracted at all
func (a Amount) Present() bool { return a.present }

// Numeric reports whether the field is present and parses as a number
func (a Amount) Numeric() bool { return a.present && a.numeric }

// Raw returns the extracted text, or the decimal form for numeric amounts
// built in code
func (a Amount) Raw() string {
	if a.raw != "" {
		return a.raw
	}
	if a.numeric {
		return a.value.String()
	}
	return ""
}

// Decimal returns the numeric value. Absent and non-numeric fields return
// ErrNotNumeric.
func (a Amount) Decimal() (decimal.Decimal, error) {
	if !a.Numeric() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, a.raw)
	}
	return a.value, nil
}

// Float64 returns the value, or 0 when the field is absent or non-numeric
func (a Amount) Float64() float64 {
	if !a.Numeric() {
		return 0
	}
	return a.value.InexactFloat64()
}

// Ptr is the inverse of AmountFromPtr for writing nullable columns
func (a Amount) Ptr() *float64 {
	if !a.Numeric() {
		return nil
	}
	f := a.value.InexactFloat64()
	return &f
}

func (a Amount) String() string {
	switch {
	case !a.present:
		return "<missing>"
	case !a.numeric:
		return fmt.Sprintf("%q", a.raw)
	default:
		return a.value.String()
	}
}

// MarshalJSON writes null for absent fields, the raw string for non-numeric
// ones and a JSON number otherwise
func (a Amount) MarshalJSON() ([]byte, error) {
	switch {
	case !a.present:
		return []byte("null"), nil
	case !a.numeric:
		return json.Marshal(a.raw)
	default:
		return []byte(a.value.String()), nil
	}
}

// UnmarshalJSON accepts numbers, numeric strings and null
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*a = Amount{}
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*a = ParseAmount(str)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("amount %s: %w", s, err)
	}
	*a = Amount{value: d, present: true, numeric: true}
	return nil
}
