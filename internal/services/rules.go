package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

type catalogFile struct {
	Tests []models.ValidationTest `yaml:"tests"`
}

var lineFields = map[string]bool{
	models.FieldQuantity:     true,
	models.FieldUnitPrice:    true,
	models.FieldTaxableValue: true,
	models.FieldGSTRate:      true,
	models.FieldGSTAmount:    true,
	models.FieldSGSTRate:     true,
	models.FieldSGSTAmount:   true,
	models.FieldCGSTRate:     true,
	models.FieldCGSTAmount:   true,
	models.FieldIGSTRate:     true,
	models.FieldIGSTAmount:   true,
	models.FieldTotalAmount:  true,
	fieldTaxAmount:           true,
}

var invoiceFields = map[string]bool{
	models.FieldTaxableValue: true,
	models.FieldTotalTax:     true,
	models.FieldTotalValue:   true,
}

// DefaultCatalog returns the built-in test definitions
func DefaultCatalog() ([]models.ValidationTest, error) {
	return ParseCatalog(defaultRulesYAML)
}

// LoadCatalog reads test definitions from path, or the built-in set when path
// is empty
func LoadCatalog(path string) ([]models.ValidationTest, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "failed to read rule catalog").
			WithDetail(path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) ([]models.ValidationTest, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "failed to parse rule catalog")
	}
	if len(file.Tests) == 0 {
		return nil, apperrors.ConfigInvalid("rule catalog has no tests")
	}

	seen := make(map[string]bool, len(file.Tests))
	for _, t := range file.Tests {
		if seen[t.ID] {
			return nil, apperrors.ConfigInvalid("duplicate test id").WithDetail(t.ID)
		}
		seen[t.ID] = true
		if err := validateTest(t); err != nil {
			return nil, err
		}
	}
	return file.Tests, nil
}

// WithTolerance returns a copy of tests with every tolerance set to tol
func WithTolerance(tests []models.ValidationTest, tol float64) ([]models.ValidationTest, error) {
	if tol <= 0 {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "tolerance must be positive, got %v", tol)
	}
	out := make([]models.ValidationTest, len(tests))
	copy(out, tests)
	for i := range out {
		out[i].Tolerance = tol
	}
	return out, nil
}

func validateTest(t models.ValidationTest) error {
	switch t.Scope {
	case models.ScopeLine:
		if _, ok := lineRules[t.ID]; !ok {
			return apperrors.ConfigInvalid("unknown line test").WithDetail(t.ID)
		}
	case models.ScopeInvoice:
		if _, ok := invoiceRules[t.ID]; !ok {
			return apperrors.ConfigInvalid("unknown invoice test").WithDetail(t.ID)
		}
	default:
		return apperrors.ConfigInvalid("invalid scope").WithDetail(fmt.Sprintf("%s: %q", t.ID, t.Scope))
	}

	if t.Tolerance <= 0 {
		return apperrors.ConfigInvalid("tolerance must be positive").WithDetail(t.ID)
	}
	if len(t.Required) == 0 {
		return apperrors.ConfigInvalid("test has no required fields").WithDetail(t.ID)
	}
	for _, group := range t.Required {
		if len(group) == 0 {
			return apperrors.ConfigInvalid("empty required field group").WithDetail(t.ID)
		}
		for _, f := range group {
			if !knownField(t.Scope, f) {
				return apperrors.ConfigInvalid("unknown field").WithDetail(fmt.Sprintf("%s: %s", t.ID, f))
			}
		}
	}
	return nil
}

func knownField(scope models.TestScope, f string) bool {
	if scope == models.ScopeLine {
		return lineFields[f]
	}
	if strings.HasPrefix(f, lineFieldPrefix) {
		return lineFields[strings.TrimPrefix(f, lineFieldPrefix)]
	}
	return invoiceFields[f]
}
