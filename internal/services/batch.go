package services

import (
	"context"
	"math"

	"github.com/facturaIA/invoice-integrity-service/internal/logging"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// InvoiceSource reads stored invoices
type InvoiceSource interface {
	ListInvoiceIDs(ctx context.Context) ([]string, error)
	GetInvoice(ctx context.Context, id string) (*models.InvoiceRecord, error)
}

// ValidationFlagStore persists the outcome of a validation run
type ValidationFlagStore interface {
	SetValidationFlag(ctx context.Context, id string, passed bool) error
}

// BatchValidator validates every stored invoice and records the flags
type BatchValidator struct {
	validator *ArithmeticValidator
	source    InvoiceSource
	flags     ValidationFlagStore
	logger    logging.Logger
}

// NewBatchValidator wires a validator to storage. flags may be nil.
func NewBatchValidator(v *ArithmeticValidator, source InvoiceSource, flags ValidationFlagStore, logger logging.Logger) *BatchValidator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &BatchValidator{validator: v, source: source, flags: flags, logger: logger.Named("batch")}
}

// ValidateOne loads, validates and flags a single stored invoice
func (b *BatchValidator) ValidateOne(ctx context.Context, id string) (*models.ValidationReport, error) {
	inv, err := b.source.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	report := b.validator.Validate(inv)
	if b.flags != nil {
		if err := b.flags.SetValidationFlag(ctx, id, report.OverallPassed); err != nil {
			b.logger.Warn("failed to store validation flag", logging.String("invoice_id", id), logging.Err(err))
		}
	}
	return report, nil
}

// ValidateAll runs ValidateOne over every stored invoice. A load failure for
// one invoice is recorded and does not stop the batch.
func (b *BatchValidator) ValidateAll(ctx context.Context) (*models.BatchValidationResult, error) {
	ids, err := b.source.ListInvoiceIDs(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.BatchValidationResult{
		TotalInvoices: len(ids),
		Reports:       make([]*models.ValidationReport, 0, len(ids)),
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report, err := b.ValidateOne(ctx, id)
		if err != nil {
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Errors[id] = err.Error()
			result.Errored++
			continue
		}
		result.Reports = append(result.Reports, report)
		if report.OverallPassed {
			result.PassedValidation++
		} else {
			result.FailedValidation++
		}
	}

	if result.TotalInvoices > 0 {
		rate := float64(result.PassedValidation) / float64(result.TotalInvoices) * 100
		result.SuccessRate = math.Round(rate*100) / 100
	}

	b.logger.Info("batch validation complete",
		logging.Int("total", result.TotalInvoices),
		logging.Int("passed", result.PassedValidation),
		logging.Int("failed", result.FailedValidation),
		logging.Int("errored", result.Errored),
		logging.Float64("success_rate", result.SuccessRate),
	)
	return result, nil
}
