package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// invoiceColumns is shared by every query that loads a full record.
// Amounts come back as text so the decimal value is never rounded through float64.
const invoiceColumns = `id::text, COALESCE(invoice_number, ''), COALESCE(supplier_name, ''),
		       COALESCE(supplier_tax_id, ''), invoice_date, COALESCE(currency, ''),
		       taxable_value::text, total_tax::text, total_value::text,
		       COALESCE(line_items, '[]'::jsonb), COALESCE(status, ''), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*models.InvoiceRecord, error) {
	var (
		inv                 models.InvoiceRecord
		date                *time.Time
		taxable, tax, total *string
		lines               []byte
		createdAt           time.Time
	)
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.SupplierName,
		&inv.SupplierTaxID, &date, &inv.Currency,
		&taxable, &tax, &total,
		&lines, &inv.Status, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if date != nil {
		inv.InvoiceDate = models.DateOf(*date)
	}
	inv.TaxableValue = amountFromText(taxable)
	inv.TotalTax = amountFromText(tax)
	inv.TotalValue = amountFromText(total)
	inv.CreatedAt = &createdAt

	if err := json.Unmarshal(lines, &inv.LineItems); err != nil {
		return nil, fmt.Errorf("invoice %s: decode line_items: %w", inv.ID, err)
	}
	return &inv, nil
}

func amountFromText(s *string) models.Amount {
	if s == nil {
		return models.Amount{}
	}
	return models.ParseAmount(*s)
}

// InvoiceRepository reads stored invoices and writes their integrity flags.
// The schema is chosen per call from the tenant in the context.
type InvoiceRepository struct {
	q Querier
}

func NewInvoiceRepository(q Querier) *InvoiceRepository {
	return &InvoiceRepository{q: q}
}

// GetInvoice retrieves a single invoice by ID
func (r *InvoiceRepository) GetInvoice(ctx context.Context, id string) (*models.InvoiceRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.InvalidInput("invoice id must be a UUID")
	}
	table, err := invoiceTable(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1
	`, invoiceColumns, table)

	inv, err := scanInvoice(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("invoice " + id + " not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to load invoice")
	}
	return inv, nil
}

// ListInvoiceIDs returns every invoice id, oldest first
func (r *InvoiceRepository) ListInvoiceIDs(ctx context.Context) ([]string, error) {
	table, err := invoiceTable(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.Query(ctx, fmt.Sprintf(`SELECT id::text FROM %s ORDER BY created_at, id`, table))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to list invoices")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to list invoices")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to list invoices")
	}
	return ids, nil
}

// SetValidationFlag records whether the invoice passed arithmetic validation
func (r *InvoiceRepository) SetValidationFlag(ctx context.Context, id string, passed bool) error {
	return r.setFlag(ctx, "validation", id, passed)
}

// SetDuplicationFlag records whether the invoice was judged a duplicate
func (r *InvoiceRepository) SetDuplicationFlag(ctx context.Context, id string, duplicate bool) error {
	return r.setFlag(ctx, "duplication", id, duplicate)
}

func (r *InvoiceRepository) setFlag(ctx context.Context, column, id string, value bool) error {
	table, err := invoiceTable(ctx)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET %s = $1, updated_at = $2 WHERE id = $3", table, column)
	tag, err := r.q.Exec(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to update "+column+" flag")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("invoice " + id + " not found")
	}
	return nil
}

// ValidationSummary counts invoices by flag state
func (r *InvoiceRepository) ValidationSummary(ctx context.Context) (*models.ValidationSummary, error) {
	table, err := invoiceTable(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT count(*),
		       count(*) FILTER (WHERE validation IS TRUE),
		       count(*) FILTER (WHERE validation IS FALSE),
		       count(*) FILTER (WHERE validation IS NULL),
		       count(*) FILTER (WHERE duplication IS TRUE)
		FROM %s
	`, table)

	var s models.ValidationSummary
	err = r.q.QueryRow(ctx, query).Scan(
		&s.TotalInvoices, &s.Validated, &s.FailedValidation, &s.NotValidated, &s.FlaggedDuplicates,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to summarise validation flags")
	}
	return &s, nil
}
