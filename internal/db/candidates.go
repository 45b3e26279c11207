package db

import (
	"context"
	"fmt"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
	"github.com/facturaIA/invoice-integrity-service/internal/similarity"
)

// CandidateRepository retrieves duplicate candidates from Postgres. The amount
// band and date window are pushed into SQL; supplier similarity has no index
// and is checked in Go on the narrowed rows.
type CandidateRepository struct {
	q       Querier
	weights similarity.Weights
}

func NewCandidateRepository(q Querier, w similarity.Weights) *CandidateRepository {
	return &CandidateRepository{q: q, weights: w}
}

func (r *CandidateRepository) RetrieveCandidates(ctx context.Context, inv *models.InvoiceRecord, f duplication.Filters) ([]models.InvoiceRecord, error) {
	table, err := invoiceTable(ctx)
	if err != nil {
		return nil, err
	}

	var lo, hi, from, to any
	if l, h, ok := f.AmountBounds(inv); ok {
		lo, hi = l.String(), h.String()
	}
	if !inv.InvoiceDate.IsZero() {
		from = inv.InvoiceDate.AddDate(0, 0, -f.DateWindowDays)
		to = inv.InvoiceDate.AddDate(0, 0, f.DateWindowDays)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id::text <> $1
		  AND ($2::numeric IS NULL OR total_value BETWEEN $2::numeric AND $3::numeric)
		  AND ($4::date IS NULL OR invoice_date BETWEEN $4::date AND $5::date)
		ORDER BY invoice_date DESC NULLS LAST, id
	`, invoiceColumns, table)

	rows, err := r.q.Query(ctx, query, inv.ID, lo, hi, from, to)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRetrievalFailed, "candidate query failed")
	}
	defer rows.Close()

	var out []models.InvoiceRecord
	for rows.Next() {
		cand, err := scanInvoice(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeRetrievalFailed, "failed to read candidate")
		}
		if !f.Accept(inv, cand, r.weights) {
			continue
		}
		out = append(out, *cand)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRetrievalFailed, "candidate query failed")
	}
	return out, nil
}
