package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
	"github.com/facturaIA/invoice-integrity-service/internal/similarity"
)

func candidateRow(rows *pgxmock.Rows, id, supplier, total string, day int) *pgxmock.Rows {
	created := time.Date(2024, 3, day, 9, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, "N-"+id, supplier, "",
		timep(time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)), "INR",
		nil, nil, strp(total),
		[]byte(`[]`), "processed", created,
	)
}

func TestCandidateRepository_PushesFiltersIntoSQL(t *testing.T) {
	mock := newMock(t)
	repo := NewCandidateRepository(mock, similarity.DefaultWeights())

	current := &models.InvoiceRecord{
		ID:           "cur",
		SupplierName: "Acme Corp",
		InvoiceDate:  models.NewDate(2024, 3, 20),
		TotalValue:   models.NewAmount(1000),
	}

	rows := pgxmock.NewRows(invoiceCols)
	candidateRow(rows, "a", "ACME CORP", "1000.00", 18)
	candidateRow(rows, "b", "Zenith Traders", "1000.00", 17)
	candidateRow(rows, "c", "Acme Corp", "990.00", 10)

	mock.ExpectQuery(`WHERE id::text <> \$1`).
		WithArgs("cur", "800", "1200", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	got, err := repo.RetrieveCandidates(context.Background(), current, duplication.DefaultFilters())
	require.NoError(t, err)

	require.Len(t, got, 2, "dissimilar supplier is dropped after the SQL prefilter")
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.Equal(t, 990.0, got[1].TotalValue.Float64())
}

func TestCandidateRepository_SkipsBoundsWithoutData(t *testing.T) {
	mock := newMock(t)
	repo := NewCandidateRepository(mock, similarity.DefaultWeights())

	current := &models.InvoiceRecord{ID: "cur", SupplierName: "Acme Corp"}

	mock.ExpectQuery(`SELECT`).
		WithArgs("cur", nil, nil, nil, nil).
		WillReturnRows(pgxmock.NewRows(invoiceCols))

	got, err := repo.RetrieveCandidates(context.Background(), current, duplication.DefaultFilters())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandidateRepository_Limit(t *testing.T) {
	mock := newMock(t)
	repo := NewCandidateRepository(mock, similarity.DefaultWeights())

	current := &models.InvoiceRecord{ID: "cur", SupplierName: "Acme Corp", TotalValue: models.NewAmount(1000)}

	rows := pgxmock.NewRows(invoiceCols)
	for _, id := range []string{"a", "b", "c"} {
		candidateRow(rows, id, "Acme Corp", "1000", 5)
	}
	mock.ExpectQuery(`SELECT`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	f := duplication.DefaultFilters()
	f.Limit = 2
	got, err := repo.RetrieveCandidates(context.Background(), current, f)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCandidateRepository_QueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewCandidateRepository(mock, similarity.DefaultWeights())

	mock.ExpectQuery(`SELECT`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("too many connections"))

	_, err := repo.RetrieveCandidates(context.Background(), &models.InvoiceRecord{ID: "cur"}, duplication.DefaultFilters())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeRetrievalFailed))
	assert.ErrorContains(t, err, "too many connections")
}
