package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/facturaIA/invoice-integrity-service/internal/db"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

type countingRetriever struct {
	calls      int
	candidates []models.InvoiceRecord
	err        error
}

func (r *countingRetriever) RetrieveCandidates(context.Context, *models.InvoiceRecord, duplication.Filters) ([]models.InvoiceRecord, error) {
	r.calls++
	return r.candidates, r.err
}

type CachedRetrieverSuite struct {
	suite.Suite
	mock    redismock.ClientMock
	next    *countingRetriever
	cache   *CachedRetriever
	current *models.InvoiceRecord
	filters duplication.Filters
}

func (s *CachedRetrieverSuite) SetupTest() {
	rdb, mock := redismock.NewClientMock()
	s.mock = mock
	s.next = &countingRetriever{candidates: []models.InvoiceRecord{
		{ID: "old-1", InvoiceNumber: "INV-7", SupplierName: "Acme Corp", TotalValue: models.NewAmount(1000)},
	}}
	s.cache = NewCachedRetriever(s.next, rdb, WithPrefix("test:"), WithTTL(time.Minute))
	s.current = &models.InvoiceRecord{
		ID:           "cur",
		SupplierName: "Acme Corp",
		InvoiceDate:  models.NewDate(2024, 3, 15),
		TotalValue:   models.NewAmount(1000),
	}
	s.filters = duplication.DefaultFilters()
}

func (s *CachedRetrieverSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *CachedRetrieverSuite) payload() []byte {
	b, err := json.Marshal(s.next.candidates)
	require.NoError(s.T(), err)
	return b
}

func (s *CachedRetrieverSuite) TestMissFillsCache() {
	key := s.cache.Key(context.Background(), s.current, s.filters)
	s.mock.ExpectGet(key).RedisNil()
	s.mock.ExpectSet(key, s.payload(), time.Minute).SetVal("OK")

	got, err := s.cache.RetrieveCandidates(context.Background(), s.current, s.filters)

	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal(1, s.next.calls)
}

func (s *CachedRetrieverSuite) TestHitSkipsRetriever() {
	key := s.cache.Key(context.Background(), s.current, s.filters)
	s.mock.ExpectGet(key).SetVal(string(s.payload()))

	got, err := s.cache.RetrieveCandidates(context.Background(), s.current, s.filters)

	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("old-1", got[0].ID)
	s.Equal(1000.0, got[0].TotalValue.Float64())
	s.Equal(0, s.next.calls)
}

func (s *CachedRetrieverSuite) TestRedisDownFallsThrough() {
	key := s.cache.Key(context.Background(), s.current, s.filters)
	s.mock.ExpectGet(key).SetErr(errors.New("dial tcp: connection refused"))

	got, err := s.cache.RetrieveCandidates(context.Background(), s.current, s.filters)

	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal(1, s.next.calls)
}

func (s *CachedRetrieverSuite) TestRetrieverErrorIsReturned() {
	key := s.cache.Key(context.Background(), s.current, s.filters)
	s.mock.ExpectGet(key).RedisNil()
	s.next.err = errors.New("query timeout")

	_, err := s.cache.RetrieveCandidates(context.Background(), s.current, s.filters)
	s.EqualError(err, "query timeout")
}

func (s *CachedRetrieverSuite) TestCorruptEntryIsReplaced() {
	key := s.cache.Key(context.Background(), s.current, s.filters)
	s.mock.ExpectGet(key).SetVal("{not json")
	s.mock.ExpectSet(key, s.payload(), time.Minute).SetVal("OK")

	got, err := s.cache.RetrieveCandidates(context.Background(), s.current, s.filters)

	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal(1, s.next.calls)
}

func (s *CachedRetrieverSuite) TestKeyVariesWithInputs() {
	ctx := context.Background()
	base := s.cache.Key(ctx, s.current, s.filters)

	s.Equal(base, s.cache.Key(ctx, s.current, s.filters))
	s.Contains(base, "test:")

	other := *s.current
	other.TotalValue = models.NewAmount(1001)
	s.NotEqual(base, s.cache.Key(ctx, &other, s.filters))

	wider := s.filters
	wider.DateWindowDays = 180
	s.NotEqual(base, s.cache.Key(ctx, s.current, wider))

	s.NotEqual(base, s.cache.Key(db.ContextWithTenant(ctx, "acme"), s.current, s.filters))
}

func TestCachedRetrieverSuite(t *testing.T) {
	suite.Run(t, new(CachedRetrieverSuite))
}
