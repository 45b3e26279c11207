// Package cache keeps recently retrieved duplicate candidates in Redis so
// repeated analysis of the same invoice skips the database.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/config"
	"github.com/facturaIA/invoice-integrity-service/internal/db"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/logging"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "redis ping failed")
	}
	return rdb, nil
}

// CachedRetriever wraps a CandidateRetriever with a read-through Redis cache.
// Cache failures are logged and never fail the retrieval.
type CachedRetriever struct {
	next   duplication.CandidateRetriever
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger logging.Logger
}

type Option func(*CachedRetriever)

func WithPrefix(prefix string) Option {
	return func(c *CachedRetriever) { c.prefix = prefix }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *CachedRetriever) { c.ttl = ttl }
}

func WithLogger(l logging.Logger) Option {
	return func(c *CachedRetriever) { c.logger = l }
}

func NewCachedRetriever(next duplication.CandidateRetriever, rdb redis.Cmdable, opts ...Option) *CachedRetriever {
	c := &CachedRetriever{
		next:   next,
		rdb:    rdb,
		ttl:    5 * time.Minute,
		prefix: "invoice:candidates:",
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the cache key for a retrieval. Every input that changes the
// candidate set is part of the key.
func (c *CachedRetriever) Key(ctx context.Context, inv *models.InvoiceRecord, f duplication.Filters) string {
	material := fmt.Sprintf("%s|%s|%s|%s|%s|%v",
		db.TenantFromContext(ctx),
		inv.ID,
		duplication.SupplierKey(inv.SupplierName),
		inv.TotalValue.Raw(),
		inv.InvoiceDate.String(),
		f,
	)
	sum := sha256.Sum256([]byte(material))
	return c.prefix + hex.EncodeToString(sum[:16])
}

func (c *CachedRetriever) RetrieveCandidates(ctx context.Context, inv *models.InvoiceRecord, f duplication.Filters) ([]models.InvoiceRecord, error) {
	key := c.Key(ctx, inv, f)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []models.InvoiceRecord
		if uerr := json.Unmarshal(data, &cached); uerr == nil {
			return cached, nil
		}
		c.logger.Warn("discarding corrupt candidate cache entry", logging.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("candidate cache unavailable", logging.Err(err))
	}

	candidates, rerr := c.next.RetrieveCandidates(ctx, inv, f)
	if rerr != nil {
		return nil, rerr
	}

	// skip the write when the read already showed redis is down
	if err != nil && !errors.Is(err, redis.Nil) {
		return candidates, nil
	}

	payload, merr := json.Marshal(candidates)
	if merr != nil {
		return candidates, nil
	}
	if serr := c.rdb.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
		c.logger.Warn("failed to store candidates", logging.String("key", key), logging.Err(serr))
	}
	return candidates, nil
}
