package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/config"
	"github.com/facturaIA/invoice-integrity-service/internal/logging"
)

// Querier is the subset of *pgxpool.Pool the repositories use
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the global database connection pool
var Pool *pgxpool.Pool

// Init initializes the database connection pool
func Init(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*pgxpool.Pool, error) {
	if !cfg.Enabled() {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "no database configuration")
	}

	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "failed to parse database URL")
	}

	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = cfg.MinConns
	pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	pcfg.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "failed to create connection pool")
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "failed to ping database")
	}

	Pool = pool
	logger.Info("database connection pool initialized",
		logging.Int("max_conns", int(cfg.MaxConns)),
		logging.Int("min_conns", int(cfg.MinConns)))
	return pool, nil
}

// Close closes the database connection pool
func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}

// Ping reports whether the global pool answers
func Ping(ctx context.Context) error {
	if Pool == nil {
		return apperrors.New(apperrors.CodeUnavailable, "database not configured")
	}
	return Pool.Ping(ctx)
}
