package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"condoledger/pkg/config"
)

// ErrSerializationFailure is returned when a serializable transaction kept
// conflicting with concurrent writers after all retry attempts. Callers should
// re-attempt the whole operation from a fresh read.
var ErrSerializationFailure = errors.New("transaction conflicted with a concurrent update, retry")

const serializableAttempts = 3

func Open(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	connString := runtimeConnString(cfg)

	pcfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	// PgBouncer-style poolers do not support prepared statements.
	if strings.Contains(strings.ToLower(connString), "pgbouncer=true") {
		pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
		pcfg.ConnConfig.StatementCacheCapacity = 0
		pcfg.ConnConfig.DescriptionCacheCapacity = 0
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return runTx(ctx, pool, pgx.TxOptions{}, fn)
}

// WithSerializableTx runs fn inside a SERIALIZABLE transaction and retries a
// bounded number of times on serialization/deadlock failures (SQLSTATE 40001,
// 40P01). Allocation and cancellation flows must go through this: either the
// whole write set commits or none of it does.
func WithSerializableTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return withSerializableRetry(func() error {
		return runTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
	})
}

// withSerializableRetry re-runs attempt while it keeps failing with a
// serialization or deadlock SQLSTATE, up to serializableAttempts.
func withSerializableRetry(attempt func() error) error {
	for i := 0; i < serializableAttempts; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if !retryableTxError(err) {
			return err
		}
	}
	return ErrSerializationFailure
}

func retryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func runTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func runtimeConnString(cfg config.Config) string {
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return cfg.DatabaseURL
	}
	return dsn(cfg.DB)
}

func dsn(cfg config.DBConfig) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, sslmode,
	)
}
