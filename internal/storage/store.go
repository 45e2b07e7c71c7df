// Package storage implements narrata's pgx-backed persistence for every
// table this package owns: narrative executions and their acts/inputs,
// recurring-task state and execution history, and the content-generation
// actor's destination tables (tracking metadata plus dynamic schema
// creation and row insertion).
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrata/internal/observability"
)

// Store wraps a pgx connection pool. Every exported method except Query
// acquires a connection (or transaction) from the pool and releases it
// before returning, the same acquire/defer-release shape used around
// cfg.DBPool.Acquire; Query's connection stays held until the caller
// closes the returned rows.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and runs the schema migration. The caller owns
// the returned Store's lifetime and must call Close.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Query runs a read-only SQL query against the same pool every other Store
// method uses. internal/resolve's table-reference inputs call this to
// satisfy a small consumer-defined querier interface, the same shape the
// teacher's ad-hoc SQL endpoint used around pgx.Rows.
func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) logQueryWarning(ctx context.Context, op string, err error) {
	observability.LoggerWithTrace(ctx).Warn().Err(err).Str("op", op).Msg("non-fatal query failure")
}
