// Package postgres implements the shortener repositories on PostgreSQL using
// pgx for access and squirrel for query building.
package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sundayezeilo/linkusage/internal/shorten"
	"github.com/sundayezeilo/linkusage/internal/shortener"
)

// MaxShortenAttempts bounds retries when the provider returns a short URL that
// already belongs to another mapping.
const MaxShortenAttempts = 3

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, pc PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if pc.MaxConns > 0 {
		poolConfig.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		poolConfig.MinConns = pc.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Store exposes both repositories over one pool.
type Store struct {
	pool     *pgxpool.Pool
	provider shorten.Provider
	sb       sq.StatementBuilderType
}

func New(pool *pgxpool.Pool, provider shorten.Provider) *Store {
	return &Store{
		pool:     pool,
		provider: provider,
		sb:       sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *Store) Mappings() shortener.MappingRepository { return (*mappingRepo)(s) }
func (s *Store) Usages() shortener.UsageRepository     { return (*usageRepo)(s) }

func (s *Store) Ping(ctx context.Context) error {
	const op = "postgres.Ping"
	if err := s.pool.Ping(ctx); err != nil {
		return mapRepoError(op, err)
	}
	return nil
}

func (s *Store) Close() { s.pool.Close() }

// queryRower is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
