// Package postgres implements the catalog repositories on PostgreSQL via pgx.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmarkhas/catalog-api/db"
	"github.com/dmarkhas/catalog-api/internal/domain/catalog"
	"github.com/dmarkhas/catalog-api/internal/domain/product"
)

// uniqueViolation is the PostgreSQL error code for UNIQUE constraint breaks.
const uniqueViolation = "23505"

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// querier is the subset of pgx operations the repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same repository code serves
// autocommit reads and transactional writes.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ catalog.Storage = (*Store)(nil)

// Store bundles the catalog repositories over one pool and hands out
// transaction-scoped variants of itself through WithinTx.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// NewStore returns a Store whose repositories run in autocommit mode.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Products returns the product repository bound to the store's scope.
func (s *Store) Products() product.Repository {
	return &ProductRepository{db: s.db}
}

// Images returns the image repository bound to the store's scope.
func (s *Store) Images() product.ImageRepository {
	return &ImageRepository{db: s.db}
}

// Categories returns the category lookup bound to the store's scope.
func (s *Store) Categories() catalog.CategoryLookup {
	return &CategoryRepository{db: s.db}
}

// CategoryStore returns the full category repository bound to the store's
// scope. Category CRUD runs outside the product write path.
func (s *Store) CategoryStore() *CategoryRepository {
	return &CategoryRepository{db: s.db}
}

// WithinTx starts a transaction, runs fn against a transaction-bound Store,
// and commits when fn returns nil. Any error rolls the transaction back; the
// deferred rollback also releases the transaction on panic.
func (s *Store) WithinTx(ctx context.Context, fn func(r catalog.Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
