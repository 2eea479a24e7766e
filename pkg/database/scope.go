package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the application's connection pool. Request and job code reaches it
// through WithScope and RunInTx rather than the embedded pool.
type DB struct {
	*pgxpool.Pool
}

// Close closes the pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// ErrNoScope is returned by repositories called without a database scope in context.
var ErrNoScope = errors.New("no database scope in context")

// Querier is the subset of pgx shared by pools, pooled connections and
// transactions. Repositories only depend on this.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

type contextKey string

const querierKey contextKey = "dbQuerier"

// WithQuerier stores q in the context for repositories to use.
func WithQuerier(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, querierKey, q)
}

// QuerierFrom returns the querier stored in ctx.
func QuerierFrom(ctx context.Context) (Querier, bool) {
	q, ok := ctx.Value(querierKey).(Querier)
	return q, ok
}

// MustQuerier returns the querier stored in ctx or ErrNoScope.
func MustQuerier(ctx context.Context) (Querier, error) {
	q, ok := QuerierFrom(ctx)
	if !ok || q == nil {
		return nil, ErrNoScope
	}
	return q, nil
}

// WithScope acquires a pooled connection and stores it in the returned
// context. The cleanup function must be called to release the connection.
func (db *DB) WithScope(ctx context.Context) (context.Context, func(), error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return WithQuerier(ctx, conn), conn.Release, nil
}

// RunInTx runs fn inside a transaction. The transaction is started on the
// querier already in ctx (nesting becomes a savepoint) or on the pool, and
// is visible to repositories through the context passed to fn. It commits
// when fn returns nil and rolls back otherwise.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var starter Querier = db.Pool
	if q, ok := QuerierFrom(ctx); ok && q != nil {
		starter = q
	}

	tx, err := starter.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(WithQuerier(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
