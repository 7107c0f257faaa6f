package tx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a database transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a database transaction from context if present.
func From(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// Runner executes a function inside a single unit of atomicity. Every mutating
// service operation runs through a Runner so readers never observe a partial
// write.
type Runner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PgxRunner begins a database transaction, stores it in context for the
// stores, and commits or rolls back around fn.
type PgxRunner struct {
	Pool *pgxpool.Pool
}

func (r *PgxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	dbtx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// Safe after commit; pgx reports ErrTxClosed which we ignore.
		_ = dbtx.Rollback(ctx)
	}()

	if err := fn(WithTx(ctx, dbtx)); err != nil {
		return err
	}
	if err := dbtx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Passthrough runs fn without any transactional wrapper. Memory stores are
// already atomic per call, so tests wire this in place of PgxRunner.
type Passthrough struct{}

func (Passthrough) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
