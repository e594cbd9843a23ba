package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn in a repeatable read transaction. Every ledger mutation goes
// through here so totals are recomputed from the same snapshot that was locked.
// Retryable failures are reported as shared.ErrTransientStore.
func WithTx(ctx context.Context, b Beginner, fn func(pgx.Tx) error) error {
	return run(ctx, b, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

// WithReadOnlyTx runs fn in a read-only repeatable read transaction so several
// queries observe one consistent snapshot.
func WithReadOnlyTx(ctx context.Context, b Beginner, fn func(pgx.Tx) error) error {
	return run(ctx, b, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func run(ctx context.Context, b Beginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return shared.ClassifyStoreError(fmt.Errorf("platform/db: begin tx: %w", err))
	}

	// Rollback after a successful commit is a no-op. It must not observe the
	// caller's cancellation or a cancelled ctx would leak the connection.
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(tx); err != nil {
		return shared.ClassifyStoreError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return shared.ClassifyStoreError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}
