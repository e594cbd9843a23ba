package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks fatal setup problems that are never retried automatically.
	ErrConfiguration = errors.New("configuration error")
	// ErrAlreadyVoided indicates a void was requested for an already voided row.
	ErrAlreadyVoided = errors.New("already voided")
	// ErrConsistencyViolation flags ledger state that breaks a pairing invariant.
	ErrConsistencyViolation = errors.New("consistency violation")
	// ErrTransientStore indicates the unit of work was rolled back and may be retried.
	ErrTransientStore = errors.New("transient store error")
)

// Postgres error codes treated as retryable.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgUniqueViolation      = "23505"
)

// ClassifyStoreError wraps retryable database failures with ErrTransientStore.
func ClassifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientStore) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
			return fmt.Errorf("%w: %w", ErrTransientStore, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint failure, optionally for a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsRetryable reports whether the caller may safely retry the whole operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
