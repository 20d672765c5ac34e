package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richxcame/dispatch/pkg/logger"
	"go.uber.org/zap"
)

const (
	maxTxAttempts  = 3
	backoffStep    = 100 * time.Millisecond
)

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// WithTransaction runs fn inside a transaction, retrying serialization
// failures (40001) and deadlocks (40P01) up to three times with linear
// backoff (100, 200, 300 ms). The transaction is rolled back on every
// non-commit exit path, including panics.
func WithTransaction(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		lastErr = runTx(ctx, db, fn)
		if lastErr == nil {
			return nil
		}

		if !isRetryableTxError(lastErr) || attempt == maxTxAttempts {
			return lastErr
		}

		backoff := time.Duration(attempt) * backoffStep
		logger.WarnContext(ctx, "retrying transaction",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

func runTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// isRetryableTxError reports whether the whole transaction should be retried.
func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001": // serialization_failure
			return true
		case "40P01": // deadlock_detected
			return true
		}
	}

	return false
}

// IsLockNotAvailable reports a failed FOR UPDATE NOWAIT acquisition.
func IsLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

// IsUniqueViolation reports a unique constraint violation, optionally
// matching a specific constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsNoRows reports an empty single-row query result.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
