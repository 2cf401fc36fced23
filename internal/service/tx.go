package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/pkg/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const maxTxAttempts = 3

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure / deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// inSerializableTx runs fn inside a serializable transaction and re-executes
// the whole body from scratch when the store reports a conflicting concurrent
// write, up to maxTxAttempts times. Past the bound the conflict surfaces as
// ErrTxConflict.
func inSerializableTx(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger, fn func(tx pgx.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
			}
		}

		tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		err = fn(tx)
		if err == nil {
			if err = tx.Commit(ctx); err == nil {
				return nil
			}
		}

		cleanupCtx := context.WithoutCancel(ctx)
		if rbErr := tx.Rollback(cleanupCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logging.Warn(cleanupCtx, logger, "Failed to rollback transaction", zap.Error(rbErr))
		}

		if !isSerializationFailure(err) {
			return err
		}

		logging.Debug(ctx, logger, "Retrying serializable transaction",
			zap.Int("attempt", attempt+1), zap.Error(err))
		lastErr = err
	}

	return fmt.Errorf("%w: %v", repository.ErrTxConflict, lastErr)
}
