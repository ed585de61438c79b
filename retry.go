package pgtx

import (
	"context"
	"log/slog"
)

// DefaultRetryAttempts is the attempt budget used by RetryTransaction when
// maxAttempts is not positive.
const DefaultRetryAttempts = 3

// Retry runs fn until it succeeds, returns an error that is not retryable,
// maxAttempts is reached or ctx is done. Only serialization failures and
// deadlocks are retried; fn must redo all of its work on each call.
//
// Usage:
//
//	err := pgtx.Retry(ctx, 3, func() error {
//	    return db.WithTransaction(ctx, transfer)
//	})
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryAttempts
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return wrapError(err, "Retry")
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// RetryTransaction runs fn in a fresh serializable transaction and starts
// over when the transaction fails with a serialization failure or deadlock.
func (db *Database) RetryTransaction(ctx context.Context, maxAttempts int, fn func(tx *Tx) error) error {
	attempt := 0
	return Retry(ctx, maxAttempts, func() error {
		attempt++
		err := db.WithTransaction(ctx, fn)
		if err != nil && IsRetryable(err) {
			db.logger.DebugContext(ctx, "retrying transaction",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		return err
	})
}
