package store

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// withRetry runs fn, retrying on Conflict errors under an exponential
// backoff capped at maxAttempts tries total. §5 "Retry discipline" and §9
// Open Question 3 both say the exact curve is implementation-defined and
// must not be relied on by tests — backoff.NewExponentialBackOff()'s
// defaults are used unmodified, the same way go-crablet leaves Postgres's
// own retry/backoff behavior opaque to callers.
func withRetry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxAttempts-1)), ctx)

	var lastErr error
	op := func() error {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if runtimeerr.Is(lastErr, runtimeerr.Conflict) {
			return lastErr // retryable
		}
		return backoff.Permanent(lastErr)
	}

	if err := backoff.Retry(op, policy); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
