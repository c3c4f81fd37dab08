package remote

import (
	"context"

	"github.com/sethvargo/go-retry"
)

// withRetry runs fn with exponential backoff. Connectivity is re-checked
// before every attempt; going offline ends the chain with ErrOffline.
// Errors that retrying cannot fix are returned at once.
func (a *Adapter) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(a.maxRetries, retry.NewExponential(a.retryBase))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 && !a.checker.IsOnline(ctx) {
			return ErrOffline
		}

		err := fn(ctx)
		if err == nil || permanent(err) || ctx.Err() != nil {
			return err
		}

		a.logger.Warn("Remote call failed, will retry", "op", op, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}
