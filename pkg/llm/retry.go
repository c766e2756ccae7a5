package llm

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// backoffRetry runs fn, retrying with exponential backoff while
// retryable(err) holds, up to policy's attempt budget.
func backoffRetry(ctx context.Context, policy RetryPolicy, fn func() error, retryable func(error) bool) error {
	var lastErr error
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(policy.newBackOff(), ctx)); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
