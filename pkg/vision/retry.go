package vision

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy is the C4 retry contract: up to MaxAttempts with exponential
// backoff plus jitter, honoring a Retry-After header when the provider
// sends one. The jitter and Retry-After handling are hand-rolled here
// because they need access to each attempt's ProviderError (status code,
// header value) that a plain func() error retry helper doesn't expose,
// which is why this isn't built on cenkalti/backoff/v4 the way pkg/llm's
// retry is.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterFrac  float64 // e.g. 0.20 for ±20%
}

// DefaultRetryPolicy is the out-of-the-box policy for vision provider calls.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
	JitterFrac:  0.20,
}

// RetryAfter parses an HTTP Retry-After header, which may arrive as either
// a delay in seconds or an HTTP-date.
func RetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func (p RetryPolicy) delay(attempt int, retryAfter time.Duration, rateLimited bool) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	base := p.BaseDelay
	if rateLimited {
		base *= 2
	}
	d := time.Duration(float64(base) * pow2(attempt))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	jitter := (rand.Float64()*2 - 1) * p.JitterFrac
	d = time.Duration(float64(d) * (1 + jitter))
	if d < 0 {
		d = 0
	}
	return d
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

// withRetry drives fn up to policy.MaxAttempts times, sleeping between
// attempts per delay(), stopping immediately on a non-retryable
// ProviderError.
func withRetry(ctx context.Context, policy RetryPolicy, retryAfterHeader func(error) string, fn func() (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perr *ProviderError
		if !errors.As(err, &perr) || !perr.Retryable {
			return nil, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		var retryAfter time.Duration
		if retryAfterHeader != nil {
			if d, ok := RetryAfter(retryAfterHeader(err)); ok {
				retryAfter = d
			}
		}
		rateLimited := perr.StatusCode == http.StatusTooManyRequests
		d := policy.delay(attempt, retryAfter, rateLimited)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
