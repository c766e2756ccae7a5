package llm

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the exponential-backoff-with-jitter loop every
// provider call's streaming/structured path is wrapped in.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy mirrors the conservative defaults seen across the
// pack's provider clients: a handful of attempts, short initial backoff,
// capped growth.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     8 * time.Second,
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}
