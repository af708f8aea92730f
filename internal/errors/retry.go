package errors

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds the backoff loop applied to transient failures.
type RetryPolicy struct {
	MaxAttempts    int           // total attempts including the first
	InitialBackoff time.Duration // delay before the second attempt
	MaxBackoff     time.Duration // delay ceiling
	Multiplier     float64       // backoff growth factor
	Jitter         float64       // fraction of the delay randomized, in [0,1]
}

// DefaultRetryPolicy matches the engine-wide budget for external calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// SingleRetryPolicy retries exactly once with a short pause. LLM calls use
// this: their errors propagate after one retry.
func SingleRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		Multiplier:     1.0,
	}
}

// Retry runs fn until it succeeds, returns a non-transient error, or the
// policy is exhausted. The last error is returned unwrapped so callers can
// still classify it.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	backoff := policy.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Transient("CANCELLED", "operation cancelled", err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return Transient("CANCELLED", "operation cancelled", ctx.Err())
		case <-time.After(jittered(backoff, policy.Jitter)):
		}

		backoff = time.Duration(float64(backoff) * policy.Multiplier)
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return lastErr
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	// Spread the delay across [d*(1-jitter), d*(1+jitter)].
	delta := float64(d) * jitter
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}
