package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes a bounded exponential-backoff retry schedule. The zero
// value is normalized to a single attempt with no backoff, so a Policy can
// be embedded in configuration structs safely.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration
	// Multiplier grows the backoff between attempts. Defaults to 2.
	Multiplier float64
	// MaxBackoff caps the backoff. Zero means uncapped.
	MaxBackoff time.Duration
	// OnRetry, when set, is invoked before each re-attempt with the number
	// of the upcoming attempt and the error that caused it.
	OnRetry func(attempt int, err error)
	// Permanent, when set, reports errors that must not be retried. A
	// permanent error is returned as-is without the attempt-count wrapper.
	Permanent func(err error) bool
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	return p
}

// Do runs fn under the policy, sleeping between attempts, and returns the
// first successful result. The context cancels both the sleeps and any
// further attempts. When every attempt fails, the last error is returned
// wrapped with the attempt count.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p = p.normalized()

	backoff := p.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * p.Multiplier)
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if p.Permanent != nil && p.Permanent(err) {
			return zero, lastErr
		}
		// A cancelled context makes further attempts pointless.
		if ctx.Err() != nil {
			return zero, lastErr
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", p.MaxAttempts, lastErr)
}
