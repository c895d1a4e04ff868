package errors

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig is an exponential backoff policy. MaxRetries counts retries
// after the first attempt.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig waits 100ms then 200ms, capped at 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
	}
}

func (c RetryConfig) next(d time.Duration) time.Duration {
	return min(time.Duration(float64(d)*c.Multiplier), c.MaxDelay)
}

// RetryWithResult calls fn until it succeeds, the attempts run out, or ctx
// ends. Errors classified as non-retryable RagErrors stop immediately;
// plain errors are always retried.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxRetries+1, 1)
	wait := cfg.InitialDelay

	var err error
	tried := 0
	for attempt := range attempts {
		if cerr := ctx.Err(); cerr != nil {
			return zero, cerr
		}
		tried++
		var v T
		if v, err = fn(attempt); err == nil {
			return v, nil
		}
		if isPermanent(err) || attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		wait = cfg.next(wait)
	}
	return zero, fmt.Errorf("failed after %d attempts: %w", tried, err)
}

// isPermanent reports a RagError whose code says retrying cannot help,
// such as a dimension mismatch.
func isPermanent(err error) bool {
	return GetCode(err) != "" && !IsRetryable(err)
}
