package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestRetryWithResult_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails once then succeeds
	calls := 0
	fn := func(attempt int) (int, error) {
		calls++
		if attempt == 0 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}

	// When: retrying
	got, err := RetryWithResult(context.Background(), fastRetry(), fn)

	// Then: the second attempt's value is returned
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestRetryWithResult_FailsAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func(int) (string, error) {
		calls++
		return "", errors.New("permanent")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "permanent")
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithResult(ctx, fastRetry(), func(int) (int, error) {
		calls++
		return 0, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryWithResult_PermanentRagErrorStopsEarly(t *testing.T) {
	// Given: a failure no retry can fix
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func(int) (int, error) {
		calls++
		return 0, New(ErrCodeDimensionMismatch, "expected 384, got 768", nil)
	})

	// Then: only one attempt was made and the code survives wrapping
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "failed after 1 attempts")
	assert.Equal(t, ErrCodeDimensionMismatch, GetCode(err))
}

func TestRetryWithResult_RetryableRagErrorIsRetried(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func(int) (int, error) {
		calls++
		return 0, New(ErrCodeNetworkTimeout, "slow", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
