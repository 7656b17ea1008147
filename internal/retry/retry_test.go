package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(t *testing.T) {
	t.Helper()
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { sleep = orig })
}

func TestDo_SucceedsAfterRetryableFailures(t *testing.T) {
	noSleep(t)
	calls := 0
	var retried []int

	err := Do(context.Background(), DefaultConfig(), func(attempt int, _ error) {
		retried = append(retried, attempt)
	}, func() error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("503"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	noSleep(t)
	permanent := errors.New("404")
	calls := 0

	err := Do(context.Background(), DefaultConfig(), nil, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttemptsAndUnwraps(t *testing.T) {
	noSleep(t)
	cause := errors.New("500")
	calls := 0

	err := Do(context.Background(), DefaultConfig(), nil, func() error {
		calls++
		return Retryable(cause)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.False(t, IsRetryable(err), "final error should not carry the retry marker")
	assert.ErrorIs(t, err, cause)
}

func TestDo_NoRetryRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), NoRetry(), nil, func() error {
		calls++
		return Retryable(errors.New("503"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CanceledContext(t *testing.T) {
	noSleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, DefaultConfig(), nil, func() error {
		return Retryable(errors.New("503"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryable_Nil(t *testing.T) {
	assert.NoError(t, Retryable(nil))
}
