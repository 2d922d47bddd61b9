package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []int

	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("broker unavailable")
		}
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastPolicy(2), func() error {
		calls++
		return errors.ErrTransport.WithDetail("message", "write failed")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, errors.ErrTransport))
}

func TestRetry_FatalErrorIsNotRetried(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return errors.BusinessRule("Amount must be greater than 0.10!")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Amount must be greater than 0.10!", errors.Message(err))
}

func TestRetry_SingleAttempt(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastPolicy(1), func() error {
		calls++
		return fmt.Errorf("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	err := Retry(ctx, fastPolicy(5), func() error {
		calls++
		return fmt.Errorf("boom")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
