package ai

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(3), "test op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("503 service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetriableError(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(3), "test op", func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "non-retriable")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(2), "test op", func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("429 rate limited")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil", nil, false},
		{"rate limit", fmt.Errorf("429 too many requests"), true},
		{"overloaded", fmt.Errorf("overloaded_error: try again"), true},
		{"server error", fmt.Errorf("internal server error"), true},
		{"connection reset", fmt.Errorf("read: connection reset by peer"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"auth failure", fmt.Errorf("401 invalid api key"), false},
		{"bad request", fmt.Errorf("400 invalid request body"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, isRetriableError(tt.err))
		})
	}
}
