package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/a2a-runtime/types"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPStatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	err := Do(context.Background(), DefaultConfig(), func(context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
	err := Do(context.Background(), cfg, func(context.Context) error {
		return &HTTPStatusError{StatusCode: http.StatusTooManyRequests}
	})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Attempts)
}

func TestIsRetryable(t *testing.T) {
	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(context.Canceled))
	require.True(t, IsRetryable(context.DeadlineExceeded))
	require.True(t, IsRetryable(&HTTPStatusError{StatusCode: http.StatusBadGateway}))
	require.False(t, IsRetryable(&HTTPStatusError{StatusCode: http.StatusBadRequest}))
}

func TestIsRetryableRejectsDomainErrors(t *testing.T) {
	require.False(t, IsRetryable(types.TaskNotFound("T-1")))
	require.False(t, IsRetryable(types.Internal("unhandled failure")))
}

func TestDoDoesNotRetryDomainErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(context.Context) error {
		calls++
		return types.TaskNotCancelable("T-1", types.TaskStateCompleted)
	})
	var domainErr *types.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, types.CodeTaskNotCancelable, domainErr.Code)
	require.Equal(t, 1, calls)
}
