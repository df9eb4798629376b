package http

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "network",
			err:      NewNetworkError(testURL, 2, cause),
			expected: "network error: request to " + testURL + " (attempt: 3): dial tcp: connection refused",
		},
		{
			name:     "timeout",
			err:      NewTimeoutError(testURL, 0, time.Second),
			expected: "timeout error: request to " + testURL + " (timeout: 1s, attempt: 1)",
		},
		{
			name:     "cancelled",
			err:      NewCancelledError(testURL, 0, ErrCancelled),
			expected: "cancelled: request to " + testURL,
		},
		{
			name:     "http",
			err:      NewHTTPError(testURL, 0, 503, nil),
			expected: "HTTP error: request failed for " + testURL + " (status: 503)",
		},
		{
			name:     "validation with field",
			err:      NewValidationError("URL cannot be empty", "url"),
			expected: "validation error: URL cannot be empty (field: url)",
		},
		{
			name:     "validation without field",
			err:      NewValidationError("bad", ""),
			expected: "validation error: bad",
		},
		{
			name:     "interceptor",
			err:      NewInterceptorError(PhaseResponse, cause),
			expected: "interceptor error: listener failed (stage: response): dial tcp: connection refused",
		},
		{
			name:     "unexpected",
			err:      NewUnexpectedError(testURL, 1, cause),
			expected: "unexpected error: request to " + testURL + " (attempt: 2): dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.Equal(t, tt.err.Kind, tt.err.Type())
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cancelled := NewCancelledError(testURL, 0, context.Canceled)

	assert.ErrorIs(t, cancelled, ErrCancelled)
	assert.ErrorIs(t, cancelled, context.Canceled)
	assert.True(t, IsCancelled(fmt.Errorf("wrapped: %w", cancelled)))
	assert.False(t, IsCancelled(NewTimeoutError(testURL, 0, time.Second)))
	assert.NotErrorIs(t, NewNetworkError(testURL, 0, nil), ErrCancelled)

	assert.True(t, IsTimeout(NewTimeoutError(testURL, 0, time.Second)))
	assert.False(t, IsErrorType(nil, NetworkError))
	assert.False(t, IsErrorType(errors.New("plain"), NetworkError))
	assert.False(t, IsHTTPStatusError(errors.New("plain"), 500))
}

func TestCancelledErrorDropsSentinelCause(t *testing.T) {
	assert.Nil(t, NewCancelledError(testURL, 0, ErrCancelled).Err)
	assert.Nil(t, NewCancelledError(testURL, 0, nil).Err)
	assert.Equal(t, context.DeadlineExceeded, NewCancelledError(testURL, 0, context.DeadlineExceeded).Err)
}
