package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "analyst-workers/internal/common/errors"
)

func testClient() *Client {
	return &Client{
		config: &ClientConfig{
			ConnectionTimeout: time.Second,
			RequestTimeout:    time.Second,
			RetryConfig: &RetryConfig{
				MaxRetries: 3,
				BaseDelay:  time.Millisecond,
				MaxDelay:   5 * time.Millisecond,
			},
		},
	}
}

func TestExecuteWithRetry_RecoversFromTransientFailure(t *testing.T) {
	c := testClient()

	calls := 0
	result, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("rpc error: connection refused")
		}
		return "ok", nil
	}, "publish message")

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	c := testClient()

	calls := 0
	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("process definition not found")
	}, "create instance")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperrors.ErrorCode("RESOURCE_NOT_FOUND"), apperrors.CodeOf(err))
}

func TestExecuteWithRetry_ExhaustsRetries(t *testing.T) {
	c := testClient()

	calls := 0
	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("deadline exceeded")
	}, "complete job")

	require.Error(t, err)
	assert.Equal(t, c.config.RetryConfig.MaxRetries+1, calls)
	assert.Equal(t, apperrors.ErrorCode("TIMEOUT_ERROR"), apperrors.CodeOf(err))
}

func TestExecuteWithRetry_RespectsContextCancellation(t *testing.T) {
	c := testClient()
	c.config.RetryConfig.BaseDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("connection reset by peer")
	}, "fail job")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		msg       string
		retryable bool
	}{
		{"dial tcp: connection refused", true},
		{"context deadline exceeded", true},
		{"gateway unavailable", true},
		{"write: broken pipe", true},
		{"element with id not found", false},
		{"invalid variables payload", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.retryable, isRetryableZeebeError(errors.New(tt.msg)), tt.msg)
	}
}

func TestMapZeebeError(t *testing.T) {
	c := testClient()

	tests := []struct {
		name     string
		msg      string
		wantCode apperrors.ErrorCode
	}{
		{"connection refused", "connection refused", "EXTERNAL_SERVICE_ERROR"},
		{"broker unavailable", "gateway unavailable", "EXTERNAL_SERVICE_ERROR"},
		{"timeout", "context deadline exceeded", "TIMEOUT_ERROR"},
		{"not found", "workflow not found", "RESOURCE_NOT_FOUND"},
		{"already exists", "message already exists", "BUSINESS_RULE_VIOLATION"},
		{"unknown", "something unexpected", "EXTERNAL_SERVICE_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.mapZeebeError(errors.New(tt.msg), "test op", 2)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
		})
	}
}
