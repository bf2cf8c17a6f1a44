package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := New(ErrCodeInvalidConfig, "bad limit")
	assert.Equal(t, "INVALID_CONFIG: bad limit", err.Error())

	wrapped := Wrap(fmt.Errorf("disk full"), ErrCodeDatabaseQuery, "save timer")
	assert.Equal(t, "DATABASE_QUERY: save timer: disk full", wrapped.Error())
}

func TestWrap_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(cause, ErrCodeDatabaseQuery, "query failed")

	assert.ErrorIs(t, err, cause)
	assert.False(t, err.Retryable)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable app error", WrapRetryable(fmt.Errorf("locked"), ErrCodeDatabaseQuery, "x"), true},
		{"plain app error", New(ErrCodeInvalidInput, "x"), false},
		{"wrapped retryable", fmt.Errorf("outer: %w", WrapRetryable(nil, ErrCodeTimeout, "x")), true},
		{"plain error", fmt.Errorf("nope"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeRateLimit, GetCode(New(ErrCodeRateLimit, "slow down")))
	assert.Equal(t, ErrCodeTwitchAPI, GetCode(fmt.Errorf("send: %w", New(ErrCodeTwitchAPI, "x"))))
	assert.Equal(t, ErrCodeInternalError, GetCode(fmt.Errorf("plain")))
}

func TestNewAPIError(t *testing.T) {
	tests := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, ErrCodeRateLimit, true},
		{http.StatusInternalServerError, ErrCodeTwitchAPI, true},
		{http.StatusRequestTimeout, ErrCodeTwitchAPI, true},
		{http.StatusBadRequest, ErrCodeTwitchAPI, false},
		{http.StatusUnauthorized, ErrCodeTwitchAPI, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := NewAPIError("/whispers", tt.status, "body")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.Context["status_code"])
			assert.Equal(t, "body", err.Context["body"])
		})
	}
}

func TestNewDatabaseError(t *testing.T) {
	err := NewDatabaseError("save timer", fmt.Errorf("locked"))
	assert.Equal(t, ErrCodeDatabaseQuery, err.Code)
	assert.Equal(t, "save timer", err.Context["operation"])
}

func TestLogError_IncludesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	LogError(logger, NewConfigError("whispers.per_second_limit", "must be positive"), "invalid configuration")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "INVALID_CONFIG", entry["error_code"])
	assert.Equal(t, "whispers.per_second_limit", entry["config_key"])
	assert.Equal(t, "invalid configuration", entry["msg"])
}

func TestFields_PlainError(t *testing.T) {
	assert.Empty(t, Fields(fmt.Errorf("plain")))
}
