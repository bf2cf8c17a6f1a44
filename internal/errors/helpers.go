package errors

import (
	"fmt"
	"net/http"
)

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key)
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}

// NewAPIError creates an error for a failed Twitch API call. 429, 408 and 5xx
// responses are marked retryable.
func NewAPIError(endpoint string, statusCode int, body string) *AppError {
	code := ErrCodeTwitchAPI
	if statusCode == http.StatusTooManyRequests {
		code = ErrCodeRateLimit
	}

	appErr := New(code, fmt.Sprintf("twitch API returned status %d", statusCode)).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	if body != "" {
		appErr.WithContext("body", body)
	}
	appErr.Retryable = statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
	return appErr
}
