package errors

import "net/http"

// HTTPStatus maps err's code to the status the admin API answers with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	case ErrCodeTwitchAPI:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message safe to return to an API client. Causes are
// never included; errors outside the taxonomy get a generic text.
func PublicMessage(err error) string {
	if appErr, ok := as(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return "internal error"
}
