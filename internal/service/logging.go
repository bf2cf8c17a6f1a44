package service

import "context"

// Standard log field names shared by the pump and the HTTP layer
const (
	LogFieldService    = "service"
	LogFieldOperation  = "operation"
	LogFieldComponent  = "component"
	LogFieldMethod     = "method"
	LogFieldRecipient  = "recipient"
	LogFieldBacklog    = "backlog"
	LogFieldCount      = "count"
	LogFieldDuration   = "duration_ms"
	LogFieldSize       = "size_bytes"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldErrorCode  = "error_code"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the context key for the verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx for verbose (unmasked) logging
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}
