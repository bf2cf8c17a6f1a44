package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"
)

type contextKey struct{ name string }

var (
	requestIDKey = contextKey{"request_id"}
	startTimeKey = contextKey{"start_time"}
)

// fallbackSeq numbers ids when crypto/rand is unavailable
var fallbackSeq atomic.Uint64

func newID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return prefix + "_" + strconv.FormatInt(time.Now().UnixNano(), 36) + strconv.FormatUint(fallbackSeq.Add(1), 36)
	}
	return prefix + "_" + hex.EncodeToString(buf)
}

// NewRequestID returns an id for one admin API request ("req_" + 16 hex).
func NewRequestID() string {
	return newID("req")
}

// NewTickID returns an id for one pump tick ("tick_" + 16 hex). Every whisper
// sent during the tick is logged under it.
func NewTickID() string {
	return newID("tick")
}

// WithRequestID stores a request or tick id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithStartTime(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, start)
}

// Elapsed is the time since WithStartTime, or zero when it was never set.
func Elapsed(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startTimeKey).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start)
}
