// Package ratelimit provides fixed-window occurrence counters used to keep
// outbound traffic under the platform's published send rates.
package ratelimit

import "time"

// Counter tracks how many occurrences happened in the current window and how
// many remain. A window is stale once window has elapsed since it started;
// stale windows are replaced by a fresh empty one before any read or write.
//
// Counter is not safe for concurrent use. Callers serialise access.
type Counter struct {
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
}

// NewCounter creates a counter permitting limit occurrences per window.
func NewCounter(limit int, window time.Duration) *Counter {
	return &Counter{
		limit:  limit,
		window: window,
	}
}

// TryConsume records one occurrence if the live window has budget left.
// It returns false and leaves the counter untouched otherwise.
func (c *Counter) TryConsume(now time.Time) bool {
	c.refresh(now)
	if c.count >= c.limit {
		return false
	}
	c.count++
	return true
}

// AvailableOccurrences returns the budget left in the live window.
func (c *Counter) AvailableOccurrences(now time.Time) int {
	c.refresh(now)
	return c.limit - c.count
}

// Reset discards the current window and starts an empty one at now.
func (c *Counter) Reset(now time.Time) {
	c.windowStart = now
	c.count = 0
}

// Limit returns the number of occurrences allowed per window.
func (c *Counter) Limit() int {
	return c.limit
}

// Window returns the window length.
func (c *Counter) Window() time.Duration {
	return c.window
}

func (c *Counter) refresh(now time.Time) {
	if c.windowStart.IsZero() || now.Sub(c.windowStart) >= c.window {
		c.Reset(now)
	}
}
