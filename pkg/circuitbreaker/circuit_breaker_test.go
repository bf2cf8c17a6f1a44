package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("helix unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(maxFailures uint32, opts ...Option) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts = append([]Option{WithClock(clock.Now), WithLogger(logger)}, opts...)
	return New("helix", maxFailures, 30*time.Second, opts...), clock
}

func fail(context.Context) error    { return errUnavailable }
func succeed(context.Context) error { return nil }

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestExecute_PassesThroughResult(t *testing.T) {
	cb, _ := newTestBreaker(3)

	assert.NoError(t, cb.Execute(context.Background(), succeed))
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errUnavailable)
	assert.Equal(t, StateClosed, cb.State())

	stats := cb.Stats()
	assert.Equal(t, uint64(2), stats.Requests)
	assert.Equal(t, uint64(1), stats.Successes)
	assert.Equal(t, uint32(1), stats.Failures)
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State(), "a success resets the failure streak")

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, IsOpenError(err))
	assert.True(t, IsOpenError(fmt.Errorf("send: %w", err)))
	assert.Equal(t, uint64(1), cb.Stats().Trips)
}

func TestHalfOpenProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("success closes", func(t *testing.T) {
		cb, clock := newTestBreaker(1)
		_ = cb.Execute(ctx, fail)
		require.Equal(t, StateOpen, cb.State())

		clock.Advance(29 * time.Second)
		assert.False(t, cb.Allow())

		clock.Advance(time.Second)
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.True(t, cb.Allow())

		require.NoError(t, cb.Execute(ctx, succeed))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		cb, clock := newTestBreaker(1)
		_ = cb.Execute(ctx, fail)
		clock.Advance(30 * time.Second)

		_ = cb.Execute(ctx, fail)
		assert.Equal(t, StateOpen, cb.State())
		assert.Equal(t, uint64(2), cb.Stats().Trips)
	})
}

func TestHalfOpenAllowsSingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	clock.Advance(30 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.False(t, cb.Allow())
	assert.True(t, IsOpenError(cb.Execute(ctx, succeed)))

	close(release)
	assert.Eventually(t, func() bool { return cb.State() == StateClosed }, time.Second, 5*time.Millisecond)
}

func TestFailurePredicate(t *testing.T) {
	rejected := errors.New("recipient blocks whispers")
	cb, _ := newTestBreaker(1, WithFailurePredicate(func(err error) bool {
		return !errors.Is(err, rejected)
	}))
	ctx := context.Background()

	err := cb.Execute(ctx, func(context.Context) error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestZeroMaxFailuresTripsOnFirstFailure(t *testing.T) {
	cb, _ := newTestBreaker(0)
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestConcurrentExecute(t *testing.T) {
	cb, _ := newTestBreaker(1000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					_ = cb.Execute(context.Background(), succeed)
				} else {
					_ = cb.Execute(context.Background(), fail)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), cb.Stats().Requests)
}
