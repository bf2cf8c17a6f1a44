package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Option configures a CircuitBreaker
type Option func(*CircuitBreaker)

// WithLogger sets the logger used for state transitions
func WithLogger(logger *logrus.Logger) Option {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithFailurePredicate restricts which errors count toward tripping. Errors
// the predicate rejects are returned to the caller but treated as a
// reachable service.
func WithFailurePredicate(isFailure func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		if isFailure != nil {
			cb.isFailure = isFailure
		}
	}
}

// CircuitBreaker stops calls to an external service after maxFailures
// consecutive failures, then lets a single probe through once cooldown has
// passed. A successful probe closes the circuit; a failed one reopens it.
type CircuitBreaker struct {
	name        string
	maxFailures uint32
	cooldown    time.Duration
	isFailure   func(error) bool
	now         func() time.Time
	logger      *logrus.Logger

	mu              sync.Mutex
	state           State
	failures        uint32
	lastFailureTime time.Time
	probeInFlight   bool
	requests        uint64
	successes       uint64
	trips           uint64
}

// New creates a new circuit breaker
func New(name string, maxFailures uint32, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}

	cb := &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		isFailure:   func(error) bool { return true },
		now:         time.Now,
		logger:      logrus.New(),
		state:       StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow reports whether a call would currently be let through
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.allowLocked()
}

// Execute runs fn if the circuit allows it, otherwise returns an *OpenError
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	cb.mu.Lock()
	if !cb.allowLocked() {
		state := cb.state
		cb.mu.Unlock()
		return &OpenError{Name: cb.name, State: state}
	}
	if cb.state == StateHalfOpen {
		cb.probeInFlight = true
	}
	cb.requests++
	cb.mu.Unlock()

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false

	if err != nil && cb.isFailure(err) {
		cb.onFailureLocked()
		return err
	}
	cb.onSuccessLocked()
	return err
}

// State returns the current state, moving an expired open circuit to half-open
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	return cb.state
}

// Stats returns statistics about the circuit breaker
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Requests:        cb.requests,
		Successes:       cb.successes,
		Trips:           cb.trips,
		LastFailureTime: cb.lastFailureTime,
	}
}

func (cb *CircuitBreaker) allowLocked() bool {
	cb.advanceLocked()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return !cb.probeInFlight
	default:
		return false
	}
}

func (cb *CircuitBreaker) advanceLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailureTime) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.probeInFlight = false
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           StateHalfOpen.String(),
		}).Info("Circuit breaker transitioned to half-open")
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	cb.successes++
	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           StateClosed.String(),
		}).Info("Circuit breaker closed after successful probe")
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	cb.failures++
	cb.lastFailureTime = cb.now()

	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.maxFailures) {
		cb.state = StateOpen
		cb.trips++
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"failures":        cb.failures,
			"cooldown":        cb.cooldown.String(),
			"state":           StateOpen.String(),
		}).Warn("Circuit breaker opened due to failures")
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"-"`
	Failures        uint32    `json:"consecutive_failures"`
	Requests        uint64    `json:"requests"`
	Successes       uint64    `json:"successes"`
	Trips           uint64    `json:"trips"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

// OpenError is returned by Execute when the circuit rejects a call
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsOpenError checks if err is, or wraps, an *OpenError
func IsOpenError(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}
