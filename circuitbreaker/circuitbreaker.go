package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type CircuitBreaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           State
	trialInFlight   bool
	isFailure       func(error) bool
	now             func() time.Time
	mu              sync.Mutex
}

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

type Option func(*CircuitBreaker)

// WithFailureFilter limits which errors count against the breaker. Errors for
// which fn returns false are passed through without touching the failure count.
func WithFailureFilter(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		cb.isFailure = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		isFailure:    func(err error) bool { return err != nil },
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn unless the breaker is open. The lock is not held while fn
// runs, so concurrent callers are never serialized behind a slow upstream.
// In half-open state only one trial call is let through, and only that call
// decides whether the breaker closes again.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	trial, err := cb.allow()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
	}

	if err != nil && cb.isFailure(err) {
		cb.failureCount++
		cb.lastFailureTime = cb.now()

		if trial || (cb.state == StateClosed && cb.failureCount >= cb.maxFailures) {
			cb.state = StateOpen
		}
		return err
	}

	// Success (or a caller error that says nothing about upstream health)
	switch {
	case trial:
		cb.state = StateClosed
		cb.failureCount = 0
	case cb.state == StateClosed && err == nil:
		cb.failureCount = 0
	}

	return err
}

// allow reports whether fn may run and whether this call is the half-open trial call.
func (cb *CircuitBreaker) allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) <= cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.failureCount = 0
		cb.trialInFlight = true
		return true, nil
	case StateHalfOpen:
		if cb.trialInFlight {
			return false, ErrCircuitOpen
		}
		cb.trialInFlight = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
