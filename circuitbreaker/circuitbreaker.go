package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Option func(*CircuitBreaker)

// WithExcluded marks errors that are business outcomes (not found, no rows updated)
// rather than store failures; they never count towards tripping the breaker.
func WithExcluded(excluded func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		cb.excluded = excluded
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

type CircuitBreaker struct {
	name            string
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           State
	excluded        func(error) bool
	logger          *zap.Logger
	now             func() time.Time
	mu              sync.Mutex
}

func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		excluded:     func(error) bool { return false },
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn unless the breaker is open. The lock is not held while fn runs,
// so concurrent callers are not serialized behind a slow store.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) <= cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.failureCount = 0
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && !cb.excluded(err) {
		cb.failureCount++
		cb.lastFailureTime = cb.now()

		if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
			cb.setState(StateOpen)
		}
		return
	}

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
	cb.failureCount = 0
}

func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}
	cb.logger.Warn("Circuit breaker state changed",
		zap.String("breaker", cb.name),
		zap.String("from", cb.state.String()),
		zap.String("to", state.String()),
	)
	cb.state = state
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
