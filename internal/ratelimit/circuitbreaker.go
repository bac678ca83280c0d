package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by CircuitBreaker.Execute when the breaker is open and
// rejecting calls without attempting them.
var ErrOpen = errors.New("circuit breaker is open")

// CircuitState is the breaker's three-state machine.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker trips open after maxFailures consecutive failures and
// allows one trial call (half-open) once resetTimeout has elapsed, grounded
// on the teacher's pkg/security.CircuitBreaker.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu              sync.RWMutex
	failures        int
	lastFailureTime time.Time
	state           CircuitState
}

// NewCircuitBreaker builds a CircuitBreaker that opens after maxFailures
// consecutive failures and attempts recovery after resetTimeout.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

// Execute runs fn through the breaker: rejected with ErrOpen while open
// (without invoking fn), and any error from fn counts toward tripping it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && time.Since(cb.lastFailureTime) > cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.failures = 0
	}
	if cb.state == CircuitOpen {
		return ErrOpen
	}

	err := fn()
	if err != nil {
		cb.failures++
		cb.lastFailureTime = time.Now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
		}
		return err
	}

	cb.failures = 0
	cb.state = CircuitClosed
	return nil
}

// GetState reports the breaker's current state without mutating it.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the breaker back to closed, clearing its failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
}

// Unavailable reports whether the breaker is open and not yet due for a
// half-open retry — the router's signal to exclude this provider's models
// from candidate selection.
func (cb *CircuitBreaker) Unavailable() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state == CircuitOpen && time.Since(cb.lastFailureTime) <= cb.resetTimeout
}

// Breakers tracks one CircuitBreaker per provider name, created lazily on
// first use under a shared trip policy.
type Breakers struct {
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakers builds a Breakers registry with the given trip policy.
func NewBreakers(maxFailures int, resetTimeout time.Duration) *Breakers {
	return &Breakers{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		breakers:     make(map[string]*CircuitBreaker),
	}
}

// For returns the named provider's breaker, creating it on first use.
func (b *Breakers) For(provider string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[provider]
	if !ok {
		cb = NewCircuitBreaker(b.maxFailures, b.resetTimeout)
		b.breakers[provider] = cb
	}
	return cb
}

// Unavailable returns the set of providers whose breaker is currently open,
// for the router to exclude from candidate selection.
func (b *Breakers) Unavailable() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(b.breakers))
	for name, cb := range b.breakers {
		if cb.Unavailable() {
			out[name] = true
		}
	}
	return out
}
