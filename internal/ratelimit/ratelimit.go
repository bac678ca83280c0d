// Package ratelimit implements per-provider request/token/concurrency gates
// (spec §4.11), grounded on the teacher's pkg/security.RateLimiter and its
// use of golang.org/x/time/rate. Unlike the teacher's limiter, StartRequest
// never blocks: a denied request returns a retry_after_ms instead of
// waiting, per spec ("non-blocking... rather than waiting inside the
// limiter").
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProviderPolicy bounds one provider. Zero fields mean "no limit" for that
// dimension.
type ProviderPolicy struct {
	RequestsPerMinute float64
	TokensPerMinute   float64
	Concurrency       int
}

// Outcome is StartRequest's non-blocking verdict.
type Outcome struct {
	Allowed      bool
	RetryAfterMs int64
	Reason       string
}

type providerState struct {
	reqLimiter   *rate.Limiter
	tokenLimiter *rate.Limiter
	sem          chan struct{}
}

// Limiter gates requests per provider. Safe for concurrent use.
type Limiter struct {
	mu        sync.RWMutex
	policies  map[string]ProviderPolicy
	providers map[string]*providerState
}

// NewLimiter builds a Limiter over a provider → policy table.
func NewLimiter(policies map[string]ProviderPolicy) *Limiter {
	return &Limiter{
		policies:  policies,
		providers: make(map[string]*providerState),
	}
}

func (l *Limiter) stateFor(provider string) *providerState {
	l.mu.RLock()
	st, ok := l.providers[provider]
	l.mu.RUnlock()
	if ok {
		return st
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.providers[provider]; ok {
		return st
	}

	policy := l.policies[provider]
	st = &providerState{}

	if policy.RequestsPerMinute > 0 {
		st.reqLimiter = rate.NewLimiter(rate.Limit(policy.RequestsPerMinute/60.0), maxBurst(policy.RequestsPerMinute))
	}
	if policy.TokensPerMinute > 0 {
		st.tokenLimiter = rate.NewLimiter(rate.Limit(policy.TokensPerMinute/60.0), maxBurst(policy.TokensPerMinute))
	}
	if policy.Concurrency > 0 {
		st.sem = make(chan struct{}, policy.Concurrency)
	}

	l.providers[provider] = st
	return st
}

func maxBurst(perMinute float64) int {
	b := int(perMinute)
	if b < 1 {
		return 1
	}
	return b
}

// StartRequest attempts to admit a request against the provider's
// concurrency, request-rate, and token-rate gates, in that order. On denial
// it reports retry_after_ms rather than blocking. Callers that receive
// Allowed=true MUST call EndRequest exactly once on every exit path,
// including error paths.
func (l *Limiter) StartRequest(provider string, tokenEstimate int) Outcome {
	st := l.stateFor(provider)

	if st.sem != nil {
		select {
		case st.sem <- struct{}{}:
		default:
			return Outcome{Allowed: false, RetryAfterMs: 50, Reason: "concurrency limit reached"}
		}
	}

	if st.reqLimiter != nil && !st.reqLimiter.Allow() {
		l.release(st)
		return Outcome{Allowed: false, RetryAfterMs: reservationDelayMs(st.reqLimiter), Reason: "request rate limit exceeded"}
	}

	if st.tokenLimiter != nil && tokenEstimate > 0 {
		reservation := st.tokenLimiter.ReserveN(time.Now(), tokenEstimate)
		if !reservation.OK() || reservation.Delay() > 0 {
			if reservation.OK() {
				reservation.Cancel()
			}
			l.release(st)
			return Outcome{Allowed: false, RetryAfterMs: reservation.Delay().Milliseconds(), Reason: "token rate limit exceeded"}
		}
	}

	return Outcome{Allowed: true}
}

// EndRequest releases the concurrency slot acquired by a successful
// StartRequest. It is a no-op if the provider has no concurrency gate.
func (l *Limiter) EndRequest(provider string) {
	st := l.stateFor(provider)
	l.release(st)
}

func (l *Limiter) release(st *providerState) {
	if st.sem == nil {
		return
	}
	select {
	case <-st.sem:
	default:
	}
}

func reservationDelayMs(limiter *rate.Limiter) int64 {
	reservation := limiter.ReserveN(time.Now(), 1)
	defer reservation.Cancel()
	if !reservation.OK() {
		return 1000
	}
	return reservation.Delay().Milliseconds()
}
