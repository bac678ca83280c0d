package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCallFailed = errors.New("call failed")

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.False(t, cb.Unavailable())
}

func TestCircuitBreaker_TripsOpenAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)

	err := cb.Execute(func() error { return errCallFailed })
	require.ErrorIs(t, err, errCallFailed)
	assert.Equal(t, CircuitClosed, cb.GetState())

	err = cb.Execute(func() error { return errCallFailed })
	require.ErrorIs(t, err, errCallFailed)
	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.True(t, cb.Unavailable())
}

func TestCircuitBreaker_OpenRejectsWithoutCallingFn(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	require.Error(t, cb.Execute(func() error { return errCallFailed }))

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)
	require.Error(t, cb.Execute(func() error { return errCallFailed }))
	assert.True(t, cb.Unavailable())

	time.Sleep(5 * time.Millisecond)
	assert.False(t, cb.Unavailable(), "breaker should be eligible for a half-open trial once resetTimeout elapses")

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	require.Error(t, cb.Execute(func() error { return errCallFailed }))
	require.NoError(t, cb.Execute(func() error { return nil }))

	require.Error(t, cb.Execute(func() error { return errCallFailed }))
	assert.Equal(t, CircuitClosed, cb.GetState(), "one failure after a reset shouldn't trip a 2-failure breaker")
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	require.Error(t, cb.Execute(func() error { return errCallFailed }))
	require.Equal(t, CircuitOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.False(t, cb.Unavailable())
}

func TestBreakers_ForIsLazyAndPerProvider(t *testing.T) {
	b := NewBreakers(1, time.Minute)
	require.Error(t, b.For("openai").Execute(func() error { return errCallFailed }))

	unavailable := b.Unavailable()
	assert.True(t, unavailable["openai"])
	assert.False(t, unavailable["anthropic"])
}
