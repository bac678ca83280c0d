package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRequest_NoLimitsAlwaysAllowed(t *testing.T) {
	l := NewLimiter(nil)
	out := l.StartRequest("openai", 100)
	assert.True(t, out.Allowed)
	l.EndRequest("openai")
}

func TestStartRequest_ConcurrencyGateDenies(t *testing.T) {
	l := NewLimiter(map[string]ProviderPolicy{"openai": {Concurrency: 1}})

	first := l.StartRequest("openai", 0)
	require.True(t, first.Allowed)

	second := l.StartRequest("openai", 0)
	assert.False(t, second.Allowed)
	assert.Greater(t, second.RetryAfterMs, int64(0))

	l.EndRequest("openai")
	third := l.StartRequest("openai", 0)
	assert.True(t, third.Allowed)
	l.EndRequest("openai")
}

func TestStartRequest_RequestRateLimitDenies(t *testing.T) {
	l := NewLimiter(map[string]ProviderPolicy{"openai": {RequestsPerMinute: 1}})

	first := l.StartRequest("openai", 0)
	require.True(t, first.Allowed)
	l.EndRequest("openai")

	second := l.StartRequest("openai", 0)
	assert.False(t, second.Allowed)
	l.EndRequest("openai")
}

func TestStartRequest_TokenRateLimitDenies(t *testing.T) {
	l := NewLimiter(map[string]ProviderPolicy{"openai": {TokensPerMinute: 60}})

	first := l.StartRequest("openai", 50)
	require.True(t, first.Allowed)
	l.EndRequest("openai")

	second := l.StartRequest("openai", 50)
	assert.False(t, second.Allowed)
	assert.Equal(t, "token rate limit exceeded", second.Reason)
	l.EndRequest("openai")
}

func TestEndRequest_WithoutConcurrencyGateIsNoOp(t *testing.T) {
	l := NewLimiter(map[string]ProviderPolicy{"openai": {RequestsPerMinute: 60}})
	assert.NotPanics(t, func() { l.EndRequest("openai") })
}

func TestStartRequest_IndependentProvidersDoNotShareState(t *testing.T) {
	l := NewLimiter(map[string]ProviderPolicy{"openai": {Concurrency: 1}})
	first := l.StartRequest("openai", 0)
	require.True(t, first.Allowed)

	other := l.StartRequest("anthropic", 0)
	assert.True(t, other.Allowed)

	l.EndRequest("openai")
	l.EndRequest("anthropic")
}
