package pricebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

func TestResolve_ExactAndPrefixMatch(t *testing.T) {
	pb := New()

	price := pb.Resolve("gpt-4o-mini", nil)
	assert.Equal(t, 0.00015, price.InputPer1k)

	price = pb.Resolve("ollama/llama3.2", nil)
	assert.Equal(t, 0.0, price.InputPer1k)
	assert.Equal(t, 0.0, price.OutputPer1k)
}

func TestResolve_FallsBackToModelConfig(t *testing.T) {
	pb := New()
	cfg := &cascade.ModelConfig{CostPer1kInput: 0.01, CostPer1kOutput: 0.02}

	price := pb.Resolve("totally-unknown-model", cfg)
	assert.Equal(t, 0.01, price.InputPer1k)
	assert.Equal(t, 0.02, price.OutputPer1k)
}

func TestResolve_NoMatchNoFallbackIsZero(t *testing.T) {
	pb := New()
	price := pb.Resolve("totally-unknown-model", nil)
	assert.Equal(t, Price{}, price)
}

func TestEstimateTokens_Monotonic(t *testing.T) {
	prev := 0
	for _, text := range []string{"a", "a b", "a b c", "a b c d e f g h"} {
		got := EstimateTokens(text)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestEstimateTokens_EmptyIsOne(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
}

func TestCalculator_DraftAccepted_CostSavedPositive(t *testing.T) {
	calc := NewCalculator(New())
	cached := 0
	usage := cascade.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150, CachedInputTokens: &cached}

	bd := calc.DraftAccepted("gpt-4o-mini", usage, nil, "gpt-4o", nil)

	assert.True(t, bd.DraftAccepted)
	assert.True(t, bd.WasCascaded)
	assert.Equal(t, 0.0, bd.VerifierCost)
	assert.Equal(t, bd.DraftCost, bd.TotalCost)
	assert.Greater(t, bd.CostSaved, 0.0)
	assert.Equal(t, bd.BigOnlyCost-bd.TotalCost, bd.CostSaved)
}

func TestCalculator_DraftRejected_CostSavedNegative(t *testing.T) {
	calc := NewCalculator(New())
	draftUsage := cascade.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}
	verifierUsage := cascade.Usage{InputTokens: 200, OutputTokens: 80, TotalTokens: 280}

	bd := calc.DraftRejected("gpt-4o-mini", draftUsage, nil, "gpt-4o", verifierUsage, nil)

	require.False(t, bd.DraftAccepted)
	assert.Equal(t, bd.DraftCost+bd.VerifierCost, bd.TotalCost)
	assert.Equal(t, bd.VerifierCost, bd.BigOnlyCost)
	assert.Equal(t, -bd.DraftCost, bd.CostSaved)
	assert.Equal(t, draftUsage.TotalTokens+verifierUsage.TotalTokens, bd.TotalTokens)
}

func TestCalculator_Direct_NoSavings(t *testing.T) {
	calc := NewCalculator(New())
	usage := cascade.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}

	bd := calc.Direct("gpt-4o", usage, nil)

	assert.False(t, bd.WasCascaded)
	assert.Equal(t, 0.0, bd.CostSaved)
	assert.Equal(t, bd.TotalCost, bd.BigOnlyCost)
}

func TestSum_Associative(t *testing.T) {
	calc := NewCalculator(New())
	usage := cascade.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}

	b1 := calc.DraftAccepted("gpt-4o-mini", usage, nil, "gpt-4o", nil)
	b2 := calc.DraftAccepted("gpt-4o-mini", usage, nil, "gpt-4o", nil)

	batch := Sum([]cascade.CostBreakdown{b1, b2})

	assert.InDelta(t, b1.TotalCost+b2.TotalCost, batch.TotalCost, 1e-9)
	assert.InDelta(t, b1.CostSaved+b2.CostSaved, batch.CostSaved, 1e-9)
}
