package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemony-ai/cascadeflow-sub010/internal/budget"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

func twoCandidates() []cascade.ModelConfig {
	return []cascade.ModelConfig{
		{Name: "gpt-4", CostPer1kInput: 0.01, CostPer1kOutput: 0.03, QualityScore: 0.95, SpeedMs: 2000, SupportsTools: true, MaxTokens: 128000},
		{Name: "gpt-4o-mini", CostPer1kInput: 0.0002, CostPer1kOutput: 0.0006, QualityScore: 0.8, SpeedMs: 400, SupportsTools: true, MaxTokens: 128000},
	}
}

func TestRoute_AdmissionBlockSkips(t *testing.T) {
	d := Route(Input{
		Candidates: twoCandidates(),
		Admission:  budget.Outcome{Decision: budget.Block, Reason: "over budget"},
	})
	assert.Equal(t, cascade.StrategySkip, d.Strategy)
}

func TestRoute_NoCapableCandidatesSkips(t *testing.T) {
	d := Route(Input{
		Candidates:   []cascade.ModelConfig{{Name: "no-tools", SupportsTools: false}},
		ToolsPresent: true,
	})
	assert.Equal(t, cascade.StrategySkip, d.Strategy)
}

func TestRoute_HighToolRiskForcesDirect(t *testing.T) {
	d := Route(Input{
		Candidates:   twoCandidates(),
		ToolsPresent: true,
		ToolRisks:    []cascade.RiskTier{cascade.RiskHigh},
	})
	require.Equal(t, cascade.StrategyDirect, d.Strategy)
	require.NotNil(t, d.Verifier)
	assert.Equal(t, "gpt-4", d.Verifier.Name)
}

func TestRoute_ExpertComplexityForcesDirect(t *testing.T) {
	d := Route(Input{
		Candidates: twoCandidates(),
		Complexity: cascade.Expert,
	})
	assert.Equal(t, cascade.StrategyDirect, d.Strategy)
}

func TestRoute_ForceDirectFlag(t *testing.T) {
	d := Route(Input{
		Candidates:  twoCandidates(),
		Complexity:  cascade.Simple,
		ForceDirect: true,
	})
	assert.Equal(t, cascade.StrategyDirect, d.Strategy)
}

func TestRoute_DomainRequiresVerifier(t *testing.T) {
	d := Route(Input{
		Candidates:   twoCandidates(),
		Complexity:   cascade.Simple,
		DomainConfig: &cascade.DomainConfig{RequiresVerifier: true},
	})
	assert.Equal(t, cascade.StrategyDirect, d.Strategy)
}

func TestRoute_SingleCandidateIsDirect(t *testing.T) {
	d := Route(Input{
		Candidates: []cascade.ModelConfig{{Name: "only-model", QualityScore: 0.7}},
		Complexity: cascade.Simple,
	})
	require.Equal(t, cascade.StrategyDirect, d.Strategy)
	assert.Equal(t, "only-model", d.Verifier.Name)
}

func TestRoute_CascadesWithCheapestAsDrafter(t *testing.T) {
	d := Route(Input{
		Candidates: twoCandidates(),
		Complexity: cascade.Simple,
	})
	require.Equal(t, cascade.StrategyCascade, d.Strategy)
	require.NotNil(t, d.Drafter)
	require.NotNil(t, d.Verifier)
	assert.Equal(t, "gpt-4o-mini", d.Drafter.Name)
	assert.Equal(t, "gpt-4", d.Verifier.Name)
}

func TestRoute_TieBreakOnQualityThenSpeed(t *testing.T) {
	candidates := []cascade.ModelConfig{
		{Name: "model-a", CostPer1kInput: 0.001, CostPer1kOutput: 0.001, QualityScore: 0.8, SpeedMs: 500},
		{Name: "model-b", CostPer1kInput: 0.001, CostPer1kOutput: 0.001, QualityScore: 0.9, SpeedMs: 500},
		{Name: "model-c", CostPer1kInput: 0.002, CostPer1kOutput: 0.002, QualityScore: 0.95, SpeedMs: 100},
	}
	d := Route(Input{Candidates: candidates, Complexity: cascade.Simple})
	require.Equal(t, cascade.StrategyCascade, d.Strategy)
	assert.Equal(t, "model-b", d.Drafter.Name)
}

func TestRoute_ExcludedModelByDomainConfig(t *testing.T) {
	candidates := twoCandidates()
	d := Route(Input{
		Candidates:   candidates,
		Complexity:   cascade.Simple,
		DomainConfig: &cascade.DomainConfig{ExcludedModels: map[string]bool{"gpt-4o-mini": true}},
	})
	assert.Equal(t, cascade.StrategyDirect, d.Strategy)
	assert.Equal(t, "gpt-4", d.Verifier.Name)
}

func TestRoute_DeterministicGivenSameInput(t *testing.T) {
	in := Input{Candidates: twoCandidates(), Complexity: cascade.Moderate}
	first := Route(in)
	second := Route(in)
	assert.Equal(t, first, second)
}
