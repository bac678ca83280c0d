package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

func TestEvaluate_NoBudgetAlwaysAllows(t *testing.T) {
	p := NewPolicy(nil)
	out := p.Evaluate("free", 1_000_000)
	assert.Equal(t, Allow, out.Decision)
}

func TestEvaluate_BelowWarnThresholdAllows(t *testing.T) {
	p := NewPolicy(map[string]TierPolicy{
		"pro": {MaxBudget: 100, WarnAtFraction: 0.8, BlockAtFraction: 1.0, DegradeAtFraction: 0.95},
	})
	out := p.Evaluate("pro", 10)
	assert.Equal(t, Allow, out.Decision)
}

func TestEvaluate_WarnThreshold(t *testing.T) {
	p := NewPolicy(map[string]TierPolicy{
		"pro": {MaxBudget: 100, WarnAtFraction: 0.8, BlockAtFraction: 1.0, DegradeAtFraction: 0.95},
	})
	out := p.Evaluate("pro", 85)
	assert.Equal(t, Warn, out.Decision)
}

func TestEvaluate_DegradeThreshold(t *testing.T) {
	p := NewPolicy(map[string]TierPolicy{
		"pro": {MaxBudget: 100, WarnAtFraction: 0.8, BlockAtFraction: 1.0, DegradeAtFraction: 0.95, QualityFloor: 0.4},
	})
	out := p.Evaluate("pro", 96)
	assert.Equal(t, Degrade, out.Decision)
	assert.Equal(t, 0.4, out.QualityFloor)
}

func TestEvaluate_BlockThreshold(t *testing.T) {
	p := NewPolicy(map[string]TierPolicy{
		"pro": {MaxBudget: 100, WarnAtFraction: 0.8, BlockAtFraction: 1.0, DegradeAtFraction: 0.95},
	})
	out := p.Evaluate("pro", 150)
	assert.Equal(t, Block, out.Decision)
}

func TestEvaluate_UnknownTierUsesDefault(t *testing.T) {
	p := NewPolicy(map[string]TierPolicy{"pro": {MaxBudget: 100}})
	out := p.Evaluate("unknown-tier", 1_000_000)
	assert.Equal(t, Allow, out.Decision)
}

func TestApplyDegrade_NarrowsToCheapest(t *testing.T) {
	candidates := []cascade.ModelConfig{
		{Name: "expensive", CostPer1kInput: 0.01, CostPer1kOutput: 0.03},
		{Name: "cheap", CostPer1kInput: 0.001, CostPer1kOutput: 0.002},
	}
	out := Outcome{Decision: Degrade}
	narrowed := ApplyDegrade(out, candidates)
	assert.Len(t, narrowed, 1)
	assert.Equal(t, "cheap", narrowed[0].Name)
}

func TestApplyDegrade_NonDegradeLeavesUntouched(t *testing.T) {
	candidates := []cascade.ModelConfig{{Name: "a"}, {Name: "b"}}
	out := Outcome{Decision: Allow}
	narrowed := ApplyDegrade(out, candidates)
	assert.Len(t, narrowed, 2)
}
