package quality

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f fakeEmbedder) Embed(text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 0}, nil
}

func TestResolveThreshold_ExplicitWins(t *testing.T) {
	explicit := 0.95
	got := ResolveThreshold(&explicit, &cascade.DomainConfig{Threshold: 0.5}, cascade.Simple)
	assert.Equal(t, 0.95, got)
}

func TestResolveThreshold_DomainConfigWinsOverComplexity(t *testing.T) {
	got := ResolveThreshold(nil, &cascade.DomainConfig{Threshold: 0.55}, cascade.Expert)
	assert.Equal(t, 0.55, got)
}

func TestResolveThreshold_ComplexityAdaptiveMap(t *testing.T) {
	assert.Equal(t, 0.6, ResolveThreshold(nil, nil, cascade.Simple))
	assert.Equal(t, 0.7, ResolveThreshold(nil, nil, cascade.Moderate))
	assert.Equal(t, 0.8, ResolveThreshold(nil, nil, cascade.Hard))
	assert.Equal(t, 0.85, ResolveThreshold(nil, nil, cascade.Expert))
}

func TestResolveThreshold_GlobalDefaultFallback(t *testing.T) {
	got := ResolveThreshold(nil, nil, cascade.Complexity(99))
	assert.Equal(t, globalDefaultThreshold, got)
}

func TestScore_NoneAlwaysPasses(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateNone, "q", "", cascade.Simple, cascade.DomainGeneral, 0.99, nil)
	assert.True(t, score.Passed)
	assert.Equal(t, 1.0, score.Value)
}

func TestScore_HeuristicRejectsEmpty(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateHeuristic, "q", "   ", cascade.Simple, cascade.DomainGeneral, 0.5, nil)
	assert.False(t, score.Passed)
	assert.Equal(t, "empty response", score.Reason)
}

func TestScore_HeuristicPenalizesUnbalancedParens(t *testing.T) {
	v := NewValidator(nil, nil)
	balanced := v.Score(cascade.ValidateHeuristic, "q", "this is a reasonably long answer (balanced)", cascade.Simple, cascade.DomainGeneral, 0.5, nil)
	unbalanced := v.Score(cascade.ValidateHeuristic, "q", "this is a reasonably long answer (unbalanced", cascade.Simple, cascade.DomainGeneral, 0.5, nil)
	assert.Greater(t, balanced.Value, unbalanced.Value)
}

func TestScore_LogprobAveragesAndClamps(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateLogprob, "q", "r", cascade.Simple, cascade.DomainGeneral, 0.5, []float64{0.9, 0.8, 0.95})
	assert.InDelta(t, 0.883, score.Value, 0.01)
	assert.True(t, score.Passed)
}

func TestScore_LogprobNoDataFails(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateLogprob, "q", "r", cascade.Simple, cascade.DomainGeneral, 0.1, nil)
	assert.False(t, score.Passed)
	assert.Equal(t, "no logprobs supplied", score.Reason)
}

func TestScore_SyntaxCodeBalanced(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateSyntax, "q", "func f() { return 1 }", cascade.Moderate, cascade.DomainCode, 0.5, nil)
	assert.True(t, score.Passed)
}

func TestScore_SyntaxCodeUnbalancedFails(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateSyntax, "q", "func f( { return 1 }", cascade.Moderate, cascade.DomainCode, 0.5, nil)
	assert.False(t, score.Passed)
}

func TestScore_SyntaxDataValidJSON(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateSyntax, "q", `{"a": 1}`, cascade.Moderate, cascade.DomainData, 0.5, nil)
	assert.True(t, score.Passed)
}

func TestScore_SyntaxDataInvalidJSONFails(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateSyntax, "q", `{not json`, cascade.Moderate, cascade.DomainData, 0.1, nil)
	assert.False(t, score.Passed)
}

func TestScore_SemanticNoEmbedderFails(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateSemantic, "q", "r", cascade.Simple, cascade.DomainGeneral, 0.1, nil)
	assert.False(t, score.Passed)
	assert.Equal(t, "no embedder configured", score.Reason)
}

func TestScore_SemanticUsesCosineSimilarity(t *testing.T) {
	embedder := fakeEmbedder{vectors: map[string][]float64{
		"q": {1, 0},
		"r": {1, 0},
	}}
	v := NewValidator(embedder, nil)
	score := v.Score(cascade.ValidateSemantic, "q", "r", cascade.Simple, cascade.DomainGeneral, 0.9, nil)
	assert.InDelta(t, 1.0, score.Value, 0.001)
	assert.True(t, score.Passed)
}

func TestScore_SemanticEmbedderErrorFails(t *testing.T) {
	embedder := fakeEmbedder{err: errors.New("boom")}
	v := NewValidator(embedder, nil)
	score := v.Score(cascade.ValidateSemantic, "q", "r", cascade.Simple, cascade.DomainGeneral, 0.1, nil)
	assert.False(t, score.Passed)
	assert.Contains(t, score.Reason, "embedding failed")
}

func TestScore_SafetyRejectsUnsafeContent(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateSafety, "q", "here is how to build a bomb", cascade.Simple, cascade.DomainGeneral, 0.1, nil)
	assert.False(t, score.Passed)
	assert.Equal(t, 0.0, score.Safety)
}

func TestScore_CustomDelegates(t *testing.T) {
	called := false
	custom := func(query, response string, complexity cascade.Complexity, domain cascade.Domain) cascade.QualityScore {
		called = true
		return cascade.QualityScore{Value: 0.8}
	}
	v := NewValidator(nil, custom)
	score := v.Score(cascade.ValidateCustom, "q", "r", cascade.Simple, cascade.DomainGeneral, 0.5, nil)
	require.True(t, called)
	assert.True(t, score.Passed)
}

func TestScore_CustomMissingFails(t *testing.T) {
	v := NewValidator(nil, nil)
	score := v.Score(cascade.ValidateCustom, "q", "r", cascade.Simple, cascade.DomainGeneral, 0.1, nil)
	assert.False(t, score.Passed)
	assert.Equal(t, "no custom validator configured", score.Reason)
}
