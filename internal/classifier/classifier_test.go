package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

func TestClassifyComplexity_TrivialQuery(t *testing.T) {
	res := ClassifyComplexity("What is 2+2?")
	assert.LessOrEqual(t, res.Level, cascade.Simple)
}

func TestClassifyComplexity_ExpertQuery(t *testing.T) {
	text := `First, prove that sqrt(2) is irrational. Then, if the proof holds, derive the
	implications step by step for each rational approximation, iterate until convergence,
	and finally summarize the algorithm's theorem. Consider the architecture of the proof
	and whether it is possibly ambiguous depending on the axioms chosen.`
	res := ClassifyComplexity(text)
	assert.GreaterOrEqual(t, res.Level, cascade.Hard)
}

func TestClassifyComplexity_Deterministic(t *testing.T) {
	text := "Explain the algorithm step by step, then summarize it."
	r1 := ClassifyComplexity(text)
	r2 := ClassifyComplexity(text)
	assert.Equal(t, r1, r2)
}

func TestClassifyComplexity_Monotonic(t *testing.T) {
	short := ClassifyComplexity("hi")
	long := ClassifyComplexity(`First do this, then do that, then if the first step fails,
	otherwise iterate through every item, repeat for each one, and finally prove the theorem
	with a derivative and an integral, referencing the architecture and the algorithm.`)
	assert.LessOrEqual(t, short.Level, long.Level)
}

func TestDomainClassifier_RuleBased(t *testing.T) {
	c := NewDomainClassifier(nil, 0)
	res := c.Classify("Please fix this bug in my function, it won't compile.")
	assert.Equal(t, cascade.DomainCode, res.Domain)
}

func TestDomainClassifier_NoMatchIsGeneral(t *testing.T) {
	c := NewDomainClassifier(nil, 0)
	res := c.Classify("zzz qqq xxx")
	assert.Equal(t, cascade.DomainGeneral, res.Domain)
}

type fakeEmbedding struct {
	domain cascade.Domain
	margin float64
	ok     bool
}

func (f fakeEmbedding) Classify(text string) (cascade.Domain, float64, bool) {
	return f.domain, f.margin, f.ok
}

func TestDomainClassifier_EmbeddingOverridesOnlyAboveFloor(t *testing.T) {
	c := NewDomainClassifier(fakeEmbedding{domain: cascade.DomainLegal, margin: 0.5, ok: true}, 0.2)
	res := c.Classify("Please fix this bug in my function, it won't compile.")
	assert.Equal(t, cascade.DomainLegal, res.Domain)

	c2 := NewDomainClassifier(fakeEmbedding{domain: cascade.DomainLegal, margin: 0.05, ok: true}, 0.2)
	res2 := c2.Classify("Please fix this bug in my function, it won't compile.")
	assert.Equal(t, cascade.DomainCode, res2.Domain)
}

type panickyEmbedding struct{}

func (panickyEmbedding) Classify(text string) (cascade.Domain, float64, bool) {
	panic("embedding backend exploded")
}

func TestDomainClassifier_DegradesSilentlyOnPanic(t *testing.T) {
	c := NewDomainClassifier(panickyEmbedding{}, 0.1)
	assert.NotPanics(t, func() {
		res := c.Classify("Please fix this bug in my function, it won't compile.")
		assert.Equal(t, cascade.DomainCode, res.Domain)
	})
}
