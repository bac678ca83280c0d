// Package classifier maps a query to a Complexity bucket and a Domain tag
// (spec §4.3, §4.4). Both classifiers are deterministic, pure functions of
// their input: no network calls, no hidden state, matching the "validators
// must be pure functions" discipline the spec applies elsewhere (§4.6) and
// the teacher's preference for stateless, composable heuristics.
package classifier

import (
	"regexp"
	"strings"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

// signal is one lazily-evaluated contribution to the complexity score. Each
// signal is independent so the classifier can be extended without touching
// existing signals (spec §4.3: "lazy sequence of signals").
type signal func(text string) float64

var (
	multiStepKeywords  = []string{"first", "then", "after that", "next", "finally", "step by step", "step-by-step"}
	conditionalKwds    = []string{"if ", "unless", "otherwise", "depending on", "in case"}
	iterativeKwds      = []string{"for each", "repeat", "loop", "iterate", "every time"}
	ambiguousKwds      = []string{"maybe", "could be", "not sure", "i think", "possibly"}
	codeFenceRe        = regexp.MustCompile("```|`[^`]+`")
	mathOperatorRe     = regexp.MustCompile(`[=+\-*/^]|\b(sqrt|integral|derivative|prove|theorem)\b`)
	domainTerminology  = []string{"algorithm", "architecture", "proof", "differential", "regulatory", "statute", "diagnosis", "treatment"}
)

// ComplexityResult is the classifier's output: the bucket plus a confidence
// score reflecting how clearly the signals agreed (spec §3).
type ComplexityResult struct {
	Level      cascade.Complexity
	Confidence float64
}

// Complexity thresholds for the weighted signal score (spec §4.3: "the score
// maps to buckets by monotonic thresholds"). Ties break toward the simpler
// bucket because each threshold is a strict '>' comparison.
var complexityThresholds = []struct {
	level cascade.Complexity
	min   float64
}{
	{cascade.Expert, 4.5},
	{cascade.Hard, 3.2},
	{cascade.Moderate, 1.8},
	{cascade.Simple, 0.6},
	{cascade.Trivial, 0},
}

// ClassifyComplexity computes a deterministic complexity bucket and
// confidence for the given text. Equal scores always map to the same
// bucket for the same input (spec §8 invariant 6 — deterministic routing).
func ClassifyComplexity(text string) ComplexityResult {
	signals := []signal{
		lengthSignal,
		keywordSignal(multiStepKeywords, 0.8),
		keywordSignal(conditionalKwds, 0.5),
		keywordSignal(iterativeKwds, 0.6),
		keywordSignal(ambiguousKwds, 0.4),
		codeFenceSignal,
		mathOperatorSignal,
		domainTerminologySignal,
	}

	lower := strings.ToLower(text)
	score := 0.0
	fired := 0
	for _, s := range signals {
		contribution := s(lower)
		if contribution > 0 {
			fired++
		}
		score += contribution
	}

	level := cascade.Trivial
	for _, bucket := range complexityThresholds {
		if score > bucket.min {
			level = bucket.level
			break
		}
	}

	// Confidence grows with the number of independently-agreeing signals and
	// caps at 1.0; a single weak signal yields a cautious confidence.
	confidence := 0.5 + 0.08*float64(fired)
	if confidence > 1.0 {
		confidence = 1.0
	}

	return ComplexityResult{Level: level, Confidence: confidence}
}

func lengthSignal(text string) float64 {
	n := len(strings.Fields(text))
	switch {
	case n > 150:
		return 2.5
	case n > 60:
		return 1.5
	case n > 25:
		return 0.8
	case n > 8:
		return 0.3
	default:
		return 0
	}
}

func keywordSignal(keywords []string, weight float64) signal {
	return func(text string) float64 {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return weight
			}
		}
		return 0
	}
}

func codeFenceSignal(text string) float64 {
	if codeFenceRe.MatchString(text) {
		return 1.2
	}
	return 0
}

func mathOperatorSignal(text string) float64 {
	matches := mathOperatorRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return 0
	}
	score := 0.3 * float64(len(matches))
	if score > 1.5 {
		score = 1.5
	}
	return score
}

func domainTerminologySignal(text string) float64 {
	for _, term := range domainTerminology {
		if strings.Contains(text, term) {
			return 0.6
		}
	}
	return 0
}
