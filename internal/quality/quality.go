// Package quality scores a draft response and resolves the acceptance
// threshold for it (spec §4.6). Every Method is a pure function of its
// inputs — no outbound network calls; semantic scoring takes a preloaded
// Embedder instead of fetching one.
package quality

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

// complexityThresholds is the adaptive default table from spec §4.6.
var complexityThresholds = map[cascade.Complexity]float64{
	cascade.Simple:   0.6,
	cascade.Moderate: 0.7,
	cascade.Hard:     0.8,
	cascade.Expert:   0.85,
}

const globalDefaultThreshold = 0.7

// Embedder produces a fixed-length embedding for a piece of text. A real
// implementation loads a model once at startup and is shared read-only
// (spec §5); it performs no network I/O per call.
type Embedder interface {
	Embed(text string) ([]float64, error)
}

// CustomFunc is the caller-supplied validator variant.
type CustomFunc func(query, response string, complexity cascade.Complexity, domain cascade.Domain) cascade.QualityScore

// Validator scores a draft response using the configured Method.
type Validator struct {
	Embedder Embedder
	Custom   CustomFunc
}

// NewValidator builds a Validator. Embedder and Custom may be nil; methods
// that need them return a failing score with an explanatory reason rather
// than panicking if the dependency is absent.
func NewValidator(embedder Embedder, custom CustomFunc) *Validator {
	return &Validator{Embedder: embedder, Custom: custom}
}

// ResolveThreshold implements the §4.6 resolution order: explicit per-request
// → domain config → complexity-adaptive map → global default.
func ResolveThreshold(explicit *float64, domainCfg *cascade.DomainConfig, complexity cascade.Complexity) float64 {
	if explicit != nil {
		return *explicit
	}
	if domainCfg != nil && domainCfg.Threshold > 0 {
		return domainCfg.Threshold
	}
	if t, ok := complexityThresholds[complexity]; ok {
		return t
	}
	return globalDefaultThreshold
}

// Score runs the given method and compares against threshold, setting
// Passed accordingly. Logprobs, if the provider supplied per-token
// confidences, feeds the logprob method; it may be nil for other methods.
func (v *Validator) Score(method cascade.ValidationMethod, query, response string, complexity cascade.Complexity, domain cascade.Domain, threshold float64, logprobs []float64) cascade.QualityScore {
	var score cascade.QualityScore

	switch method {
	case cascade.ValidateNone:
		score = cascade.QualityScore{Value: 1.0, Confidence: 1.0, Structure: 1.0, Safety: 1.0}

	case cascade.ValidateHeuristic:
		score = heuristicScore(response)

	case cascade.ValidateLogprob:
		score = logprobScore(logprobs)

	case cascade.ValidateSyntax:
		score = syntaxScore(domain, response)

	case cascade.ValidateSemantic:
		score = v.semanticScore(query, response)

	case cascade.ValidateFact, cascade.ValidateSafety:
		score = factSafetyScore(response)

	case cascade.ValidateCustom:
		if v.Custom != nil {
			score = v.Custom(query, response, complexity, domain)
		} else {
			score = cascade.QualityScore{Reason: "no custom validator configured"}
		}

	default:
		score = heuristicScore(response)
	}

	score.Passed = score.Value >= threshold
	if !score.Passed && score.Reason == "" {
		score.Reason = "quality score below threshold"
	}
	return score
}

func heuristicScore(response string) cascade.QualityScore {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return cascade.QualityScore{Value: 0, Reason: "empty response"}
	}

	lengthScore := 1.0
	if len(trimmed) < 10 {
		lengthScore = 0.3
	} else if len(trimmed) < 30 {
		lengthScore = 0.7
	}

	structureScore := 1.0
	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		structureScore = 0.6
	}

	value := 0.5*lengthScore + 0.5*structureScore
	return cascade.QualityScore{
		Value:     value,
		Structure: structureScore,
		Safety:    1.0,
	}
}

func logprobScore(logprobs []float64) cascade.QualityScore {
	if len(logprobs) == 0 {
		return cascade.QualityScore{Value: 0, Reason: "no logprobs supplied"}
	}
	sum := 0.0
	for _, lp := range logprobs {
		sum += lp
	}
	avg := sum / float64(len(logprobs))
	// Average per-token probability (logprobs are already probabilities in
	// [0,1] by the time they reach this validator — provider adapters
	// convert log-space to linear-space at the boundary).
	return cascade.QualityScore{Value: clamp01(avg), Confidence: clamp01(avg)}
}

var jsonBalancedRe = regexp.MustCompile(`^\s*[\{\[]`)

func syntaxScore(domain cascade.Domain, response string) cascade.QualityScore {
	trimmed := strings.TrimSpace(response)
	switch domain {
	case cascade.DomainCode:
		if strings.Count(trimmed, "{") == strings.Count(trimmed, "}") &&
			strings.Count(trimmed, "(") == strings.Count(trimmed, ")") {
			return cascade.QualityScore{Value: 0.9, Structure: 1.0}
		}
		return cascade.QualityScore{Value: 0.3, Structure: 0.3, Reason: "unbalanced code delimiters"}

	case cascade.DomainData, cascade.DomainStructured:
		var v any
		if json.Unmarshal([]byte(trimmed), &v) == nil {
			return cascade.QualityScore{Value: 0.95, Structure: 1.0}
		}
		return cascade.QualityScore{Value: 0.2, Structure: 0.2, Reason: "invalid JSON"}

	case cascade.DomainMath:
		if regexp.MustCompile(`[0-9=+\-*/]`).MatchString(trimmed) {
			return cascade.QualityScore{Value: 0.85, Structure: 0.9}
		}
		return cascade.QualityScore{Value: 0.4, Structure: 0.4, Reason: "no numeric/operator content"}

	case cascade.DomainTool:
		if jsonBalancedRe.MatchString(trimmed) {
			return cascade.QualityScore{Value: 0.9, Structure: 1.0}
		}
		return cascade.QualityScore{Value: 0.5, Structure: 0.5}

	default:
		return heuristicScore(response)
	}
}

func (v *Validator) semanticScore(query, response string) cascade.QualityScore {
	if v.Embedder == nil {
		return cascade.QualityScore{Value: 0, Reason: "no embedder configured"}
	}
	qVec, err := v.Embedder.Embed(query)
	if err != nil {
		return cascade.QualityScore{Value: 0, Reason: "embedding failed: " + err.Error()}
	}
	rVec, err := v.Embedder.Embed(response)
	if err != nil {
		return cascade.QualityScore{Value: 0, Reason: "embedding failed: " + err.Error()}
	}
	sim := cosineSimilarity(qVec, rVec)
	return cascade.QualityScore{Value: clamp01(sim), Alignment: clamp01(sim)}
}

var unsafePatterns = regexp.MustCompile(`(?i)\b(kill yourself|build a bomb|synthesize a virus)\b`)

func factSafetyScore(response string) cascade.QualityScore {
	if unsafePatterns.MatchString(response) {
		return cascade.QualityScore{Value: 0, Safety: 0, Reason: "unsafe content detected"}
	}
	base := heuristicScore(response)
	base.Safety = 1.0
	return base
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
