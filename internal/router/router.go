// Package router chooses a request's strategy (direct, cascade, skip) and
// model pair (spec §4.7), grounded on the teacher's
// internal/orchestration.Router — both classify-then-dispatch, but this
// router's classification inputs are already-computed complexity/domain/
// risk signals rather than a second agent call, and its output is a
// RoutingDecision rather than a delegated agent response.
package router

import (
	"sort"

	"github.com/lemony-ai/cascadeflow-sub010/internal/budget"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

// Decision is the router's output (spec §4.7).
type Decision struct {
	Strategy cascade.Strategy
	Drafter  *cascade.ModelConfig
	Verifier *cascade.ModelConfig
	Reasons  []string
}

// Input bundles everything the router needs to decide (spec §4.7: "query,
// complexity, domain, tools[], candidate models, budget/tier decision,
// tool-call intent").
type Input struct {
	Complexity    cascade.Complexity
	Domain        cascade.Domain
	DomainConfig  *cascade.DomainConfig
	ToolsPresent  bool
	ToolRisks     []cascade.RiskTier
	Candidates    []cascade.ModelConfig
	Admission     budget.Outcome
	ToolIntent    cascade.ToolCallIntent
	ForceDirect   bool
	MaxTokensHint int
	// UnavailableProviders names providers a circuit breaker has tripped
	// open for (spec-supplemented circuit breaker); capableCandidates
	// excludes their models the same way it excludes deprecated ones. The
	// caller computes this set before calling Route so Route itself stays a
	// pure function of Input.
	UnavailableProviders map[string]bool
}

// Route implements the §4.7 decision order: admission BLOCK → tool risk →
// force_direct/expert/domain-requires-verifier → single candidate →
// cascade. The decision is a pure function of Input — deterministic given
// the same inputs (spec §8 invariant 6).
func Route(in Input) Decision {
	if in.Admission.Decision == budget.Block {
		return Decision{Strategy: cascade.StrategySkip, Reasons: []string{"admission policy BLOCK: " + in.Admission.Reason}}
	}

	candidates := capableCandidates(in)
	if len(candidates) == 0 {
		return Decision{Strategy: cascade.StrategySkip, Reasons: []string{"no capable candidate models"}}
	}

	for _, risk := range in.ToolRisks {
		if risk == cascade.RiskHigh || risk == cascade.RiskCritical {
			verifier := bestQualityCandidate(candidates)
			return Decision{
				Strategy: cascade.StrategyDirect,
				Verifier: verifier,
				Reasons:  []string{"tool risk tier " + string(risk) + " forces direct(verifier)"},
			}
		}
	}

	domainRequiresVerifier := in.DomainConfig != nil && in.DomainConfig.RequiresVerifier
	if in.ForceDirect || in.Complexity == cascade.Expert || domainRequiresVerifier {
		verifier := bestQualityCandidate(candidates)
		reason := "forced direct"
		switch {
		case in.ForceDirect:
			reason = "force_direct requested"
		case in.Complexity == cascade.Expert:
			reason = "complexity=expert requires verifier"
		case domainRequiresVerifier:
			reason = "domain " + string(in.Domain) + " requires verifier"
		}
		return Decision{Strategy: cascade.StrategyDirect, Verifier: verifier, Reasons: []string{reason}}
	}

	if len(candidates) == 1 {
		return Decision{Strategy: cascade.StrategyDirect, Verifier: &candidates[0], Reasons: []string{"single capable candidate"}}
	}

	ordered := sortedByCost(candidates)
	drafter := ordered[0]
	verifier := ordered[1]
	return Decision{
		Strategy: cascade.StrategyCascade,
		Drafter:  &drafter,
		Verifier: &verifier,
		Reasons:  []string{"cascade: drafter=cheapest capable, verifier=next capable"},
	}
}

// capableCandidates filters by spec §4.7's "capable" definition: supports
// tools if tools present, within max_tokens, not deprecated, not excluded
// by domain config.
func capableCandidates(in Input) []cascade.ModelConfig {
	var excluded map[string]bool
	if in.DomainConfig != nil {
		excluded = in.DomainConfig.ExcludedModels
	}

	out := make([]cascade.ModelConfig, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		if c.Deprecated {
			continue
		}
		if in.ToolsPresent && !c.SupportsTools {
			continue
		}
		if in.MaxTokensHint > 0 && c.MaxTokens > 0 && c.MaxTokens < in.MaxTokensHint {
			continue
		}
		if excluded != nil && excluded[c.Name] {
			continue
		}
		if in.UnavailableProviders != nil && in.UnavailableProviders[c.Provider] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// costOf is total cost per combined 1k tokens, the ordering key for
// "cheapest" and "next capable".
func costOf(m cascade.ModelConfig) float64 {
	return m.CostPer1kInput + m.CostPer1kOutput
}

// sortedByCost orders candidates ascending by cost, applying the §4.7
// tie-break: higher quality_score, then lower speed_ms, then stable
// configuration order (sort.SliceStable preserves input order on ties).
func sortedByCost(candidates []cascade.ModelConfig) []cascade.ModelConfig {
	ordered := make([]cascade.ModelConfig, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if costOf(a) != costOf(b) {
			return costOf(a) < costOf(b)
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		if a.SpeedMs != b.SpeedMs {
			return a.SpeedMs < b.SpeedMs
		}
		return false
	})
	return ordered
}

// bestQualityCandidate picks the single best candidate for a direct/verifier
// role: cheapest among those with the highest quality_score, using the same
// tie-break chain as sortedByCost.
func bestQualityCandidate(candidates []cascade.ModelConfig) *cascade.ModelConfig {
	ordered := make([]cascade.ModelConfig, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		if costOf(a) != costOf(b) {
			return costOf(a) < costOf(b)
		}
		if a.SpeedMs != b.SpeedMs {
			return a.SpeedMs < b.SpeedMs
		}
		return false
	})
	best := ordered[0]
	return &best
}
