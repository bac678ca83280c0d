// Package budget implements the pre-flight admission control of spec §4.12:
// a synchronous, side-effect-free decision over a caller's tier and
// cumulative spend. Accounting updates happen after the request, in the
// cost calculator — this package never mutates spend itself.
package budget

import "github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"

// Decision is the admission verdict. On DEGRADE the pipeline narrows the
// candidates with ApplyDegrade to the single cheapest model, so the router
// routes directly to that one model rather than cascading between a pair,
// and lowers the quality threshold to the tier's floor (spec §4.12).
type Decision string

const (
	Allow   Decision = "ALLOW"
	Warn    Decision = "WARN"
	Block   Decision = "BLOCK"
	Degrade Decision = "DEGRADE"
)

// TierPolicy is one tier's spend envelope. WarnAt and BlockAt are fractions
// of MaxBudget ∈ (0,1]; DegradeAt additionally caps quality.
type TierPolicy struct {
	MaxBudget         float64
	WarnAtFraction    float64
	BlockAtFraction   float64
	DegradeAtFraction float64
	QualityFloor      float64
}

// DefaultTierPolicy is used for any tier not present in a Policy's table.
var DefaultTierPolicy = TierPolicy{
	MaxBudget:         0,
	WarnAtFraction:    0.8,
	BlockAtFraction:   1.0,
	DegradeAtFraction: 0.95,
	QualityFloor:      0.5,
}

// Policy maps tier name to its TierPolicy. The concrete tier → threshold
// table is left to configuration (spec §9 Open Question); this package only
// defines the evaluation contract.
type Policy struct {
	Tiers map[string]TierPolicy
}

// NewPolicy builds a Policy from a tier table. A nil/empty table makes every
// evaluation fall back to DefaultTierPolicy.
func NewPolicy(tiers map[string]TierPolicy) *Policy {
	return &Policy{Tiers: tiers}
}

// Outcome is the full admission verdict, including the resolved quality
// floor to apply when Decision is Degrade.
type Outcome struct {
	Decision     Decision
	QualityFloor float64
	Reason       string
}

// Evaluate is synchronous and side-effect-free (spec §4.12): given a tier
// and the caller's cumulative spend so far, it returns ALLOW, WARN, BLOCK,
// or DEGRADE. A TierPolicy with MaxBudget <= 0 never blocks on spend.
func (p *Policy) Evaluate(tier string, cumulativeSpend float64) Outcome {
	tp := DefaultTierPolicy
	if p != nil {
		if t, ok := p.Tiers[tier]; ok {
			tp = t
		}
	}

	if tp.MaxBudget <= 0 {
		return Outcome{Decision: Allow, QualityFloor: tp.QualityFloor}
	}

	ratio := cumulativeSpend / tp.MaxBudget

	switch {
	case ratio >= tp.BlockAtFraction:
		return Outcome{Decision: Block, QualityFloor: tp.QualityFloor, Reason: "cumulative spend exceeds tier budget"}
	case ratio >= tp.DegradeAtFraction:
		return Outcome{Decision: Degrade, QualityFloor: tp.QualityFloor, Reason: "cumulative spend near tier budget, degrading to cheapest capable model"}
	case ratio >= tp.WarnAtFraction:
		return Outcome{Decision: Warn, QualityFloor: tp.QualityFloor, Reason: "cumulative spend approaching tier budget"}
	default:
		return Outcome{Decision: Allow, QualityFloor: tp.QualityFloor}
	}
}

// ApplyDegrade narrows candidates to the single cheapest model (by combined
// per-1k input and output cost) when the admission outcome is Degrade, per
// spec §4.12. It does not check tool support, max_tokens or any other
// capability.
func ApplyDegrade(outcome Outcome, candidates []cascade.ModelConfig) []cascade.ModelConfig {
	if outcome.Decision != Degrade || len(candidates) == 0 {
		return candidates
	}
	cheapest := candidates[0]
	for _, c := range candidates[1:] {
		if c.CostPer1kInput+c.CostPer1kOutput < cheapest.CostPer1kInput+cheapest.CostPer1kOutput {
			cheapest = c
		}
	}
	return []cascade.ModelConfig{cheapest}
}
