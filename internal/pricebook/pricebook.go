// Package pricebook resolves (provider, model) pairs to USD-per-1k pricing
// and turns Usage into a cascade.CostBreakdown. Grounded on the teacher's
// internal/llm/cost.Calculator (longest-prefix model lookup, RWMutex-guarded
// registry, defensive copies) but generalized to cascade accounting: draft
// vs. verifier billing, bigonly cost, and signed savings (spec §4.2).
package pricebook

import (
	"strings"
	"sync"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

// Price is the resolved per-1k-token pricing for one model.
type Price struct {
	InputPer1k  float64
	OutputPer1k float64
	CachedPer1k float64
}

// PriceBook is a read-during-request, hot-swappable pricing registry.
// Resolution priority (spec §4.2): provider-reported cost is applied by the
// caller before reaching here; then this registry; then the caller-supplied
// ModelConfig; then zero.
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]Price
}

// New creates a PriceBook seeded with a small internal registry of common
// models. Callers layer an external pricing table on top via Load.
func New() *PriceBook {
	pb := &PriceBook{prices: make(map[string]Price)}
	pb.loadInternalRegistry()
	return pb
}

func (pb *PriceBook) loadInternalRegistry() {
	defaults := map[string]Price{
		"gpt-4o":            {InputPer1k: 0.0025, OutputPer1k: 0.01, CachedPer1k: 0.00125},
		"gpt-4o-mini":       {InputPer1k: 0.00015, OutputPer1k: 0.0006, CachedPer1k: 0.000075},
		"gpt-4-turbo":       {InputPer1k: 0.01, OutputPer1k: 0.03},
		"gpt-3.5-turbo":     {InputPer1k: 0.0005, OutputPer1k: 0.0015},
		"claude-3-5-sonnet": {InputPer1k: 0.003, OutputPer1k: 0.015, CachedPer1k: 0.0003},
		"claude-3-5-haiku":  {InputPer1k: 0.001, OutputPer1k: 0.005, CachedPer1k: 0.0001},
		"claude-3-opus":     {InputPer1k: 0.015, OutputPer1k: 0.075, CachedPer1k: 0.0015},
		"groq/llama":        {InputPer1k: 0.00005, OutputPer1k: 0.00008},
		"ollama/":           {InputPer1k: 0, OutputPer1k: 0},
		"vllm/":             {InputPer1k: 0, OutputPer1k: 0},
	}
	for model, price := range defaults {
		pb.prices[model] = price
	}
}

// Load installs (or replaces) an external pricing table in one atomic swap,
// the "hot-reload via a dedicated swap" mechanism named in spec §5. Entries
// in table override the internal registry; models the table does not list
// keep their internal registry price.
func (pb *PriceBook) Load(table map[string]Price) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	next := make(map[string]Price, len(table))
	(&PriceBook{prices: next}).loadInternalRegistry()
	for k, v := range table {
		next[k] = v
	}
	pb.prices = next
}

// Resolve looks up pricing for a model: exact match first, then
// longest-prefix match (so "ollama/llama3.1" resolves via the "ollama/"
// entry), then the caller-supplied ModelConfig as fallback, then zero.
func (pb *PriceBook) Resolve(model string, fallback *cascade.ModelConfig) Price {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	if p, ok := pb.prices[model]; ok {
		return p
	}

	var best string
	for key := range pb.prices {
		if strings.HasPrefix(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return pb.prices[best]
	}

	if fallback != nil {
		return Price{
			InputPer1k:  fallback.CostPer1kInput,
			OutputPer1k: fallback.CostPer1kOutput,
		}
	}

	return Price{}
}

// Cost computes cost = (input*p_in + output*p_out + cached*p_cached) / 1000,
// per the load-bearing formula in spec §4.2 — never derived from a single
// "cost per 1k" scalar multiplied by a possibly-missing token count.
func Cost(usage cascade.Usage, price Price) float64 {
	cached := 0
	if usage.CachedInputTokens != nil {
		cached = *usage.CachedInputTokens
	}
	return (float64(usage.InputTokens)*price.InputPer1k +
		float64(usage.OutputTokens)*price.OutputPer1k +
		float64(cached)*price.CachedPer1k) / 1000.0
}

// EstimateTokens is the fallback token estimator from free text (spec §4.2):
// max(1, round(1.3 * word_count)). Monotonic in word count (spec §8).
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 1
	}
	est := int(1.3*float64(words) + 0.5)
	if est < 1 {
		est = 1
	}
	return est
}

// Calculator turns resolved usage into a cascade.CostBreakdown, implementing
// the accepted/rejected cost math of spec §4.2.
type Calculator struct {
	Book *PriceBook
}

// NewCalculator builds a Calculator over the given PriceBook.
func NewCalculator(book *PriceBook) *Calculator {
	return &Calculator{Book: book}
}

// DraftAccepted computes the breakdown when the draft was accepted: only the
// draft is billed, and bigonly_cost is the hypothetical cost of having
// served the same query with the verifier alone.
func (c *Calculator) DraftAccepted(draftModel string, draftUsage cascade.Usage, draftFallback *cascade.ModelConfig, verifierModel string, verifierFallback *cascade.ModelConfig) cascade.CostBreakdown {
	draftPrice := c.Book.Resolve(draftModel, draftFallback)
	draftCost := Cost(draftUsage, draftPrice)

	verifierPrice := c.Book.Resolve(verifierModel, verifierFallback)
	bigOnly := (float64(draftUsage.InputTokens)*verifierPrice.InputPer1k +
		float64(draftUsage.OutputTokens)*verifierPrice.OutputPer1k) / 1000.0

	saved := bigOnly - draftCost
	percent := 0.0
	if bigOnly > 0 {
		percent = saved / bigOnly * 100
	}

	return cascade.CostBreakdown{
		DraftCost:      draftCost,
		VerifierCost:   0,
		TotalCost:      draftCost,
		BigOnlyCost:    bigOnly,
		CostSaved:      saved,
		SavingsPercent: percent,
		DraftTokens:    draftUsage.TotalTokens,
		VerifierTokens: 0,
		TotalTokens:    draftUsage.TotalTokens,
		WasCascaded:    true,
		DraftAccepted:  true,
		Estimated:      draftUsage.TotalTokens == 0,
		Metadata:       map[string]any{"draft_model": draftModel, "verifier_model": verifierModel},
	}
}

// DraftRejected computes the breakdown when the draft was rejected: both
// calls are billed, the verifier's input usage already includes the
// original prompt plus the draft as context (the caller constructs
// verifierUsage that way), and bigonly_cost equals verifier_cost.
func (c *Calculator) DraftRejected(draftModel string, draftUsage cascade.Usage, draftFallback *cascade.ModelConfig, verifierModel string, verifierUsage cascade.Usage, verifierFallback *cascade.ModelConfig) cascade.CostBreakdown {
	draftPrice := c.Book.Resolve(draftModel, draftFallback)
	draftCost := Cost(draftUsage, draftPrice)

	verifierPrice := c.Book.Resolve(verifierModel, verifierFallback)
	verifierCost := Cost(verifierUsage, verifierPrice)

	total := draftCost + verifierCost

	return cascade.CostBreakdown{
		DraftCost:      draftCost,
		VerifierCost:   verifierCost,
		TotalCost:      total,
		BigOnlyCost:    verifierCost,
		CostSaved:      -draftCost,
		SavingsPercent: 0,
		DraftTokens:    draftUsage.TotalTokens,
		VerifierTokens: verifierUsage.TotalTokens,
		TotalTokens:    draftUsage.TotalTokens + verifierUsage.TotalTokens,
		WasCascaded:    true,
		DraftAccepted:  false,
		Estimated:      draftUsage.TotalTokens == 0 || verifierUsage.TotalTokens == 0,
		Metadata:       map[string]any{"draft_model": draftModel, "verifier_model": verifierModel},
	}
}

// Direct computes the breakdown for a direct (non-cascaded) request: one
// model is billed, bigonly_cost equals that same cost, so cost_saved is
// always zero — there was no cheaper alternative attempted.
func (c *Calculator) Direct(model string, usage cascade.Usage, fallback *cascade.ModelConfig) cascade.CostBreakdown {
	price := c.Book.Resolve(model, fallback)
	cost := Cost(usage, price)

	return cascade.CostBreakdown{
		DraftCost:      0,
		VerifierCost:   cost,
		TotalCost:      cost,
		BigOnlyCost:    cost,
		CostSaved:      0,
		SavingsPercent: 0,
		DraftTokens:    0,
		VerifierTokens: usage.TotalTokens,
		TotalTokens:    usage.TotalTokens,
		WasCascaded:    false,
		DraftAccepted:  false,
		Estimated:      usage.TotalTokens == 0,
		Metadata:       map[string]any{"model": model},
	}
}

// Sum aggregates a batch of breakdowns; cost calc is associative (spec §8):
// summing per-request breakdowns equals computing the batch in aggregate,
// ignoring cached-field metadata which is necessarily per-request.
func Sum(breakdowns []cascade.CostBreakdown) cascade.CostBreakdown {
	var total cascade.CostBreakdown
	for _, b := range breakdowns {
		total.DraftCost += b.DraftCost
		total.VerifierCost += b.VerifierCost
		total.TotalCost += b.TotalCost
		total.BigOnlyCost += b.BigOnlyCost
		total.CostSaved += b.CostSaved
		total.DraftTokens += b.DraftTokens
		total.VerifierTokens += b.VerifierTokens
		total.TotalTokens += b.TotalTokens
		if b.Estimated {
			total.Estimated = true
		}
	}
	if total.BigOnlyCost > 0 {
		total.SavingsPercent = total.CostSaved / total.BigOnlyCost * 100
	}
	return total
}
