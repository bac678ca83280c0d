package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemony-ai/cascadeflow-sub010/internal/budget"
	"github.com/lemony-ai/cascadeflow-sub010/internal/classifier"
	"github.com/lemony-ai/cascadeflow-sub010/internal/metrics"
	"github.com/lemony-ai/cascadeflow-sub010/internal/pricebook"
	"github.com/lemony-ai/cascadeflow-sub010/internal/quality"
	"github.com/lemony-ai/cascadeflow-sub010/internal/router"
	"github.com/lemony-ai/cascadeflow-sub010/internal/toolcall"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// Plan is the outcome of the pipeline's classify→admit→route phase, shared
// by Run and the streaming engine so both derive the same state machine
// (spec §4.9: "derives the same state machine but yields events as they
// occur").
type Plan struct {
	TraceID      string
	Messages     []provider.Message
	Complexity   classifier.ComplexityResult
	Domain       classifier.DomainResult
	ComplexityMs int64
	Decision     router.Decision
	Admission    budget.Outcome
	Threshold    float64
	Method       cascade.ValidationMethod
	// Release must be called exactly once on every exit path once the
	// drafter/verifier calls this plan admitted are done (spec §4.11:
	// "end_request() is mandatory on any exit path").
	Release func()
}

// Plan runs classification, admission, and routing — the portion of the
// state machine that is identical whether the caller wants a single Result
// (Run) or a live event sequence (streaming.Engine).
func (p *Pipeline) Plan(ctx context.Context, query cascade.Query, opts Options) (*Plan, error) {
	if query.IsEmpty() {
		return nil, provider.NewError(provider.KindBadRequest, "", "query is empty", nil)
	}

	traceID := uuid.NewString()
	p.fire(metrics.EventQueryStart, metrics.Payload{"trace_id": traceID})

	messages := query.Normalize(opts.SystemPrompt)
	text := query.Text()

	complexityStart := time.Now()
	var complexityResult classifier.ComplexityResult
	var domainResult classifier.DomainResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		complexityResult = classifier.ClassifyComplexity(text)
	}()
	go func() {
		defer wg.Done()
		domainClassifier := classifier.NewDomainClassifier(p.Deps.Embedding, p.Deps.MarginFloor)
		domainResult = domainClassifier.Classify(text)
	}()
	wg.Wait()
	complexityMs := time.Since(complexityStart).Milliseconds()

	p.fire(metrics.EventComplexityDetected, metrics.Payload{
		"trace_id":   traceID,
		"complexity": complexityResult.Level.String(),
		"domain":     string(domainResult.Domain),
	})

	domainCfg, hasDomainCfg := p.Domains[domainResult.Domain]

	admission := budget.Outcome{Decision: budget.Allow}
	if p.Deps.Budget != nil {
		admission = p.Deps.Budget.Evaluate(opts.Tier, opts.CumulativeSpend)
	}

	candidates := p.Candidates
	if admission.Decision == budget.Degrade {
		candidates = budget.ApplyDegrade(admission, candidates)
	}

	intent := cascade.ToolCallIntent{}
	toolsPresent := len(opts.Tools) > 0
	var toolRisks []cascade.RiskTier
	if toolsPresent && p.Deps.Detector != nil {
		intent = p.Deps.Detector.Detect(text, nil)
		for _, t := range opts.Tools {
			toolRisks = append(toolRisks, toolcall.RiskForTool(t.Name, nil))
		}
	}

	var domainCfgPtr *cascade.DomainConfig
	if hasDomainCfg {
		domainCfgPtr = &domainCfg
	}

	var unavailable map[string]bool
	if p.Deps.Breakers != nil {
		unavailable = p.Deps.Breakers.Unavailable()
	}

	decision := router.Route(router.Input{
		Complexity:           complexityResult.Level,
		Domain:               domainResult.Domain,
		DomainConfig:         domainCfgPtr,
		ToolsPresent:         toolsPresent,
		ToolRisks:            toolRisks,
		Candidates:           candidates,
		Admission:            admission,
		ToolIntent:           intent,
		ForceDirect:          opts.ForceDirect,
		MaxTokensHint:        opts.MaxTokens,
		UnavailableProviders: unavailable,
	})

	p.fire(metrics.EventStrategySelected, metrics.Payload{
		"trace_id": traceID,
		"strategy": string(decision.Strategy),
		"reasons":  decision.Reasons,
	})

	plan := &Plan{
		TraceID:      traceID,
		Messages:     messages,
		Complexity:   complexityResult,
		Domain:       domainResult,
		ComplexityMs: complexityMs,
		Decision:     decision,
		Admission:    admission,
		Release:      func() {},
	}

	if decision.Strategy == cascade.StrategySkip {
		return plan, provider.NewError(provider.KindAdmission, "router", joinReasons(decision.Reasons), nil)
	}

	if p.Deps.RateLimiter != nil {
		providerName := decision.Verifier.Provider
		if decision.Strategy == cascade.StrategyCascade {
			providerName = decision.Drafter.Provider
		}
		estimate := pricebook.EstimateTokens(text)
		out := p.Deps.RateLimiter.StartRequest(providerName, estimate)
		if !out.Allowed {
			return plan, &provider.Error{Kind: provider.KindAdmission, Component: providerName, Message: out.Reason, RetryAfterMs: out.RetryAfterMs}
		}
		released := false
		plan.Release = func() {
			if released {
				return
			}
			released = true
			p.Deps.RateLimiter.EndRequest(providerName)
		}
	}

	threshold := quality.ResolveThreshold(opts.QualityThreshold, domainCfgPtr, complexityResult.Level)
	if admission.Decision == budget.Degrade && admission.QualityFloor > 0 && admission.QualityFloor < threshold {
		threshold = admission.QualityFloor
	}
	method := opts.QualityMethod
	if method == "" && hasDomainCfg && domainCfg.Method != "" {
		method = domainCfg.Method
	}
	if method == "" {
		method = cascade.ValidateHeuristic
	}
	plan.Threshold = threshold
	plan.Method = method

	return plan, nil
}
