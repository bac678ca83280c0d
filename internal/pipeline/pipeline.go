// Package pipeline implements the Cascade Pipeline, CascadeFlow's core
// orchestrator (spec §4.8): normalize → classify → route → admit →
// draft → (tool loop | validate/escalate) → result. Grounded on the
// teacher's internal/orchestration.Router for the classify-then-dispatch
// shape, generalized into a full state machine with its own admission,
// drafting, and escalation steps.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lemony-ai/cascadeflow-sub010/internal/budget"
	"github.com/lemony-ai/cascadeflow-sub010/internal/classifier"
	"github.com/lemony-ai/cascadeflow-sub010/internal/logging"
	"github.com/lemony-ai/cascadeflow-sub010/internal/metrics"
	"github.com/lemony-ai/cascadeflow-sub010/internal/pricebook"
	"github.com/lemony-ai/cascadeflow-sub010/internal/quality"
	"github.com/lemony-ai/cascadeflow-sub010/internal/ratelimit"
	"github.com/lemony-ai/cascadeflow-sub010/internal/router"
	"github.com/lemony-ai/cascadeflow-sub010/internal/tracing"
	"github.com/lemony-ai/cascadeflow-sub010/internal/toolcall"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// ToolExecutor runs one validated tool call and returns its result text (or
// an error, reported as a TOOL_ERROR event by the caller).
type ToolExecutor func(ctx context.Context, call provider.ToolCall) (string, error)

// Deps bundles every shared, process-wide collaborator the pipeline needs.
// All fields are read-only during a request (spec §5).
type Deps struct {
	Providers    map[string]provider.Provider // keyed by ModelConfig.Provider
	PriceCalc    *pricebook.Calculator
	Quality      *quality.Validator
	Detector     *toolcall.Detector
	Validator    *toolcall.Validator
	ToolExecutor ToolExecutor
	RateLimiter  *ratelimit.Limiter
	Breakers     *ratelimit.Breakers
	Budget       *budget.Policy
	Metrics      *metrics.Manager
	Embedding    classifier.EmbeddingStrategy
	MarginFloor  float64
	Logger       *logging.Logger
}

// Options customizes one Run/Stream call (spec §6).
type Options struct {
	SystemPrompt     string
	Tools            []provider.ToolSpec
	ForceDirect      bool
	Tier             string
	CumulativeSpend  float64
	MaxRetries       int
	MaxToolSteps     int
	QualityThreshold *float64
	QualityMethod    cascade.ValidationMethod
	Temperature      float64
	MaxTokens        int
	// DeadlineMs is the per-request timeout (spec §6 "deadline_ms: int").
	// nil means no deadline. A non-nil value of 0 (or less) is a literal
	// edge case, not "unset": it fails immediately with KindTimeout and no
	// provider call (spec §8 "Deadline=0 ⇒ immediate timeout error with no
	// side effects").
	DeadlineMs *int64
}

func (o Options) maxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

func (o Options) maxToolSteps() int {
	if o.MaxToolSteps > 0 {
		return o.MaxToolSteps
	}
	return 5
}

// Pipeline runs requests against one immutable set of candidate models
// (spec §3 "Lifecycle": "a new agent is built for a new configuration").
type Pipeline struct {
	Deps       Deps
	Candidates []cascade.ModelConfig
	Domains    map[cascade.Domain]cascade.DomainConfig
}

// New builds a Pipeline over the given dependencies and candidate models.
func New(deps Deps, candidates []cascade.ModelConfig, domains map[cascade.Domain]cascade.DomainConfig) *Pipeline {
	return &Pipeline{Deps: deps, Candidates: candidates, Domains: domains}
}

// Run executes one request to completion (spec §4.8 "run(query, options) →
// CascadeResult").
func (p *Pipeline) Run(ctx context.Context, query cascade.Query, opts Options) (*cascade.Result, error) {
	start := time.Now()
	state := StateInit

	if opts.DeadlineMs != nil {
		if *opts.DeadlineMs <= 0 {
			return nil, provider.NewError(provider.KindTimeout, "", "deadline_ms=0: immediate timeout", nil)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*opts.DeadlineMs)*time.Millisecond)
		defer cancel()
	}

	plan, err := p.Plan(ctx, query, opts)
	if err != nil {
		state = StateBlocked
		return nil, err
	}
	defer plan.Release()

	traceID := plan.TraceID
	ctx, span := tracing.StartSpan(ctx, "cascadeflow.pipeline.run", trace.WithAttributes(attribute.String("trace_id", traceID)))
	defer span.End()

	decision := plan.Decision
	state = StateAdmitted

	result := &cascade.Result{
		TraceID:         traceID,
		RoutingStrategy: decision.Strategy,
		Complexity:      plan.Complexity.Level,
		Domain:          plan.Domain.Domain,
		Cascaded:        decision.Strategy == cascade.StrategyCascade,
		Timing:          cascade.Timing{ComplexityMs: plan.ComplexityMs},
	}

	switch decision.Strategy {
	case cascade.StrategyDirect:
		state = StateDirect
		err = p.runDirect(ctx, result, decision, plan.Messages, opts, traceID)
	case cascade.StrategyCascade:
		state = StateDrafting
		err = p.runCascade(ctx, result, decision, plan.Messages, opts, traceID, plan.Threshold, plan.Method)
	}

	result.Timing.TotalMs = time.Since(start).Milliseconds()
	result.Timing.OverheadMs = result.Timing.TotalMs - result.Timing.ComplexityMs - result.Timing.DraftMs - result.Timing.VerifyMs

	if err != nil {
		state = StateError
		p.fire(metrics.EventQueryError, metrics.Payload{"trace_id": traceID, "error": err.Error()})
		return nil, err
	}

	state = StateDone
	p.fire(metrics.EventQueryComplete, metrics.Payload{"trace_id": traceID, "model_used": result.ModelUsed})
	metrics.RecordCostSaved(string(result.Domain), result.Cost.CostSaved)
	span.SetAttributes(attribute.String("cascadeflow.final_state", string(state)))
	return result, nil
}

func (p *Pipeline) runDirect(ctx context.Context, result *cascade.Result, decision router.Decision, messages []provider.Message, opts Options, traceID string) error {
	model := decision.Verifier
	prov, ok := p.Deps.Providers[model.Provider]
	if !ok {
		return provider.NewError(provider.KindConfig, model.Provider, "no provider registered for "+model.Provider, nil)
	}

	start := time.Now()
	resp, attempts, err := p.callModel(ctx, prov, model, messages, opts)
	result.Timing.VerifyMs = time.Since(start).Milliseconds()
	if err != nil {
		return err
	}

	result.Content = resp.Content
	result.ModelUsed = model.Name
	result.DraftAccepted = false
	result.Cost = p.Deps.PriceCalc.Direct(model.Name, cascade.Usage(resp.Usage), model)
	result.VerifierResponse = resp.Content
	_ = attempts

	if len(resp.ToolCalls) > 0 {
		return p.runToolLoop(ctx, result, prov, model, messages, resp, opts, traceID)
	}
	return nil
}

func (p *Pipeline) callModel(ctx context.Context, prov provider.Provider, model *cascade.ModelConfig, messages []provider.Message, opts Options) (*provider.Response, int, error) {
	req := provider.Request{
		Messages:    messages,
		Model:       model.Name,
		MaxTokens:   model.MaxTokens,
		Temperature: opts.Temperature,
		Tools:       opts.Tools,
	}
	p.fire(metrics.EventModelCallStart, metrics.Payload{"model": model.Name})

	var resp *provider.Response
	var attempts int
	call := func() error {
		var callErr error
		resp, attempts, callErr = generateWithRetry(ctx, prov, req, opts.maxRetries(), nil)
		return callErr
	}

	var err error
	if p.Deps.Breakers != nil {
		err = p.Deps.Breakers.For(model.Provider).Execute(call)
		if errors.Is(err, ratelimit.ErrOpen) {
			err = provider.NewError(provider.KindTransientProvider, model.Provider, "circuit breaker open for provider "+model.Provider, err)
		}
	} else {
		err = call()
	}

	if err != nil {
		p.fire(metrics.EventModelCallError, metrics.Payload{"model": model.Name, "error": err.Error()})
		return nil, attempts, err
	}
	p.fire(metrics.EventModelCallComplete, metrics.Payload{"model": model.Name, "attempts": attempts})
	return resp, attempts, nil
}

func (p *Pipeline) fire(event metrics.Event, payload metrics.Payload) {
	if p.Deps.Metrics == nil {
		return
	}
	p.Deps.Metrics.Fire(event, payload)
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	if out == "" {
		return "no reason given"
	}
	return out
}

func toJSONArgs(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
