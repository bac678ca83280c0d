// Package cascadeflow is the process-level external interface (spec §6):
// construct an Agent from ModelConfigs and optional policy, then call
// Run/Stream/RunBatch against it. Grounded on the teacher's top-level
// aixgo.go/runtime.go construction pattern (a single entry point wiring
// config, providers, and the orchestration layer together).
package cascadeflow

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lemony-ai/cascadeflow-sub010/internal/budget"
	"github.com/lemony-ai/cascadeflow-sub010/internal/classifier"
	"github.com/lemony-ai/cascadeflow-sub010/internal/logging"
	"github.com/lemony-ai/cascadeflow-sub010/internal/metrics"
	"github.com/lemony-ai/cascadeflow-sub010/internal/pipeline"
	"github.com/lemony-ai/cascadeflow-sub010/internal/pricebook"
	"github.com/lemony-ai/cascadeflow-sub010/internal/quality"
	"github.com/lemony-ai/cascadeflow-sub010/internal/ratelimit"
	"github.com/lemony-ai/cascadeflow-sub010/internal/streaming"
	"github.com/lemony-ai/cascadeflow-sub010/internal/toolcall"
	"github.com/lemony-ai/cascadeflow-sub010/internal/tracing"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// Config is the agent construction input (spec §6 "Agent construction
// (process-level API)").
type Config struct {
	Models            []cascade.ModelConfig
	Providers         map[string]provider.Provider
	Domains           map[cascade.Domain]cascade.DomainConfig
	Quality           QualityConfig
	Cascade           CascadeConfig
	RateLimits        map[string]ratelimit.ProviderPolicy
	TierPolicies      map[string]budget.TierPolicy
	PriceTable        map[string]pricebook.Price
	Embedder          quality.Embedder
	EmbeddingStrategy classifier.EmbeddingStrategy
	ToolExecutor      pipeline.ToolExecutor
	Tools             []toolcall.ToolDef
	Subscribers       []metrics.Subscriber
	Tracing           tracing.Config
}

// QualityConfig mirrors pkg/config.QualityConfig at the facade boundary.
type QualityConfig struct {
	DefaultMethod    cascade.ValidationMethod
	DefaultThreshold float64
	Custom           quality.CustomFunc
}

// CascadeConfig carries the subset of pkg/config.CascadeConfig the agent
// uses (spec §6: "optional CascadeConfig (max_budget, max_retries, timeout,
// routing_strategy, verbose)"). It has no max_budget, timeout or
// routing_strategy field.
type CascadeConfig struct {
	MaxRetries   int
	MaxToolSteps int
	Verbose      bool
	// BreakerMaxFailures is the consecutive-failure count that trips a
	// provider's circuit breaker open (spec-supplemented circuit breaker).
	// Zero uses a default of 5.
	BreakerMaxFailures int
	// BreakerResetMs is how long a tripped breaker stays open before
	// allowing a half-open trial call. Zero uses a default of 30000 (30s).
	BreakerResetMs int64
}

// Agent is the constructed, ready-to-use CascadeFlow entry point. A new
// Agent is built for a new configuration (spec §3 "Lifecycle"); it holds no
// per-request state.
type Agent struct {
	pipeline            *pipeline.Pipeline
	engine              *streaming.Engine
	logger              *logging.Logger
	defaultMaxRetries   int
	defaultMaxToolSteps int
}

// New constructs an Agent, wiring providers/candidates/domains into a
// Pipeline and a streaming Engine over the same configuration.
func New(cfg Config) (*Agent, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("cascadeflow: at least one model must be configured")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("cascadeflow: at least one provider must be registered")
	}

	book := pricebook.New()
	if len(cfg.PriceTable) > 0 {
		book.Load(cfg.PriceTable)
	}

	logger := logging.New("cascadeflow", cfg.Cascade.Verbose)

	var rateLimiter *ratelimit.Limiter
	if len(cfg.RateLimits) > 0 {
		rateLimiter = ratelimit.NewLimiter(cfg.RateLimits)
	}

	var budgetPolicy *budget.Policy
	if len(cfg.TierPolicies) > 0 {
		budgetPolicy = budget.NewPolicy(cfg.TierPolicies)
	}

	breakerMaxFailures := cfg.Cascade.BreakerMaxFailures
	if breakerMaxFailures <= 0 {
		breakerMaxFailures = 5
	}
	breakerResetMs := cfg.Cascade.BreakerResetMs
	if breakerResetMs <= 0 {
		breakerResetMs = 30000
	}
	breakers := ratelimit.NewBreakers(breakerMaxFailures, time.Duration(breakerResetMs)*time.Millisecond)

	metrics.InitPrometheus()
	metricsManager := metrics.NewManager(cfg.Subscribers...)

	toolNames := make([]string, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		toolNames = append(toolNames, t.Name)
	}

	deps := pipeline.Deps{
		Providers:    cfg.Providers,
		PriceCalc:    pricebook.NewCalculator(book),
		Quality:      quality.NewValidator(cfg.Embedder, cfg.Quality.Custom),
		Detector:     toolcall.NewDetector(toolNames),
		Validator:    toolcall.NewValidator(cfg.Tools),
		ToolExecutor: cfg.ToolExecutor,
		RateLimiter:  rateLimiter,
		Breakers:     breakers,
		Budget:       budgetPolicy,
		Metrics:      metricsManager,
		Embedding:    cfg.EmbeddingStrategy,
		MarginFloor:  0.1,
		Logger:       logger,
	}

	p := pipeline.New(deps, cfg.Models, cfg.Domains)

	if cfg.Tracing.Enabled {
		if err := tracing.Init(cfg.Tracing); err != nil {
			return nil, fmt.Errorf("cascadeflow: init tracing: %w", err)
		}
	}

	return &Agent{
		pipeline:            p,
		engine:              streaming.New(p),
		logger:              logger,
		defaultMaxRetries:   cfg.Cascade.MaxRetries,
		defaultMaxToolSteps: cfg.Cascade.MaxToolSteps,
	}, nil
}

// RunOptions mirrors Options (spec §6 "Options recognized").
type RunOptions struct {
	MaxTokens        int
	Temperature      float64
	SystemPrompt     string
	Tools            []provider.ToolSpec
	ToolExecutor     pipeline.ToolExecutor
	ForceDirect      bool
	MaxSteps         int
	MaxRetries       int
	UserTier         string
	CumulativeSpend  float64
	QualityThreshold *float64
	QualityMethod    cascade.ValidationMethod
	// DeadlineMs is the per-request timeout (spec §6 "deadline_ms: int").
	// nil means no deadline; a non-nil value ≤0 fails immediately with no
	// provider call (spec §8).
	DeadlineMs *int64
}

func (o RunOptions) toPipelineOptions(a *Agent) pipeline.Options {
	maxSteps := o.MaxSteps
	if maxSteps == 0 {
		maxSteps = a.defaultMaxToolSteps
	}
	maxRetries := o.MaxRetries
	if maxRetries == 0 {
		maxRetries = a.defaultMaxRetries
	}
	return pipeline.Options{
		SystemPrompt:     o.SystemPrompt,
		Tools:            o.Tools,
		ForceDirect:      o.ForceDirect,
		Tier:             o.UserTier,
		CumulativeSpend:  o.CumulativeSpend,
		MaxRetries:       maxRetries,
		MaxToolSteps:     maxSteps,
		QualityThreshold: o.QualityThreshold,
		QualityMethod:    o.QualityMethod,
		Temperature:      o.Temperature,
		MaxTokens:        o.MaxTokens,
		DeadlineMs:       o.DeadlineMs,
	}
}

// Run executes one query to completion (spec §6 "run(query, options) →
// CascadeResult").
func (a *Agent) Run(ctx context.Context, query cascade.Query, opts RunOptions) (*cascade.Result, error) {
	return a.pipeline.Run(ctx, query, opts.toPipelineOptions(a))
}

// Stream executes one query, returning a live event sequence (spec §6
// "stream(query, options) → lazy event sequence").
func (a *Agent) Stream(ctx context.Context, query cascade.Query, opts RunOptions) *streaming.Stream {
	return a.engine.Stream(ctx, query, opts.toPipelineOptions(a))
}

// BatchStrategy selects how RunBatch iterates its queries (spec §6).
type BatchStrategy string

const (
	BatchSequential BatchStrategy = "sequential"
	BatchParallel   BatchStrategy = "parallel"
)

// BatchOptions configures RunBatch (spec §6 "run_batch(queries[],
// {strategy, stop_on_error})").
type BatchOptions struct {
	Strategy    BatchStrategy
	StopOnError bool
	RunOptions  RunOptions
}

// BatchResult is one query's outcome within a batch; Err is non-nil on
// failure and Result is nil in that case.
type BatchResult struct {
	Result *cascade.Result
	Err    error
}

// BatchSummary is RunBatch's aggregate outcome (spec §6: "{results[],
// success_count, failure_count}").
type BatchSummary struct {
	Results      []BatchResult
	SuccessCount int
	FailureCount int
}

// RunBatch runs a list of queries sequentially or in parallel, optionally
// stopping at the first error (spec §6).
func (a *Agent) RunBatch(ctx context.Context, queries []cascade.Query, opts BatchOptions) BatchSummary {
	if opts.Strategy == "" {
		opts.Strategy = BatchSequential
	}

	results := make([]BatchResult, len(queries))

	if opts.Strategy == BatchSequential {
		for i, q := range queries {
			res, err := a.Run(ctx, q, opts.RunOptions)
			results[i] = BatchResult{Result: res, Err: err}
			if err != nil && opts.StopOnError {
				return summarize(results[:i+1])
			}
		}
		return summarize(results)
	}

	return a.runBatchParallel(ctx, queries, opts)
}

// runBatchParallel fans queries out across goroutines via errgroup, the
// teacher's preferred join primitive for independent concurrent subtasks
// (spec §9 "the pipeline joins them deterministically and does not leak
// goroutines past the step boundary"). Unlike errgroup's usual
// first-error-cancels-everything idiom, a per-query failure here is data,
// not an error to propagate — only StopOnError escalates it into a
// cancellation of the remaining in-flight calls.
func (a *Agent) runBatchParallel(ctx context.Context, queries []cascade.Query, opts BatchOptions) BatchSummary {
	results := make([]BatchResult, len(queries))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, q := range queries {
		i, q := i, q
		group.Go(func() error {
			res, err := a.Run(groupCtx, q, opts.RunOptions)
			results[i] = BatchResult{Result: res, Err: err}
			if err != nil && opts.StopOnError {
				return err
			}
			return nil
		})
	}

	_ = group.Wait()
	return summarize(results)
}

func summarize(results []BatchResult) BatchSummary {
	summary := BatchSummary{Results: results}
	for _, r := range results {
		if r.Err != nil {
			summary.FailureCount++
		} else {
			summary.SuccessCount++
		}
	}
	return summary
}
