package cascadetest

import (
	"context"
	"errors"

	"github.com/lemony-ai/cascadeflow-sub010/internal/pipeline"
	"github.com/lemony-ai/cascadeflow-sub010/internal/pricebook"
	"github.com/lemony-ai/cascadeflow-sub010/internal/quality"
	"github.com/lemony-ai/cascadeflow-sub010/internal/ratelimit"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// Scenario is one named, self-contained acceptance check. Check receives
// whatever Run produced and reports pass/fail plus a human-readable reason,
// mirroring the teacher's TestCase/evaluateResult split (a fixture paired
// with its own grading function) but one level more direct since each
// scenario here grades a different shape of outcome.
type Scenario struct {
	ID          string
	Name        string
	Description string
	Run         func(ctx context.Context) (*cascade.Result, error, *scriptedProvider, *scriptedProvider)
	Check       func(result *cascade.Result, err error, drafterCalls, verifierCalls int) (bool, string)
}

var twoCandidates = []cascade.ModelConfig{
	{Name: "gpt-4o-mini", Provider: "cheap", CostPer1kInput: 0.00015, CostPer1kOutput: 0.0006, QualityScore: 0.75, SpeedMs: 400},
	{Name: "gpt-4o", Provider: "expensive", CostPer1kInput: 0.0025, CostPer1kOutput: 0.01, QualityScore: 0.95, SpeedMs: 1800},
}

func newPipeline(drafter, verifier *scriptedProvider, limiter *ratelimit.Limiter) *pipeline.Pipeline {
	book := pricebook.New()
	deps := pipeline.Deps{
		Providers:   map[string]provider.Provider{"cheap": drafter, "expensive": verifier},
		PriceCalc:   pricebook.NewCalculator(book),
		Quality:     quality.NewValidator(nil, nil),
		RateLimiter: limiter,
		MarginFloor: 0.1,
	}
	return pipeline.New(deps, twoCandidates, nil)
}

// DefaultSuite returns the spec §8 "Concrete scenarios" 1-6, each runnable
// standalone against scripted providers.
func DefaultSuite() []Scenario {
	return []Scenario{
		scenarioSimpleAccept(),
		scenarioComplexEscalation(),
		scenarioForceDirect(),
		scenarioToolLoopTwoSteps(),
		scenarioRateLimited(),
		scenarioProviderTimeoutRetry(),
	}
}

// 1. Simple accept.
func scenarioSimpleAccept() Scenario {
	drafter := newScriptedProvider("cheap", scriptedStep{response: &provider.Response{
		Content: "2 plus 2 equals 4.",
		Usage:   provider.Usage{InputTokens: 8, OutputTokens: 6, TotalTokens: 14},
	}})
	verifier := newScriptedProvider("expensive", scriptedStep{response: &provider.Response{
		Content: "should not be called",
	}})

	return Scenario{
		ID:          "simple_accept",
		Name:        "Simple accept",
		Description: `Query "What is 2+2?" accepts the drafter's answer without escalating.`,
		Run: func(ctx context.Context) (*cascade.Result, error, *scriptedProvider, *scriptedProvider) {
			p := newPipeline(drafter, verifier, nil)
			res, err := p.Run(ctx, cascade.Query{Prompt: "What is 2+2?"}, pipeline.Options{})
			return res, err, drafter, verifier
		},
		Check: func(result *cascade.Result, err error, draftCalls, verifyCalls int) (bool, string) {
			if err != nil {
				return false, "unexpected error: " + err.Error()
			}
			if result.RoutingStrategy != cascade.StrategyCascade {
				return false, "expected strategy=cascade, got " + string(result.RoutingStrategy)
			}
			if !result.DraftAccepted {
				return false, "expected draft_accepted=true"
			}
			if verifyCalls != 0 {
				return false, "verifier should not have been called"
			}
			if result.Cost.CostSaved <= 0 {
				return false, "expected cost_saved > 0"
			}
			return true, "draft accepted, verifier untouched, cost_saved positive"
		},
	}
}

// 2. Complex escalation.
func scenarioComplexEscalation() Scenario {
	drafter := newScriptedProvider("cheap", scriptedStep{response: &provider.Response{
		Content: "",
		Usage:   provider.Usage{InputTokens: 10, OutputTokens: 0, TotalTokens: 10},
	}})
	verifier := newScriptedProvider("expensive", scriptedStep{response: &provider.Response{
		Content: "√2 is irrational by a classic contradiction argument over the rationals.",
		Usage:   provider.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
	}})

	threshold := 0.8
	return Scenario{
		ID:          "complex_escalation",
		Name:        "Complex escalation",
		Description: `Query "Prove √2 is irrational" with threshold 0.8 rejects the draft and escalates.`,
		Run: func(ctx context.Context) (*cascade.Result, error, *scriptedProvider, *scriptedProvider) {
			p := newPipeline(drafter, verifier, nil)
			res, err := p.Run(ctx, cascade.Query{Prompt: "Prove √2 is irrational"}, pipeline.Options{
				QualityThreshold: &threshold,
			})
			return res, err, drafter, verifier
		},
		Check: func(result *cascade.Result, err error, draftCalls, verifyCalls int) (bool, string) {
			if err != nil {
				return false, "unexpected error: " + err.Error()
			}
			if result.DraftAccepted {
				return false, "expected draft_accepted=false"
			}
			if result.ModelUsed != "gpt-4o" {
				return false, "expected model_used=gpt-4o, got " + result.ModelUsed
			}
			if verifyCalls != 1 {
				return false, "expected exactly one verifier call"
			}
			if result.Cost.CostSaved >= 0 {
				return false, "expected cost_saved < 0"
			}
			return true, "draft rejected, verifier escalated, cost_saved negative"
		},
	}
}

// 3. Force direct.
func scenarioForceDirect() Scenario {
	drafter := newScriptedProvider("cheap", scriptedStep{response: &provider.Response{Content: "should not be called"}})
	verifier := newScriptedProvider("expensive", scriptedStep{response: &provider.Response{
		Content: "√2 is irrational by a classic contradiction argument over the rationals.",
		Usage:   provider.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
	}})

	return Scenario{
		ID:          "force_direct",
		Name:        "Force direct",
		Description: `The same query with force_direct=true routes direct; only the verifier is called.`,
		Run: func(ctx context.Context) (*cascade.Result, error, *scriptedProvider, *scriptedProvider) {
			p := newPipeline(drafter, verifier, nil)
			res, err := p.Run(ctx, cascade.Query{Prompt: "Prove √2 is irrational"}, pipeline.Options{
				ForceDirect: true,
			})
			return res, err, drafter, verifier
		},
		Check: func(result *cascade.Result, err error, draftCalls, verifyCalls int) (bool, string) {
			if err != nil {
				return false, "unexpected error: " + err.Error()
			}
			if result.RoutingStrategy != cascade.StrategyDirect {
				return false, "expected strategy=direct, got " + string(result.RoutingStrategy)
			}
			if result.Cascaded {
				return false, "expected cascaded=false"
			}
			if draftCalls != 0 {
				return false, "drafter must not be called under force_direct"
			}
			if verifyCalls != 1 {
				return false, "expected exactly one verifier call"
			}
			return true, "direct strategy, drafter untouched"
		},
	}
}

// 4. Tool loop, two steps.
func scenarioToolLoopTwoSteps() Scenario {
	weatherCall := provider.ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{"location":"Berlin"}`}
	firstTurn := &provider.Response{
		Content:   "",
		ToolCalls: []provider.ToolCall{weatherCall},
		Usage:     provider.Usage{InputTokens: 12, OutputTokens: 6, TotalTokens: 18},
	}
	secondTurn := &provider.Response{
		Content: "It's 18°C and cloudy in Berlin.",
		Usage:   provider.Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30},
	}
	drafter := newScriptedProvider("cheap", scriptedStep{response: firstTurn}, scriptedStep{response: secondTurn})
	verifier := newScriptedProvider("expensive", scriptedStep{response: &provider.Response{Content: "unused"}})

	return Scenario{
		ID:          "tool_loop_two_steps",
		Name:        "Tool loop, two steps",
		Description: `"weather in Berlin, then summarize" drives one tool call, then a final turn with no tool calls.`,
		Run: func(ctx context.Context) (*cascade.Result, error, *scriptedProvider, *scriptedProvider) {
			p := newPipeline(drafter, verifier, nil)
			toolCapable := make([]cascade.ModelConfig, len(twoCandidates))
			copy(toolCapable, twoCandidates)
			for i := range toolCapable {
				toolCapable[i].SupportsTools = true
			}
			p.Candidates = toolCapable
			p.Deps.ToolExecutor = func(ctx context.Context, call provider.ToolCall) (string, error) {
				return "18°C, cloudy", nil
			}
			res, err := p.Run(ctx, cascade.Query{Prompt: "weather in Berlin, then summarize"}, pipeline.Options{
				Tools: []provider.ToolSpec{{Name: "get_weather"}},
			})
			return res, err, drafter, verifier
		},
		Check: func(result *cascade.Result, err error, draftCalls, verifyCalls int) (bool, string) {
			if err != nil {
				return false, "unexpected error: " + err.Error()
			}
			if draftCalls != 2 {
				return false, "expected two drafter turns, got call count"
			}
			if len(result.ToolCalls) != 1 {
				return false, "expected exactly one recorded tool call"
			}
			if result.ToolCalls[0].ID != "call_1" {
				return false, "tool_call_id should be preserved"
			}
			if result.Content != secondTurn.Content {
				return false, "final content should be the no-tool-calls turn"
			}
			return true, "one tool call executed, second turn returned final text"
		},
	}
}

// 5. Rate limited.
func scenarioRateLimited() Scenario {
	drafter := newScriptedProvider("cheap", scriptedStep{response: &provider.Response{
		Content: "fine, thanks for asking, here is a balanced and sufficiently detailed reply",
		Usage:   provider.Usage{InputTokens: 8, OutputTokens: 12, TotalTokens: 20},
	}})
	verifier := newScriptedProvider("expensive", scriptedStep{response: &provider.Response{Content: "unused"}})

	return Scenario{
		ID:          "rate_limited",
		Name:        "Rate limited",
		Description: `With requests_per_minute=1, a second call within the same minute is blocked at admission.`,
		Run: func(ctx context.Context) (*cascade.Result, error, *scriptedProvider, *scriptedProvider) {
			limiter := ratelimit.NewLimiter(map[string]ratelimit.ProviderPolicy{
				"cheap": {RequestsPerMinute: 1},
			})
			p := newPipeline(drafter, verifier, limiter)
			_, err1 := p.Run(ctx, cascade.Query{Prompt: "hello"}, pipeline.Options{})
			if err1 != nil {
				return nil, err1, drafter, verifier
			}
			res2, err2 := p.Run(ctx, cascade.Query{Prompt: "hello again"}, pipeline.Options{})
			return res2, err2, drafter, verifier
		},
		Check: func(result *cascade.Result, err error, draftCalls, verifyCalls int) (bool, string) {
			if err == nil {
				return false, "expected an admission error on the second call"
			}
			pErr, ok := err.(*provider.Error)
			if !ok {
				return false, "expected a *provider.Error"
			}
			if pErr.Kind != provider.KindAdmission {
				return false, "expected kind=admission, got " + string(pErr.Kind)
			}
			if pErr.RetryAfterMs <= 0 {
				return false, "expected retry_after_ms to be set"
			}
			if draftCalls != 1 {
				return false, "drafter should have been called exactly once (the first, admitted call)"
			}
			return true, "second call blocked at admission with retry_after_ms set"
		},
	}
}

// 6. Provider timeout.
func scenarioProviderTimeoutRetry() Scenario {
	timeoutErr := provider.NewError(provider.KindTransientProvider, "cheap", "request timed out", errors.New("deadline exceeded"))
	success := &provider.Response{
		Content: "recovered after retries",
		Usage:   provider.Usage{InputTokens: 6, OutputTokens: 6, TotalTokens: 12},
	}
	drafter := newScriptedProvider("cheap",
		scriptedStep{err: timeoutErr},
		scriptedStep{err: timeoutErr},
		scriptedStep{response: success},
	)
	verifier := newScriptedProvider("expensive", scriptedStep{response: &provider.Response{Content: "unused"}})

	return Scenario{
		ID:          "provider_timeout_retry",
		Name:        "Provider timeout",
		Description: `The drafter times out twice and succeeds on the third attempt with max_retries=3.`,
		Run: func(ctx context.Context) (*cascade.Result, error, *scriptedProvider, *scriptedProvider) {
			p := newPipeline(drafter, verifier, nil)
			res, err := p.Run(ctx, cascade.Query{Prompt: "a sufficiently long prompt to avoid triggering escalation by accident"}, pipeline.Options{
				MaxRetries: 3,
			})
			return res, err, drafter, verifier
		},
		Check: func(result *cascade.Result, err error, draftCalls, verifyCalls int) (bool, string) {
			if err != nil {
				return false, "unexpected error: " + err.Error()
			}
			if draftCalls != 3 {
				return false, "expected exactly three draft attempts"
			}
			if result.DraftResponse != success.Content {
				return false, "expected the third attempt's content to win"
			}
			return true, "exactly three draft attempts, success on the third"
		},
	}
}
