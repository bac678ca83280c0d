package pipeline

import (
	"context"
	"time"

	"github.com/lemony-ai/cascadeflow-sub010/internal/metrics"
	"github.com/lemony-ai/cascadeflow-sub010/internal/router"
	"github.com/lemony-ai/cascadeflow-sub010/internal/toolcall"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// runCascade implements spec §4.8 steps 6-7 and §4.8.b: draft → detect tool
// calls (branch to the tool loop) or validate/escalate against the verifier.
// The decision of which branch to take is delegated to DecideCascade so Run
// and the streaming engine apply identical logic (spec §9 "streaming
// parity").
func (p *Pipeline) runCascade(ctx context.Context, result *cascade.Result, decision router.Decision, messages []provider.Message, opts Options, traceID string, threshold float64, method cascade.ValidationMethod) error {
	drafter := decision.Drafter
	verifier := decision.Verifier

	draftProv, ok := p.Deps.Providers[drafter.Provider]
	if !ok {
		return provider.NewError(provider.KindConfig, drafter.Provider, "no provider registered for "+drafter.Provider, nil)
	}

	draftStart := time.Now()
	draftResp, _, err := p.callModel(ctx, draftProv, drafter, messages, opts)
	result.Timing.DraftMs = time.Since(draftStart).Milliseconds()
	if err != nil {
		return err
	}
	result.DraftResponse = draftResp.Content

	outcome := p.DecideCascade(method, messages, draftResp, result.Complexity, result.Domain, threshold)
	result.Quality = outcome.Score

	if len(outcome.ToolCalls) > 0 {
		draftResp.ToolCalls = outcome.ToolCalls
		result.ModelUsed = drafter.Name
		result.DraftAccepted = true
		result.Cost = p.Deps.PriceCalc.DraftAccepted(drafter.Name, cascade.Usage(draftResp.Usage), drafter, verifier.Name, verifier)
		return p.runToolLoop(ctx, result, draftProv, drafter, messages, draftResp, opts, traceID)
	}

	if outcome.Accepted {
		result.Content = draftResp.Content
		result.ModelUsed = drafter.Name
		result.DraftAccepted = true
		result.Cost = p.Deps.PriceCalc.DraftAccepted(drafter.Name, cascade.Usage(draftResp.Usage), drafter, verifier.Name, verifier)
		return nil
	}

	p.fire(metrics.EventCascadeDecision, metrics.Payload{"trace_id": traceID, "accepted": false, "reason": outcome.Score.Reason})
	result.RejectionReason = outcome.Score.Reason

	verifierProv, ok := p.Deps.Providers[verifier.Provider]
	if !ok {
		return provider.NewError(provider.KindConfig, verifier.Provider, "no provider registered for "+verifier.Provider, nil)
	}

	verifyStart := time.Now()
	verifierResp, _, err := p.callModel(ctx, verifierProv, verifier, outcome.EscalationMessages, opts)
	result.Timing.VerifyMs = time.Since(verifyStart).Milliseconds()
	if err != nil {
		return err
	}

	result.VerifierResponse = verifierResp.Content
	result.ModelUsed = verifier.Name
	result.DraftAccepted = false
	result.Cost = p.Deps.PriceCalc.DraftRejected(drafter.Name, cascade.Usage(draftResp.Usage), drafter, verifier.Name, cascade.Usage(verifierResp.Usage), verifier)

	if len(verifierResp.ToolCalls) > 0 {
		result.ModelUsed = verifier.Name
		return p.runToolLoop(ctx, result, verifierProv, verifier, outcome.EscalationMessages, verifierResp, opts, traceID)
	}

	result.Content = verifierResp.Content
	return nil
}

// CascadeOutcome is what should happen after a drafter response: issue the
// tool calls it (or its free-text fallback) carried, accept it outright, or
// escalate to the verifier over EscalationMessages.
type CascadeOutcome struct {
	ToolCalls          []provider.ToolCall
	Score              cascade.QualityScore
	Accepted           bool
	EscalationMessages []provider.Message
}

// DecideCascade computes the single draft→validate→escalate decision shared
// by Run's runCascade and the streaming engine's cascade path: tool-call
// detection (structured, falling back to free-text ReAct-style parsing),
// quality scoring against threshold, and — on rejection — the escalation
// transcript handed to the verifier. Both entry points call this one
// function so a future change to the decision cannot drift between them
// (spec §9 "streaming parity": "share a single router+validator+escalation
// code path; the only difference is chunk delivery").
func (p *Pipeline) DecideCascade(method cascade.ValidationMethod, messages []provider.Message, draftResp *provider.Response, complexity cascade.Complexity, domain cascade.Domain, threshold float64) CascadeOutcome {
	toolCalls := draftResp.ToolCalls
	if len(toolCalls) == 0 && p.Deps.Detector != nil {
		intent := p.Deps.Detector.Detect(draftResp.Content, nil)
		if intent.ShouldCall {
			if freeText, matched := toolcall.ParseFreeText(draftResp.Content); matched {
				toolCalls = []provider.ToolCall{{Name: freeText.Name, Arguments: toJSONArgs(freeText.Arguments)}}
			}
		}
	}
	if len(toolCalls) > 0 {
		return CascadeOutcome{ToolCalls: toolCalls}
	}

	score := p.score(method, messages, draftResp.Content, complexity, domain, threshold)
	if score.Passed {
		return CascadeOutcome{Score: score, Accepted: true}
	}

	escalationMessages := append(append([]provider.Message{}, messages...), provider.Message{
		Role:    provider.RoleAssistant,
		Content: draftResp.Content,
	})
	return CascadeOutcome{Score: score, Accepted: false, EscalationMessages: escalationMessages}
}

func (p *Pipeline) score(method cascade.ValidationMethod, messages []provider.Message, response string, complexity cascade.Complexity, domain cascade.Domain, threshold float64) cascade.QualityScore {
	if p.Deps.Quality == nil {
		return cascade.QualityScore{Value: 1.0, Passed: true}
	}
	query := lastUserText(messages)
	return p.Deps.Quality.Score(method, query, response, complexity, domain, threshold, nil)
}

func lastUserText(messages []provider.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == provider.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
