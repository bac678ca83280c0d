// Package streaming implements the Streaming Engine (spec §4.9): it derives
// the same classify→route→draft→validate state machine as
// internal/pipeline.Pipeline.Run but yields cascade.StreamEvents as they
// occur instead of returning a single terminal Result. Grounded on the
// teacher's pkg/llm/provider.HuggingFaceStream (buffered channel + context
// cancellation + sync.Once close) and StreamCollector (chunk concatenation
// equals the final text).
package streaming

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lemony-ai/cascadeflow-sub010/internal/metrics"
	"github.com/lemony-ai/cascadeflow-sub010/internal/pipeline"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// Stream is a live, cancellable sequence of cascade.StreamEvents for one
// request. Consumers range over Events() until it closes; the last event
// delivered is always exactly one of EventComplete or EventError (spec §4.9).
type Stream struct {
	events    chan cascade.StreamEvent
	closeOnce sync.Once
}

func newStream(buffer int) *Stream {
	return &Stream{events: make(chan cascade.StreamEvent, buffer)}
}

// Events returns the channel of ordered events. It is closed once the
// terminal event has been sent.
func (s *Stream) Events() <-chan cascade.StreamEvent {
	return s.events
}

func (s *Stream) emit(ctx context.Context, ev cascade.StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case s.events <- ev:
		return true
	}
}

func (s *Stream) close() {
	s.closeOnce.Do(func() { close(s.events) })
}

// Engine drives a Pipeline through its state machine, translating each step
// into events instead of assembling a terminal Result.
type Engine struct {
	Pipeline *pipeline.Pipeline
}

// New builds a streaming Engine over an already-constructed Pipeline so the
// two entry points (Run, Stream) share one configuration (spec §3
// "Lifecycle").
func New(p *pipeline.Pipeline) *Engine {
	return &Engine{Pipeline: p}
}

// Stream starts driving the pipeline in a background goroutine and returns
// immediately with the live event sequence (spec §4.9: "stream(query,
// options) → lazy event sequence").
func (e *Engine) Stream(ctx context.Context, query cascade.Query, opts pipeline.Options) *Stream {
	s := newStream(64)
	go e.run(ctx, s, query, opts)
	return s
}

func (e *Engine) run(ctx context.Context, s *Stream, query cascade.Query, opts pipeline.Options) {
	defer s.close()

	if opts.DeadlineMs != nil {
		if *opts.DeadlineMs <= 0 {
			s.emit(ctx, errorEvent(provider.NewError(provider.KindTimeout, "", "deadline_ms=0: immediate timeout", nil)))
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*opts.DeadlineMs)*time.Millisecond)
		defer cancel()
	}

	plan, err := e.Pipeline.Plan(ctx, query, opts)
	if plan != nil {
		defer plan.Release()
	}

	// ROUTING is always first, even on a BLOCK/skip outcome — the caller
	// still learns what the router decided before seeing the terminal error.
	routingData := map[string]any{"trace_id": "", "strategy": ""}
	if plan != nil {
		routingData = map[string]any{
			"trace_id":   plan.TraceID,
			"strategy":   string(plan.Decision.Strategy),
			"complexity": plan.Complexity.Level.String(),
			"domain":     string(plan.Domain.Domain),
			"reasons":    plan.Decision.Reasons,
		}
	}
	if !s.emit(ctx, cascade.StreamEvent{Type: cascade.EventRouting, Data: routingData}) {
		e.emitCancelled(ctx, s)
		return
	}

	if err != nil {
		s.emit(ctx, errorEvent(err))
		return
	}

	switch plan.Decision.Strategy {
	case cascade.StrategyDirect:
		e.streamDirect(ctx, s, plan, opts)
	case cascade.StrategyCascade:
		e.streamCascade(ctx, s, plan, opts)
	}
}

func (e *Engine) streamDirect(ctx context.Context, s *Stream, plan *pipeline.Plan, opts pipeline.Options) {
	model := plan.Decision.Verifier
	prov, ok := e.Pipeline.Deps.Providers[model.Provider]
	if !ok {
		s.emit(ctx, errorEvent(provider.NewError(provider.KindConfig, model.Provider, "no provider registered for "+model.Provider, nil)))
		return
	}

	resp, ok := e.streamModel(ctx, s, prov, model, plan.Messages, opts)
	if !ok {
		return
	}

	if len(resp.ToolCalls) > 0 {
		if !e.streamToolLoop(ctx, s, prov, model, plan.Messages, resp, opts) {
			return
		}
	}
	s.emit(ctx, cascade.StreamEvent{Type: cascade.EventComplete, Content: resp.Content})
}

func (e *Engine) streamCascade(ctx context.Context, s *Stream, plan *pipeline.Plan, opts pipeline.Options) {
	drafter := plan.Decision.Drafter
	verifier := plan.Decision.Verifier

	draftProv, ok := e.Pipeline.Deps.Providers[drafter.Provider]
	if !ok {
		s.emit(ctx, errorEvent(provider.NewError(provider.KindConfig, drafter.Provider, "no provider registered for "+drafter.Provider, nil)))
		return
	}

	draftResp, ok := e.streamModel(ctx, s, draftProv, drafter, plan.Messages, opts)
	if !ok {
		return
	}

	// Delegate to the same decision function Run's runCascade uses, so the
	// two entry points can never disagree on tool-call detection, quality
	// scoring, or escalation-message construction (spec §9 "streaming
	// parity").
	outcome := e.Pipeline.DecideCascade(plan.Method, plan.Messages, draftResp, plan.Complexity.Level, plan.Domain.Domain, plan.Threshold)

	if len(outcome.ToolCalls) > 0 {
		draftResp.ToolCalls = outcome.ToolCalls
		if !s.emit(ctx, cascade.StreamEvent{Type: cascade.EventDraftDecision, Data: map[string]any{"accepted": true, "reason": "tool call issued"}}) {
			return
		}
		if !e.streamToolLoop(ctx, s, draftProv, drafter, plan.Messages, draftResp, opts) {
			return
		}
		s.emit(ctx, cascade.StreamEvent{Type: cascade.EventComplete, Content: draftResp.Content})
		return
	}

	if outcome.Accepted {
		s.emit(ctx, cascade.StreamEvent{Type: cascade.EventDraftDecision, Data: map[string]any{"accepted": true, "quality": outcome.Score.Value}})
		s.emit(ctx, cascade.StreamEvent{Type: cascade.EventComplete, Content: draftResp.Content})
		return
	}

	if !s.emit(ctx, cascade.StreamEvent{Type: cascade.EventDraftDecision, Data: map[string]any{"accepted": false, "reason": outcome.Score.Reason}}) {
		return
	}

	verifierProv, ok := e.Pipeline.Deps.Providers[verifier.Provider]
	if !ok {
		s.emit(ctx, errorEvent(provider.NewError(provider.KindConfig, verifier.Provider, "no provider registered for "+verifier.Provider, nil)))
		return
	}

	if !s.emit(ctx, cascade.StreamEvent{Type: cascade.EventSwitch, Data: map[string]any{"from": drafter.Name, "to": verifier.Name}}) {
		return
	}

	verifierResp, ok := e.streamModel(ctx, s, verifierProv, verifier, outcome.EscalationMessages, opts)
	if !ok {
		return
	}

	if len(verifierResp.ToolCalls) > 0 {
		if !e.streamToolLoop(ctx, s, verifierProv, verifier, outcome.EscalationMessages, verifierResp, opts) {
			return
		}
	}
	s.emit(ctx, cascade.StreamEvent{Type: cascade.EventComplete, Content: verifierResp.Content})
}

// streamModel calls the model, splitting its response into CHUNK events
// whose concatenation equals the final text (spec §4.9) — providers in this
// module speak request/response, not token-level streaming, so chunking is
// simulated the way the teacher's SimulatedStream does for non-streaming
// backends.
func (e *Engine) streamModel(ctx context.Context, s *Stream, prov provider.Provider, model *cascade.ModelConfig, messages []provider.Message, opts pipeline.Options) (*provider.Response, bool) {
	if err := ctx.Err(); err != nil {
		s.emit(ctx, cancelledEvent())
		return nil, false
	}

	req := provider.Request{
		Messages:    messages,
		Model:       model.Name,
		MaxTokens:   model.MaxTokens,
		Temperature: opts.Temperature,
		Tools:       opts.Tools,
	}

	e.Pipeline.FireEvent(metrics.EventModelCallStart, metrics.Payload{"model": model.Name})
	resp, err := prov.Generate(ctx, req)
	if err != nil {
		e.Pipeline.FireEvent(metrics.EventModelCallError, metrics.Payload{"model": model.Name, "error": err.Error()})
		s.emit(ctx, errorEvent(err))
		return nil, false
	}
	e.Pipeline.FireEvent(metrics.EventModelCallComplete, metrics.Payload{"model": model.Name})

	for _, chunk := range simulateChunks(resp.Content, 40) {
		if ctx.Err() != nil {
			s.emit(ctx, cancelledEvent())
			return nil, false
		}
		if !s.emit(ctx, cascade.StreamEvent{Type: cascade.EventChunk, Content: chunk, Data: map[string]any{"model": model.Name}}) {
			return nil, false
		}
	}
	return resp, true
}

func simulateChunks(content string, size int) []string {
	if size <= 0 {
		size = 40
	}
	if content == "" {
		return nil
	}
	var chunks []string
	for i := 0; i < len(content); i += size {
		end := i + size
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, content[i:end])
	}
	return chunks
}

// streamToolLoop emits START/DELTA/COMPLETE for each call, then EXECUTING,
// then RESULT or ERROR, preserving the per-call-id ordering spec §4.9
// requires, before feeding results back to the model and repeating.
func (e *Engine) streamToolLoop(ctx context.Context, s *Stream, prov provider.Provider, model *cascade.ModelConfig, transcript []provider.Message, resp *provider.Response, opts pipeline.Options) bool {
	maxSteps := opts.MaxToolSteps
	if maxSteps <= 0 {
		maxSteps = 5
	}
	currentResp := resp

	for step := 0; step < maxSteps; step++ {
		if ctx.Err() != nil {
			s.emit(ctx, cancelledEvent())
			return false
		}
		if len(currentResp.ToolCalls) == 0 {
			return true
		}

		transcript = append(transcript, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   currentResp.Content,
			ToolCalls: currentResp.ToolCalls,
		})

		for _, call := range currentResp.ToolCalls {
			if !s.emit(ctx, cascade.StreamEvent{Type: cascade.EventToolCallStart, Data: map[string]any{"call_id": call.ID, "name": call.Name}}) {
				return false
			}
			if !s.emit(ctx, cascade.StreamEvent{Type: cascade.EventToolCallDelta, Data: map[string]any{"call_id": call.ID, "arguments": call.Arguments}}) {
				return false
			}
			if !s.emit(ctx, cascade.StreamEvent{Type: cascade.EventToolCallComplete, Data: map[string]any{"call_id": call.ID}}) {
				return false
			}
		}

		toolMessages := e.executeToolCallsOrdered(ctx, s, currentResp.ToolCalls)
		if toolMessages == nil {
			return false
		}
		transcript = append(transcript, toolMessages...)

		next, err := prov.Generate(ctx, provider.Request{
			Messages:    transcript,
			Model:       model.Name,
			MaxTokens:   model.MaxTokens,
			Temperature: opts.Temperature,
			Tools:       opts.Tools,
		})
		if err != nil {
			s.emit(ctx, errorEvent(err))
			return false
		}
		currentResp = next
	}
	return true
}

// executeToolCallsOrdered validates and executes calls in parallel but emits
// TOOL_EXECUTING/TOOL_RESULT/TOOL_ERROR re-ordered into call-issue order, and
// only after all START/DELTA/COMPLETE events for the batch have already gone
// out — satisfying the per-call-id precedence spec §4.9 requires even though
// execution itself is concurrent (spec §5 "independent tool-call execution").
func (e *Engine) executeToolCallsOrdered(ctx context.Context, s *Stream, calls []provider.ToolCall) []provider.Message {
	type outcome struct {
		index   int
		events  []cascade.StreamEvent
		message provider.Message
	}
	results := make(chan outcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call provider.ToolCall) {
			defer wg.Done()
			start := time.Now()

			if e.Pipeline.Deps.Validator != nil {
				v := e.Pipeline.Deps.Validator.Validate(call)
				if !v.Valid {
					reason := "tool call failed validation"
					if len(v.Errors) > 0 {
						reason = v.Errors[0]
					}
					results <- outcome{
						index: i,
						events: []cascade.StreamEvent{
							{Type: cascade.EventToolExecuting, Data: map[string]any{"call_id": call.ID}},
							{Type: cascade.EventToolError, Content: reason, Data: map[string]any{"call_id": call.ID}},
						},
						message: provider.Message{Role: provider.RoleTool, Content: "error: " + reason, ToolCallID: call.ID},
					}
					return
				}
			}

			if e.Pipeline.Deps.ToolExecutor == nil {
				results <- outcome{
					index: i,
					events: []cascade.StreamEvent{
						{Type: cascade.EventToolExecuting, Data: map[string]any{"call_id": call.ID}},
						{Type: cascade.EventToolError, Content: "no tool executor configured", Data: map[string]any{"call_id": call.ID}},
					},
					message: provider.Message{Role: provider.RoleTool, Content: "error: no tool executor configured", ToolCallID: call.ID},
				}
				return
			}

			res, err := e.Pipeline.Deps.ToolExecutor(ctx, call)
			_ = time.Since(start)
			if err != nil {
				results <- outcome{
					index: i,
					events: []cascade.StreamEvent{
						{Type: cascade.EventToolExecuting, Data: map[string]any{"call_id": call.ID}},
						{Type: cascade.EventToolError, Content: err.Error(), Data: map[string]any{"call_id": call.ID}},
					},
					message: provider.Message{Role: provider.RoleTool, Content: "error: " + err.Error(), ToolCallID: call.ID},
				}
				return
			}
			results <- outcome{
				index: i,
				events: []cascade.StreamEvent{
					{Type: cascade.EventToolExecuting, Data: map[string]any{"call_id": call.ID}},
					{Type: cascade.EventToolResult, Content: res, Data: map[string]any{"call_id": call.ID}},
				},
				message: provider.Message{Role: provider.RoleTool, Content: res, ToolCallID: call.ID},
			}
		}(i, call)
	}

	wg.Wait()
	close(results)

	collected := make([]outcome, 0, len(calls))
	for o := range results {
		collected = append(collected, o)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	messages := make([]provider.Message, len(collected))
	for _, o := range collected {
		for _, ev := range o.events {
			if !s.emit(ctx, ev) {
				return nil
			}
		}
		messages[o.index] = o.message
	}
	return messages
}

func errorEvent(err error) cascade.StreamEvent {
	kind := "internal"
	if pErr, ok := err.(*provider.Error); ok {
		kind = string(pErr.Kind)
	}
	return cascade.StreamEvent{Type: cascade.EventError, Content: err.Error(), Data: map[string]any{"kind": kind}}
}

func cancelledEvent() cascade.StreamEvent {
	return cascade.StreamEvent{Type: cascade.EventError, Content: "stream cancelled", Data: map[string]any{"kind": string(provider.KindCancelled)}}
}

func (e *Engine) emitCancelled(ctx context.Context, s *Stream) {
	// Best-effort: the consumer already stopped reading (ctx is done), so
	// this send is non-blocking and the event is dropped if the channel is
	// full.
	select {
	case s.events <- cancelledEvent():
	default:
	}
}
