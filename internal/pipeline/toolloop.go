package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lemony-ai/cascadeflow-sub010/internal/metrics"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// runToolLoop implements spec §4.8.a: validate → execute (independent calls
// in parallel, merged back in call-issue order) → feed transcript back into
// the same model → repeat until no tool calls remain or max_steps is hit.
func (p *Pipeline) runToolLoop(ctx context.Context, result *cascade.Result, prov provider.Provider, model *cascade.ModelConfig, transcript []provider.Message, resp *provider.Response, opts Options, traceID string) error {
	maxSteps := opts.maxToolSteps()
	currentResp := resp

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return provider.NewError(provider.KindCancelled, model.Provider, "tool loop cancelled", err)
		}
		if len(currentResp.ToolCalls) == 0 {
			result.Content = currentResp.Content
			return nil
		}

		transcript = append(transcript, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   currentResp.Content,
			ToolCalls: currentResp.ToolCalls,
		})

		records, toolMessages := p.executeToolCalls(ctx, currentResp.ToolCalls)
		result.ToolCalls = append(result.ToolCalls, records...)
		transcript = append(transcript, toolMessages...)

		p.fire(metrics.EventModelCallStart, metrics.Payload{"model": model.Name, "tool_loop_step": step + 1})
		next, _, err := p.callModel(ctx, prov, model, transcript, opts)
		if err != nil {
			return err
		}
		currentResp = next
	}

	result.Content = currentResp.Content
	return nil
}

// executeToolCalls validates each call, executes the valid ones in
// parallel, and returns audit records plus tool-role transcript messages
// merged back into call-issue order regardless of completion order (spec
// §4.8.a, §5 "Ordering guarantees").
func (p *Pipeline) executeToolCalls(ctx context.Context, calls []provider.ToolCall) ([]cascade.ToolCallRecord, []provider.Message) {
	records := make([]cascade.ToolCallRecord, len(calls))
	messages := make([]provider.Message, len(calls))

	type outcome struct {
		index   int
		record  cascade.ToolCallRecord
		message provider.Message
	}
	results := make(chan outcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call provider.ToolCall) {
			defer wg.Done()
			start := time.Now()

			if p.Deps.Validator != nil {
				validation := p.Deps.Validator.Validate(call)
				if !validation.Valid {
					reason := "tool call failed validation"
					if len(validation.Errors) > 0 {
						reason = validation.Errors[0]
					}
					results <- outcome{
						index:  i,
						record: cascade.ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments, Err: reason, Duration: time.Since(start)},
						message: provider.Message{
							Role:       provider.RoleTool,
							Content:    "error: " + reason,
							ToolCallID: call.ID,
						},
					}
					return
				}
			}

			if p.Deps.ToolExecutor == nil {
				results <- outcome{
					index:  i,
					record: cascade.ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments, Err: "no tool executor configured", Duration: time.Since(start)},
					message: provider.Message{
						Role:       provider.RoleTool,
						Content:    "error: no tool executor configured",
						ToolCallID: call.ID,
					},
				}
				return
			}

			res, err := p.Deps.ToolExecutor(ctx, call)
			record := cascade.ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments, Result: res, Duration: time.Since(start)}
			msg := provider.Message{Role: provider.RoleTool, Content: res, ToolCallID: call.ID}
			if err != nil {
				record.Err = err.Error()
				msg.Content = "error: " + err.Error()
				p.fire(metrics.EventModelCallError, metrics.Payload{"tool": call.Name, "error": err.Error()})
			}
			results <- outcome{index: i, record: record, message: msg}
		}(i, call)
	}

	wg.Wait()
	close(results)

	collected := make([]outcome, 0, len(calls))
	for o := range results {
		collected = append(collected, o)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })
	for _, o := range collected {
		records[o.index] = o.record
		messages[o.index] = o.message
	}
	return records, messages
}
