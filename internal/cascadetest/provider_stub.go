// Package cascadetest runs the cascade pipeline's concrete acceptance
// scenarios (spec §8 "Concrete scenarios") against scripted providers — no
// network calls, no live model credentials. Grounded on the teacher's
// internal/llm/evaluation.Evaluator (a TestSuite of named cases run through
// a real component, scored, and summarized), adapted from ReAct tool-call
// grading to cascade routing/cost/admission grading.
package cascadetest

import (
	"context"
	"sync"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// scriptedStep is one queued outcome for a scriptedProvider call.
type scriptedStep struct {
	response *provider.Response
	err      error
}

// scriptedProvider replays a fixed script of responses/errors in order,
// falling back to repeating its last step once the script is exhausted.
// Safe for concurrent use (the tool-call scenario drives it from a single
// goroutine, but the rate-limit scenario issues back-to-back calls and
// scenario authors may parallelize further).
type scriptedProvider struct {
	mu     sync.Mutex
	name   string
	script []scriptedStep
	calls  int
}

func newScriptedProvider(name string, script ...scriptedStep) *scriptedProvider {
	return &scriptedProvider{name: name, script: script}
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.mu.Unlock()

	if len(s.script) == 0 {
		return &provider.Response{Content: "stub response"}, nil
	}
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	step := s.script[idx]
	if step.err != nil {
		return nil, step.err
	}
	return step.response, nil
}

func (s *scriptedProvider) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	return nil, provider.NewError(provider.KindInternal, s.name, "streaming not scripted", nil)
}

// attempts reports how many times Generate has been called so far.
func (s *scriptedProvider) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
