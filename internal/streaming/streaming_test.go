package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemony-ai/cascadeflow-sub010/internal/pipeline"
	"github.com/lemony-ai/cascadeflow-sub010/internal/pricebook"
	"github.com/lemony-ai/cascadeflow-sub010/internal/quality"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

type fakeProvider struct {
	name    string
	content string
	err     error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Content: f.content, Usage: provider.Usage{InputTokens: 5, OutputTokens: 5, TotalTokens: 10}}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	return nil, provider.NewError(provider.KindInternal, f.name, "not supported", nil)
}

func collect(ctx context.Context, t *testing.T, s *Stream) []cascade.StreamEvent {
	t.Helper()
	var events []cascade.StreamEvent
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out collecting stream events")
		}
	}
}

func newTestEngine(draftContent, verifierContent string) *Engine {
	drafter := &fakeProvider{name: "cheap", content: draftContent}
	verifier := &fakeProvider{name: "expensive", content: verifierContent}
	book := pricebook.New()
	deps := pipeline.Deps{
		Providers: map[string]provider.Provider{"cheap": drafter, "expensive": verifier},
		PriceCalc: pricebook.NewCalculator(book),
		Quality:   quality.NewValidator(nil, nil),
	}
	candidates := []cascade.ModelConfig{
		{Name: "gpt-4", Provider: "expensive", CostPer1kInput: 0.01, CostPer1kOutput: 0.03, QualityScore: 0.95, SpeedMs: 2000},
		{Name: "gpt-4o-mini", Provider: "cheap", CostPer1kInput: 0.0002, CostPer1kOutput: 0.0006, QualityScore: 0.8, SpeedMs: 400},
	}
	p := pipeline.New(deps, candidates, nil)
	return New(p)
}

func TestStream_FirstEventIsRouting(t *testing.T) {
	e := newTestEngine("a balanced draft answer with enough length", "verifier answer")
	s := e.Stream(context.Background(), cascade.Query{Prompt: "what is 2+2"}, pipeline.Options{})
	events := collect(context.Background(), t, s)

	require.NotEmpty(t, events)
	assert.Equal(t, cascade.EventRouting, events[0].Type)
}

func TestStream_TerminalEventIsCompleteOrError(t *testing.T) {
	e := newTestEngine("a balanced draft answer with enough length", "verifier answer")
	s := e.Stream(context.Background(), cascade.Query{Prompt: "what is 2+2"}, pipeline.Options{})
	events := collect(context.Background(), t, s)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Contains(t, []cascade.EventType{cascade.EventComplete, cascade.EventError}, last.Type)
}

func TestStream_ChunksConcatenateToFinalText(t *testing.T) {
	content := "this draft response is long enough to be split into multiple simulated chunks for the test"
	e := newTestEngine(content, "verifier answer")
	s := e.Stream(context.Background(), cascade.Query{Prompt: "explain something simple"}, pipeline.Options{})
	events := collect(context.Background(), t, s)

	var concatenated string
	for _, ev := range events {
		if ev.Type == cascade.EventChunk {
			concatenated += ev.Content
		}
	}
	assert.Equal(t, content, concatenated)
}

func TestStream_DraftDecisionPrecedesSwitch(t *testing.T) {
	e := newTestEngine("", "a full verifier answer with plenty of content")
	s := e.Stream(context.Background(), cascade.Query{Prompt: "explain quantum entanglement in depth"}, pipeline.Options{})
	events := collect(context.Background(), t, s)

	decisionIdx, switchIdx := -1, -1
	for i, ev := range events {
		if ev.Type == cascade.EventDraftDecision && decisionIdx == -1 {
			decisionIdx = i
		}
		if ev.Type == cascade.EventSwitch && switchIdx == -1 {
			switchIdx = i
		}
	}
	require.NotEqual(t, -1, decisionIdx)
	require.NotEqual(t, -1, switchIdx)
	assert.Less(t, decisionIdx, switchIdx)
}

func TestStream_SwitchPrecedesVerifierChunk(t *testing.T) {
	e := newTestEngine("", "a full verifier answer with plenty of content")
	s := e.Stream(context.Background(), cascade.Query{Prompt: "explain quantum entanglement in depth"}, pipeline.Options{})
	events := collect(context.Background(), t, s)

	switchIdx, firstVerifierChunkIdx := -1, -1
	for i, ev := range events {
		if ev.Type == cascade.EventSwitch {
			switchIdx = i
		}
		if ev.Type == cascade.EventChunk && switchIdx != -1 && firstVerifierChunkIdx == -1 {
			firstVerifierChunkIdx = i
		}
	}
	require.NotEqual(t, -1, switchIdx)
	require.NotEqual(t, -1, firstVerifierChunkIdx)
	assert.Less(t, switchIdx, firstVerifierChunkIdx)
}

func TestStream_ProviderErrorYieldsErrorEvent(t *testing.T) {
	failing := &fakeProvider{name: "only", err: provider.NewError(provider.KindBadRequest, "only", "bad request", nil)}
	deps := pipeline.Deps{
		Providers: map[string]provider.Provider{"only": failing},
		PriceCalc: pricebook.NewCalculator(pricebook.New()),
		Quality:   quality.NewValidator(nil, nil),
	}
	p := pipeline.New(deps, []cascade.ModelConfig{{Name: "solo", Provider: "only"}}, nil)
	e := New(p)

	s := e.Stream(context.Background(), cascade.Query{Prompt: "hi"}, pipeline.Options{})
	events := collect(context.Background(), t, s)

	require.NotEmpty(t, events)
	assert.Equal(t, cascade.EventError, events[len(events)-1].Type)
}

func TestStream_ZeroDeadlineYieldsImmediateTimeoutError(t *testing.T) {
	e := newTestEngine("a balanced draft answer with enough length", "verifier answer")
	var deadline int64
	s := e.Stream(context.Background(), cascade.Query{Prompt: "what is 2+2"}, pipeline.Options{DeadlineMs: &deadline})
	events := collect(context.Background(), t, s)

	require.Len(t, events, 1, "deadline_ms=0 should fail immediately with no routing/chunk events")
	assert.Equal(t, cascade.EventError, events[0].Type)
}

func TestStream_CancellationStopsQuickly(t *testing.T) {
	e := newTestEngine("a balanced draft answer with enough length", "verifier answer")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := e.Stream(ctx, cascade.Query{Prompt: "what is 2+2"}, pipeline.Options{})
	events := collect(context.Background(), t, s)
	require.NotEmpty(t, events)
}
