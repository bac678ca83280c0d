package provider

import (
	"context"
	"fmt"
)

// MockProvider is a scriptable stand-in Provider for demos and for embedding
// applications that want to exercise CascadeFlow before wiring a real
// backend. Grounded on the teacher's pkg/llm/provider.MockProvider (a
// same-shape responses/errors queue plus call recording), adapted to this
// module's Request/Response/Stream contract.
type MockProvider struct {
	name string

	Responses []*Response
	Errors    []error
	Calls     []Request

	next int
}

// NewMockProvider constructs a MockProvider that answers under the given
// provider name.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// WithResponse appends a completion to Responses. The Nth entry answers the
// Nth call unless Errors holds a non-nil error at the same position.
func (m *MockProvider) WithResponse(r *Response) *MockProvider {
	m.Responses = append(m.Responses, r)
	return m
}

// WithError appends an error to Errors. The Nth entry, if non-nil, is
// returned by the Nth call in place of any response at that position.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.Errors = append(m.Errors, err)
	return m
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	m.Calls = append(m.Calls, req)
	idx := m.next
	m.next++

	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return nil, m.Errors[idx]
	}
	if idx < len(m.Responses) {
		return m.Responses[idx], nil
	}

	content := fmt.Sprintf("[mock:%s] %s", m.name, lastUserContent(req))
	return &Response{
		Content:      content,
		Model:        req.Model,
		FinishReason: "stop",
		Usage: Usage{
			InputTokens:  estimateTokens(req.Messages),
			OutputTokens: len(content) / 4,
			TotalTokens:  estimateTokens(req.Messages) + len(content)/4,
		},
	}, nil
}

func (m *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	resp, err := m.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return &mockStream{content: resp.Content, usage: resp.Usage}, nil
}

func lastUserContent(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func estimateTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content) / 4
	}
	return total
}

// mockStream replays a single Response as one delta chunk plus a Done
// chunk, enough to exercise streaming call sites without a real backend.
type mockStream struct {
	content string
	usage   Usage
	sent    bool
	closed  bool
}

func (s *mockStream) Recv(ctx context.Context) (*Chunk, error) {
	if s.closed {
		return nil, fmt.Errorf("mock stream closed")
	}
	if !s.sent {
		s.sent = true
		return &Chunk{Delta: s.content}, nil
	}
	usage := s.usage
	return &Chunk{Done: true, FinishReason: "stop", Usage: &usage}, nil
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}
