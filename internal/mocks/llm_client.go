// Package mocks holds test doubles shared across packages.
package mocks

import (
	"context"
	"errors"
	"sync"

	"backoffice/pkg/agent/llm"
)

// ErrScriptExhausted is returned by a scripted mock once every response was used.
var ErrScriptExhausted = errors.New("mock LLM script exhausted")

// MockLLMClient implements llm.LLMClient for testing.
// It provides configurable behavior for Complete and Stream operations.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked. Override to customize behavior.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	modelName string
	mu        sync.Mutex
}

// NewMockLLMClient creates a mock that answers every call with "Mock response".
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{modelName: "mock-model"}
	m.RespondWith("Mock response")
	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// Stream implements llm.LLMClient on top of Complete.
func (m *MockLLMClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.StreamFromComplete(ctx, m, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// SetModelName sets the model name returned by GetModelName.
func (m *MockLLMClient) SetModelName(name string) {
	m.modelName = name
}

// CallCount returns how many times Complete was called.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}

// LastRequest returns the most recent request, or the zero request.
func (m *MockLLMClient) LastRequest() llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.CompleteCalls) == 0 {
		return llm.CompletionRequest{}
	}
	return m.CompleteCalls[len(m.CompleteCalls)-1]
}

// OnComplete sets a custom handler for Complete calls.
func (m *MockLLMClient) OnComplete(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = fn
}

// FailCompleteWith configures Complete to return the specified error.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// RespondWith configures Complete to return the specified content.
func (m *MockLLMClient) RespondWith(content string) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
	})
}

// RespondWithToolCall configures Complete to return a single tool call on every call.
func (m *MockLLMClient) RespondWithToolCall(toolName string, params map[string]any) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{
			ToolCalls:  []llm.ToolCall{{ID: "mock-tool-call-1", Name: toolName, Parameters: params}},
			StopReason: "tool_use",
		}, nil
	})
}

// RespondInSequence returns the given responses in order, then ErrScriptExhausted.
func (m *MockLLMClient) RespondInSequence(responses ...llm.CompletionResponse) {
	var seqMu sync.Mutex
	next := 0
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		seqMu.Lock()
		defer seqMu.Unlock()
		if next >= len(responses) {
			return llm.CompletionResponse{}, ErrScriptExhausted
		}
		resp := responses[next]
		next++
		return resp, nil
	})
}

// ToolCallResponse is a convenience for building a tool-use response.
func ToolCallResponse(id, name string, params map[string]any) llm.CompletionResponse {
	return llm.CompletionResponse{
		ToolCalls:  []llm.ToolCall{{ID: id, Name: name, Parameters: params}},
		StopReason: "tool_use",
	}
}

// TextResponse is a convenience for building a plain text response.
func TextResponse(content string) llm.CompletionResponse {
	return llm.CompletionResponse{Content: content, StopReason: "end_turn"}
}
