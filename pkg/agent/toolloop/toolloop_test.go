package toolloop_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/mocks"
	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/toolloop"
	"backoffice/pkg/tools"
)

type searchTool struct {
	calls  []map[string]any
	output string
	err    error
}

func (s *searchTool) Name() string { return "search" }

func (s *searchTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "search",
		Description: "Search an index",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"index":     {Type: "string"},
				"queryBody": {Type: "object"},
			},
			Required: []string{"index", "queryBody"},
		},
	}
}

func (s *searchTool) Exec(_ context.Context, args map[string]any) (*tools.ExecResult, error) {
	s.calls = append(s.calls, args)
	if s.err != nil {
		return nil, s.err
	}
	return &tools.ExecResult{Content: s.output}, nil
}

func registry(t *testing.T, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	r, err := tools.NewRegistry(ts...)
	require.NoError(t, err)
	return r
}

func baseMessages() []llm.CompletionMessage {
	return []llm.CompletionMessage{
		llm.NewSystemMessage("You search parking lots."),
		llm.NewUserMessage("Parking in Shinjuku?"),
	}
}

func TestRunPlainAnswer(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith("Hello")

	res, err := toolloop.New(client, nil).Run(context.Background(), &toolloop.Config{Messages: baseMessages()})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Content)
	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.Calls)
	assert.Len(t, res.Messages, 3)
	assert.Empty(t, client.LastRequest().Tools)
}

func TestRunExecutesToolsAndFeedsResults(t *testing.T) {
	tool := &searchTool{output: `{"hits":[{"name":"Lot A"}]}`}
	client := mocks.NewMockLLMClient()
	args := map[string]any{"index": "parking", "queryBody": map[string]any{"query": map[string]any{"match_all": map[string]any{}}}}
	client.RespondInSequence(
		mocks.ToolCallResponse("call-1", "search", args),
		mocks.TextResponse("Lot A is available."),
	)

	var seen []toolloop.CallRecord
	res, err := toolloop.New(client, nil).Run(context.Background(), &toolloop.Config{
		Messages:   baseMessages(),
		Tools:      registry(t, tool),
		OnToolCall: func(r toolloop.CallRecord) { seen = append(seen, r) },
		ToolChoice: "auto",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lot A is available.", res.Content)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, tool.calls, 1)
	assert.Equal(t, "parking", tool.calls[0]["index"])

	require.Len(t, res.Calls, 1)
	assert.Equal(t, seen, res.Calls)
	assert.False(t, res.Calls[0].IsError)

	second := client.LastRequest()
	require.Len(t, second.Tools, 1)
	assert.Equal(t, "auto", second.ToolChoice)
	last := second.Messages[len(second.Messages)-1]
	require.Len(t, last.ToolResults, 1)
	assert.Equal(t, "call-1", last.ToolResults[0].ToolCallID)
	assert.Contains(t, last.ToolResults[0].Content, "Lot A")
	assert.Len(t, second.Messages[len(second.Messages)-2].ToolCalls, 1)
}

func TestRunBeforeToolCallVeto(t *testing.T) {
	tool := &searchTool{output: "never"}
	client := mocks.NewMockLLMClient()
	client.RespondInSequence(
		mocks.ToolCallResponse("call-1", "search", map[string]any{"index": "parking"}),
		mocks.TextResponse("Could you tell me more?"),
	)

	res, err := toolloop.New(client, nil).Run(context.Background(), &toolloop.Config{
		Messages: baseMessages(),
		Tools:    registry(t, tool),
		BeforeToolCall: func(_ context.Context, def tools.ToolDefinition, call *llm.ToolCall) *tools.ExecResult {
			if _, ok := call.Parameters["queryBody"]; !ok {
				return tools.ErrorResult("missing detail for %s", def.Name)
			}
			return nil
		},
	})
	require.NoError(t, err)
	assert.Empty(t, tool.calls, "vetoed tool must not run")
	require.Len(t, res.Calls, 1)
	assert.True(t, res.Calls[0].Blocked)
	assert.True(t, res.Calls[0].IsError)
	assert.Equal(t, "missing detail for search", res.Calls[0].Result)

	last := client.LastRequest().Messages
	assert.True(t, last[len(last)-1].ToolResults[0].IsError)
}

func TestRunToolErrorsAreReturnedToModel(t *testing.T) {
	tool := &searchTool{err: errors.New("connection refused")}
	client := mocks.NewMockLLMClient()
	client.RespondInSequence(
		llm.CompletionResponse{ToolCalls: []llm.ToolCall{
			{ID: "a", Name: "search", Parameters: map[string]any{}},
			{ID: "b", Name: "unknown_tool", Parameters: map[string]any{}},
		}},
		mocks.TextResponse("Search is unavailable."),
	)

	res, err := toolloop.New(client, nil).Run(context.Background(), &toolloop.Config{
		Messages: baseMessages(),
		Tools:    registry(t, tool),
	})
	require.NoError(t, err)
	require.Len(t, res.Calls, 2)
	assert.Contains(t, res.Calls[0].Result, "connection refused")
	assert.True(t, res.Calls[0].IsError)
	assert.Contains(t, res.Calls[1].Result, "not found")
	assert.True(t, res.Calls[1].IsError)

	msgs := client.LastRequest().Messages
	assert.Len(t, msgs[len(msgs)-1].ToolResults, 2)
}

func TestRunMaxIterations(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWithToolCall("search", map[string]any{"index": "parking", "queryBody": map[string]any{"size": 1}})

	res, err := toolloop.New(client, nil).Run(context.Background(), &toolloop.Config{
		Messages:      baseMessages(),
		Tools:         registry(t, &searchTool{output: "[]"}),
		MaxIterations: 3,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, toolloop.ErrMaxIterations))
	assert.Equal(t, 3, client.CallCount())
	assert.Len(t, res.Calls, 3)
}

func TestRunTruncatesLongResults(t *testing.T) {
	tool := &searchTool{output: strings.Repeat("parking lot near the station ", 500)}
	client := mocks.NewMockLLMClient()
	client.RespondInSequence(
		mocks.ToolCallResponse("call-1", "search", map[string]any{}),
		mocks.TextResponse("done"),
	)

	res, err := toolloop.New(client, nil).Run(context.Background(), &toolloop.Config{
		Messages:        baseMessages(),
		Tools:           registry(t, tool),
		MaxResultTokens: 50,
	})
	require.NoError(t, err)
	require.Len(t, res.Calls, 1)
	assert.Less(t, len(res.Calls[0].Result), len(tool.output))
	assert.Contains(t, res.Calls[0].Result, "[truncated]")
}

func TestRunLLMErrorAndCancellation(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.FailCompleteWith(errors.New("provider down"))
	_, err := toolloop.New(client, nil).Run(context.Background(), &toolloop.Config{Messages: baseMessages()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = toolloop.New(mocks.NewMockLLMClient(), nil).Run(ctx, &toolloop.Config{Messages: baseMessages()})
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = toolloop.New(nil, nil).Run(context.Background(), &toolloop.Config{})
	assert.True(t, errors.Is(err, toolloop.ErrNoProvider))
}
