package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/llmerrors"
	"backoffice/pkg/tools"
)

// makeToolCallArgs creates a ToolCallFunctionArguments from a map for testing.
func makeToolCallArgs(m map[string]any) api.ToolCallFunctionArguments {
	args := api.NewToolCallFunctionArguments()
	for k, v := range m {
		args.Set(k, v)
	}
	return args
}

func TestNewOllamaClientWithModel(t *testing.T) {
	tests := []struct {
		name     string
		hostURL  string
		wantHost string
	}{
		{"valid host", "http://localhost:11434", "http://localhost:11434"},
		{"custom host", "http://192.168.1.100:11434", "http://192.168.1.100:11434"},
		{"invalid URL falls back to default", "://bad", defaultHost},
		{"empty falls back to default", "", defaultHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOllamaClientWithModel(tt.hostURL, "phi4:latest")
			c, ok := client.(*Client)
			require.True(t, ok)
			assert.Equal(t, tt.wantHost, c.hostURL)
			assert.Equal(t, "phi4:latest", client.GetModelName())
		})
	}
}

func TestConvertMessagesToOllama(t *testing.T) {
	msgs, err := convertMessagesToOllama([]llm.CompletionMessage{
		llm.NewSystemMessage("rules"),
		llm.NewUserMessage("parking in Kyoto"),
		{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "search", Parameters: map[string]any{"index": "parking"}}},
		},
		{
			Role:        llm.RoleUser,
			ToolResults: []llm.ToolResult{{ToolCallID: "call_1", Content: "[]"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, "system", msgs[0].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "search", msgs[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)

	_, err = convertMessagesToOllama(nil)
	assert.Error(t, err)
}

func TestConvertToolsToOllama(t *testing.T) {
	result, err := convertToolsToOllama([]tools.ToolDefinition{{
		Name:        "search",
		Description: "Search an index",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"index":     {Type: "string", Enum: []string{"parking", "archive"}},
				"queryBody": {Type: "object", Description: "query DSL"},
			},
			Required: []string{"index", "queryBody"},
		},
	}})
	require.NoError(t, err)
	require.Len(t, result, 1)

	tool := result[0]
	assert.Equal(t, "function", tool.Type)
	assert.Equal(t, "search", tool.Function.Name)
	assert.Equal(t, "object", tool.Function.Parameters.Type)
	assert.Equal(t, []string{"index", "queryBody"}, tool.Function.Parameters.Required)

	indexProp, ok := tool.Function.Parameters.Properties.Get("index")
	require.True(t, ok)
	assert.Len(t, indexProp.Enum, 2)
	_, ok = tool.Function.Parameters.Properties.Get("queryBody")
	assert.True(t, ok)
}

func TestConvertToolCallsFromOllama(t *testing.T) {
	result := convertToolCallsFromOllama([]api.ToolCall{
		{
			ID: "call_abc123",
			Function: api.ToolCallFunction{
				Name:      "search",
				Arguments: makeToolCallArgs(map[string]any{"index": "parking"}),
			},
		},
		{
			Function: api.ToolCallFunction{
				Name:      "search",
				Arguments: makeToolCallArgs(map[string]any{"size": 3}),
			},
		},
	})
	require.Len(t, result, 2)
	assert.Equal(t, "call_abc123", result[0].ID)
	assert.Equal(t, map[string]any{"index": "parking"}, result[0].Parameters)
	assert.Equal(t, "call_1", result[1].ID)
	assert.Equal(t, map[string]any{"size": float64(3)}, result[1].Parameters)
}

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: false}, "incomplete"},
		{api.ChatResponse{Done: true, DoneReason: "stop"}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "length"}, "max_tokens"},
		{api.ChatResponse{Done: true}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "custom_reason"}, "custom_reason"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getStopReason(&tt.resp))
	}
}

func TestClassifyError(t *testing.T) {
	assert.NoError(t, classifyError(nil))
	assert.True(t, llmerrors.Is(classifyError(errors.New("dial tcp 127.0.0.1:11434: connection refused")), llmerrors.ErrorTypeTransient))
	assert.True(t, llmerrors.Is(classifyError(errors.New(`model "nope" not found, try pulling it first`)), llmerrors.ErrorTypeBadPrompt))
	assert.True(t, llmerrors.Is(classifyError(api.StatusError{StatusCode: 429, Status: "429 Too Many Requests"}), llmerrors.ErrorTypeRateLimit))
}

func TestCompleteAgainstFakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             req["model"],
			"created_at":        "2025-01-01T00:00:00Z",
			"message":           map[string]any{"role": "assistant", "content": "Hello there"},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 7,
			"eval_count":        3,
		})
	}))
	defer srv.Close()

	client := NewOllamaClientWithModel(srv.URL, "llama3.1")
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "Hello there", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 7, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
}
