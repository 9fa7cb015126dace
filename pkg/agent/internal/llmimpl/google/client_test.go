package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/tools"
)

func TestGetModelName(t *testing.T) {
	client := NewGeminiClientWithModel("test-key", "gemini-2.5-flash")
	assert.Equal(t, "gemini-2.5-flash", client.GetModelName())
}

func TestConvertMessagesToGemini(t *testing.T) {
	tests := []struct {
		name             string
		messages         []llm.CompletionMessage
		expectSystem     string
		expectContentLen int
		errContains      string
	}{
		{
			name:        "empty messages",
			messages:    []llm.CompletionMessage{},
			errContains: "message list cannot be empty",
		},
		{
			name: "system only",
			messages: []llm.CompletionMessage{
				llm.NewSystemMessage("rules"),
			},
			errContains: "non-system",
		},
		{
			name: "system extracted",
			messages: []llm.CompletionMessage{
				llm.NewSystemMessage("rules"),
				llm.NewUserMessage("hi"),
				llm.NewAssistantMessage("hello"),
				llm.NewUserMessage("parking?"),
			},
			expectSystem:     "rules",
			expectContentLen: 3,
		},
		{
			name: "unsupported role",
			messages: []llm.CompletionMessage{
				{Role: "tool", Content: "x"},
			},
			errContains: "unsupported message role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents, system, err := convertMessagesToGemini(tt.messages)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectSystem, system)
			assert.Len(t, contents, tt.expectContentLen)
		})
	}
}

func TestConvertToolRoundTrip(t *testing.T) {
	contents, _, err := convertMessagesToGemini([]llm.CompletionMessage{
		llm.NewUserMessage("find parking"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search", Parameters: map[string]any{"index": "parking"}}}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "c1", Content: "missing", IsError: true}}},
	})
	require.NoError(t, err)
	require.Len(t, contents, 3)

	assert.Equal(t, "model", contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "search", contents[1].Parts[0].FunctionCall.Name)

	resp := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "search", resp.Name, "response name resolved from the matching call")
	assert.Equal(t, map[string]any{"error": "missing"}, resp.Response)
}

func TestConvertToolsToGemini(t *testing.T) {
	decls := convertToolsToGemini([]tools.ToolDefinition{{
		Name:        "search",
		Description: "Search",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"index":     {Type: "string", Enum: []string{"parking"}},
				"queryBody": {Type: "object", Properties: map[string]*tools.Property{"size": {Type: "integer"}}},
				"tags":      {Type: "array", Items: &tools.Property{Type: "string"}},
			},
			Required: []string{"index", "queryBody"},
		},
	}})
	require.Len(t, decls, 1)
	params := decls[0].Parameters
	assert.Equal(t, genai.TypeObject, params.Type)
	assert.Equal(t, []string{"index", "queryBody"}, params.Required)
	assert.Equal(t, genai.TypeString, params.Properties["index"].Type)
	assert.Equal(t, []string{"parking"}, params.Properties["index"].Enum)
	assert.Equal(t, genai.TypeInteger, params.Properties["queryBody"].Properties["size"].Type)
	assert.Equal(t, genai.TypeString, params.Properties["tags"].Items.Type)
}

func TestConvertFunctionCallsFromGemini(t *testing.T) {
	calls := convertFunctionCallsFromGemini([]*genai.FunctionCall{
		{Name: "search", Args: map[string]any{"index": "parking"}},
		{ID: "id-2", Name: "list_indices"},
	})
	require.Len(t, calls, 2)
	assert.Equal(t, "search", calls[0].ID)
	assert.Equal(t, "id-2", calls[1].ID)
	assert.NotNil(t, calls[1].Parameters)
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "unknown", getStopReason(nil))
	assert.Equal(t, "max_tokens", getStopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
	}))
	assert.Equal(t, "end_turn", getStopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop, Content: &genai.Content{Parts: []*genai.Part{{Text: "ok"}}}}},
	}))
}
