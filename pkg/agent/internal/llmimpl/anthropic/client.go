// Package anthropic provides Anthropic Claude client implementation for LLM interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/llmerrors"
	"backoffice/pkg/tools"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient interface.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClientWithModel creates a new Claude client with specific model (raw client, middleware applied at higher level).
func NewClaudeClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for Anthropic API requirements.
// 1. Extracts system messages to top-level system parameter
// 2. Merges consecutive non-assistant messages (content and tool results) into single user messages
// 3. Ensures strict user↔assistant alternation
// 4. Validates sequence ends with user message.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	systemPrompt, nonSystem := llm.SplitSystem(messages)
	if len(nonSystem) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []llm.CompletionMessage
	var pending *llm.CompletionMessage
	flush := func() {
		if pending != nil {
			merged = append(merged, *pending)
			pending = nil
		}
	}

	for i := range nonSystem {
		msg := nonSystem[i]
		if msg.Role == llm.RoleAssistant {
			flush()
			merged = append(merged, msg)
			continue
		}
		if pending == nil {
			pending = &llm.CompletionMessage{Role: llm.RoleUser}
		}
		if msg.Content != "" {
			if pending.Content != "" {
				pending.Content += "\n\n"
			}
			pending.Content += msg.Content
		}
		pending.ToolResults = append(pending.ToolResults, msg.ToolResults...)
	}
	flush()

	for i := range merged {
		if i == 0 && merged[i].Role != llm.RoleUser {
			return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[i].Role)
		}
		if i > 0 && merged[i].Role == merged[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, merged[i].Role)
		}
	}

	if last := merged[len(merged)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}

	return systemPrompt, merged, nil
}

// toMessageParams converts alternating messages into content blocks. Tool results come first
// in a user turn, as the API requires.
func toMessageParams(messages []llm.CompletionMessage) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		var blocks []anthropic.ContentBlockParamUnion

		if msg.Role == llm.RoleAssistant {
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				input := tc.Parameters
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			params = append(params, anthropic.NewAssistantMessage(blocks...))
			continue
		}

		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		if msg.Content != "" || len(blocks) == 0 {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		params = append(params, anthropic.NewUserMessage(blocks...))
	}
	return params
}

func convertTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		schema := def.InputSchema.ToMap()
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
			Required:   def.InputSchema.Required,
		}
		tool := anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
		if def.Description != "" {
			tool.OfTool.Description = anthropic.String(def.Description)
		}
		out = append(out, tool)
	}
	return out
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest is 80 bytes but passing by value matches interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternatingMessages, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	maxTokens := int64(in.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    toMessageParams(alternatingMessages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(in.Temperature)),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
		if in.ToolChoice == "any" {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		} else {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var responseText strings.Builder
	var toolCalls []llm.ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			responseText.WriteString(block.AsText().Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			parameters := map[string]any{}
			if len(toolUse.Input) > 0 {
				if err := json.Unmarshal(toolUse.Input, &parameters); err != nil {
					return llm.CompletionResponse{}, fmt.Errorf("failed to parse tool input: %w", err)
				}
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:         toolUse.ID,
				Name:       toolUse.Name,
				Parameters: parameters,
			})
		}
	}

	return llm.CompletionResponse{
		Content:    responseText.String(),
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest is 80 bytes but passing by value matches interface
func (c *ClaudeClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.StreamFromComplete(ctx, c, in)
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to our structured error types.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llmerrors.Error{
			Err:        err,
			Type:       llmerrors.TypeForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Message:    fmt.Sprintf("Anthropic API error (status %d)", apiErr.StatusCode),
		}
	}
	return llmerrors.Classify("Anthropic", err)
}
