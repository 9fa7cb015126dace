// Package toolloop runs a model with tools until it answers in plain text.
package toolloop

import (
	"context"
	"fmt"
	"time"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/logx"
	"backoffice/pkg/tools"
	"backoffice/pkg/utils"
)

const (
	defaultMaxIterations = 8
	maxLoggedChars       = 200
)

// ToolProvider is what the loop needs from a tool registry.
type ToolProvider interface {
	Get(name string) (tools.Tool, error)
	List() []tools.ToolDefinition
}

// BeforeToolCall inspects a call before it executes. A non-nil result is sent to the
// model in place of executing the tool.
type BeforeToolCall func(ctx context.Context, def tools.ToolDefinition, call *llm.ToolCall) *tools.ExecResult

// CallRecord describes one tool call made during a run.
//
//nolint:govet // fieldalignment: readability over packing
type CallRecord struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Result   string         `json:"result"`
	IsError  bool           `json:"is_error,omitempty"`
	Blocked  bool           `json:"blocked,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Config defines one run.
//
//nolint:govet // fieldalignment: struct fields ordered for clarity over memory alignment
type Config struct {
	// Messages is the conversation so far, system instruction first.
	Messages []llm.CompletionMessage

	// Tools may be nil, in which case the model is called once without tools.
	Tools ToolProvider

	// BeforeToolCall, when set, may veto a call.
	BeforeToolCall BeforeToolCall

	// OnToolCall is called after every executed or vetoed call.
	OnToolCall func(CallRecord)

	MaxIterations   int
	MaxTokens       int
	MaxResultTokens int
	Temperature     float32
	ToolChoice      string
}

// Result is the outcome of a run.
type Result struct {
	Content    string
	Calls      []CallRecord
	Iterations int
	Messages   []llm.CompletionMessage
}

// ToolLoop manages LLM interactions with tool calling.
type ToolLoop struct {
	llmClient llm.LLMClient
	logger    *logx.Logger
}

// New creates a new ToolLoop instance.
func New(llmClient llm.LLMClient, logger *logx.Logger) *ToolLoop {
	if logger == nil {
		logger = logx.NewLogger("toolloop")
	}
	return &ToolLoop{
		llmClient: llmClient,
		logger:    logger,
	}
}

// Run calls the model, executes every requested tool, feeds the results back and
// repeats until the model replies without tool calls. The returned Result is non-nil
// even on error and holds whatever was gathered.
func (tl *ToolLoop) Run(ctx context.Context, cfg *Config) (*Result, error) {
	result := &Result{}
	if tl.llmClient == nil {
		return result, ErrNoProvider
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	var toolDefs []tools.ToolDefinition
	if cfg.Tools != nil {
		toolDefs = cfg.Tools.List()
	}

	messages := make([]llm.CompletionMessage, len(cfg.Messages))
	copy(messages, cfg.Messages)

	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			result.Messages = messages
			return result, fmt.Errorf("toolloop interrupted: %w", err)
		}
		result.Iterations = iteration + 1

		req := llm.CompletionRequest{
			Messages:    messages,
			Tools:       toolDefs,
			MaxTokens:   maxTokens,
			Temperature: cfg.Temperature,
		}
		if len(toolDefs) > 0 {
			req.ToolChoice = cfg.ToolChoice
		}

		tl.logger.Debug("Starting LLM call to model '%s' with %d messages, %d tools (iteration %d)",
			tl.llmClient.GetModelName(), len(messages), len(toolDefs), iteration+1)

		start := time.Now()
		resp, err := tl.llmClient.Complete(ctx, req)
		if err != nil {
			tl.logger.Error("LLM call failed after %.3gs: %v", time.Since(start).Seconds(), err)
			result.Messages = messages
			return result, fmt.Errorf("LLM completion failed: %w", err)
		}

		assistant := llm.NewAssistantMessage(resp.Content)
		assistant.ToolCalls = resp.ToolCalls
		messages = append(messages, assistant)

		if len(resp.ToolCalls) == 0 {
			result.Content = resp.Content
			result.Messages = messages
			return result, nil
		}

		// Every tool call must be answered, even if an earlier one failed.
		toolResults := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for i := range resp.ToolCalls {
			record := tl.execute(ctx, cfg, &resp.ToolCalls[i])
			result.Calls = append(result.Calls, record)
			if cfg.OnToolCall != nil {
				cfg.OnToolCall(record)
			}
			toolResults = append(toolResults, llm.ToolResult{
				ToolCallID: record.ID,
				Name:       record.Name,
				Content:    record.Result,
				IsError:    record.IsError,
			})
		}
		messages = append(messages, llm.CompletionMessage{Role: llm.RoleUser, ToolResults: toolResults})
	}

	tl.logger.Warn("Maximum tool iterations (%d) reached", maxIterations)
	result.Messages = messages
	return result, fmt.Errorf("%w (%d)", ErrMaxIterations, maxIterations)
}

func (tl *ToolLoop) execute(ctx context.Context, cfg *Config, call *llm.ToolCall) CallRecord {
	record := CallRecord{ID: call.ID, Name: call.Name, Args: call.Parameters}

	if cfg.Tools == nil {
		record.Result = fmt.Sprintf("tool %s is not available", call.Name)
		record.IsError = true
		return record
	}
	tool, err := cfg.Tools.Get(call.Name)
	if err != nil {
		tl.logger.Warn("Model requested unknown tool %s", call.Name)
		record.Result = err.Error()
		record.IsError = true
		return record
	}

	if cfg.BeforeToolCall != nil {
		if veto := cfg.BeforeToolCall(ctx, tool.Definition(), call); veto != nil {
			tl.logger.Info("Tool %s blocked before execution", call.Name)
			record.Result = veto.Content
			record.IsError = true
			record.Blocked = true
			return record
		}
	}

	start := time.Now()
	out, err := tool.Exec(ctx, call.Parameters)
	record.Duration = time.Since(start)

	switch {
	case err != nil:
		tl.logger.Error("Tool %s failed after %.3fs: %v", call.Name, record.Duration.Seconds(), err)
		record.Result = fmt.Sprintf("Tool failed: %v", err)
		record.IsError = true
	case out == nil:
		record.Result = ""
	default:
		record.Result = out.Content
		record.IsError = out.IsError
	}

	if cfg.MaxResultTokens > 0 {
		record.Result = utils.DefaultTokenCounter().TruncateToTokenLimit(record.Result, cfg.MaxResultTokens)
	}
	tl.logger.Debug("Tool %s completed in %.3fs: %s", call.Name, record.Duration.Seconds(), preview(record.Result))
	return record
}

func preview(s string) string {
	if len(s) > maxLoggedChars {
		return s[:maxLoggedChars] + "..."
	}
	return s
}
