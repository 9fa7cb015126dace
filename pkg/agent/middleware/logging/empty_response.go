// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"
	"strings"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/llmerrors"
	"backoffice/pkg/logx"
	"backoffice/pkg/tools"
)

const maxLoggedMessageChars = 2000

// EmptyResponseLoggingMiddleware returns a middleware function that logs debugging information
// when a provider returns an empty response, then passes the error through unchanged.
func EmptyResponseLoggingMiddleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm-middleware")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil && llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
					logEmptyResponseDebugInfo(logger, next.GetModelName(), &req)
				}
				//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
				return resp, err
			},
			next.Stream,
			next.GetModelName,
		)
	}
}

// ErrorLoggingMiddleware logs every failed completion with its classified type.
func ErrorLoggingMiddleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm-middleware")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					logger.Warn("LLM call to %s failed (%s): %v", next.GetModelName(), llmerrors.TypeOf(err), err)
				}
				//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
				return resp, err
			},
			next.Stream,
			next.GetModelName,
		)
	}
}

func logEmptyResponseDebugInfo(logger *logx.Logger, model string, req *llm.CompletionRequest) {
	logger.Error("EMPTY RESPONSE FROM %s", model)
	for i := range req.Messages {
		msg := &req.Messages[i]
		logger.Error("Message [%d] Role: %s, Content: %s", i, msg.Role, llmerrors.SanitizePrompt(msg.Content, maxLoggedMessageChars))
	}
	logger.Error("  - Temperature: %v", req.Temperature)
	logger.Error("  - Max Tokens: %d", req.MaxTokens)
	if len(req.Tools) > 0 {
		logger.Error("  - Available Tools: %s", strings.Join(getToolNames(req.Tools), ", "))
	}
}

// getToolNames extracts tool names from tool definitions for logging.
func getToolNames(toolDefs []tools.ToolDefinition) []string {
	names := make([]string, len(toolDefs))
	for i := range toolDefs {
		names[i] = toolDefs[i].Name
	}
	return names
}
