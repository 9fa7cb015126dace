package stage

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/toolloop"
	"backoffice/pkg/logx"
	"backoffice/pkg/session"
)

// modelStage is a stage backed by one hosted-model run, optionally with tools.
//
//nolint:govet // fieldalignment: readability over packing
type modelStage struct {
	name        string
	kind        Kind
	instruction string
	client      llm.LLMClient
	logger      *logx.Logger

	// input picks the user-turn text. An empty input skips the model call.
	input func(inv *Invocation) string
	// output commits the result to state and returns the key it wrote.
	output func(st *session.State, text string) string

	withHistory bool
	tools       toolloop.ToolProvider
	before      func(inv *Invocation) toolloop.BeforeToolCall

	temperature     float32
	maxIterations   int
	maxTokens       int
	maxResultTokens int
}

func (m *modelStage) Name() string { return m.name }
func (m *modelStage) Kind() Kind   { return m.kind }

func (m *modelStage) Run(ctx context.Context, inv *Invocation) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		input := m.input(inv)
		if strings.TrimSpace(input) == "" {
			m.output(inv.State, "")
			m.logger.Debug("%s: empty input, skipping model call", m.name)
			return
		}

		messages := make([]llm.CompletionMessage, 0, len(inv.History)+2)
		messages = append(messages, llm.NewSystemMessage(m.instruction))
		if m.withHistory {
			messages = append(messages, inv.History...)
		}
		messages = append(messages, llm.NewUserMessage(input))

		cfg := &toolloop.Config{
			Messages:        messages,
			Tools:           m.tools,
			MaxIterations:   m.maxIterations,
			MaxTokens:       m.maxTokens,
			MaxResultTokens: m.maxResultTokens,
			Temperature:     m.temperature,
		}
		if m.before != nil {
			cfg.BeforeToolCall = m.before(inv)
		}

		result, err := toolloop.New(m.client, m.logger).Run(ctx, cfg)
		if err != nil {
			yield(nil, fmt.Errorf("%s failed: %w", m.name, err))
			return
		}

		if len(result.Calls) > 0 {
			records := make([]ToolCallRecord, 0, len(result.Calls))
			for i := range result.Calls {
				c := &result.Calls[i]
				records = append(records, ToolCallRecord{
					Name:    c.Name,
					Args:    c.Args,
					Result:  c.Result,
					IsError: c.IsError,
					Blocked: c.Blocked,
				})
			}
			if !yield(&Event{Author: m.name, Partial: true, ToolCalls: records}, nil) {
				return
			}
		}

		text := strings.TrimSpace(result.Content)
		key := m.output(inv.State, text)
		yield(&Event{
			Author:     m.name,
			Text:       text,
			Partial:    true,
			StateDelta: map[string]any{key: text},
		}, nil)
	}
}
