// Package tools defines the tool abstraction shared by the model layer, the search
// backends and the parameter guard.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is something a model can call by name.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// ExecResult is the text returned to the model for one tool call.
type ExecResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes a tool to the model provider.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON Schema (object form) of a tool's arguments.
// Required is what the parameter guard inspects before a call.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one JSON Schema property.
type Property struct {
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// ToMap renders the schema as a generic map, the form most provider SDKs accept.
func (s InputSchema) ToMap() map[string]any {
	out := map[string]any{"type": s.Type}
	if out["type"] == "" {
		out["type"] = "object"
	}

	props := make(map[string]any, len(s.Properties))
	for name := range s.Properties {
		p := s.Properties[name]
		props[name] = p.toMap()
	}
	out["properties"] = props

	if len(s.Required) > 0 {
		req := make([]any, len(s.Required))
		for i, r := range s.Required {
			req[i] = r
		}
		out["required"] = req
	}
	return out
}

func (p *Property) toMap() map[string]any {
	out := map[string]any{}
	if p.Type != "" {
		out["type"] = p.Type
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		enum := make([]any, len(p.Enum))
		for i, e := range p.Enum {
			enum[i] = e
		}
		out["enum"] = enum
	}
	if p.Items != nil {
		out["items"] = p.Items.toMap()
	}
	if len(p.Properties) > 0 {
		nested := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			if child != nil {
				nested[name] = child.toMap()
			}
		}
		out["properties"] = nested
	}
	return out
}

// ParseInputSchema decodes a raw JSON Schema (as delivered by an MCP server) into an InputSchema.
// Unknown keywords are dropped.
func ParseInputSchema(raw json.RawMessage) (InputSchema, error) {
	schema := InputSchema{Type: "object"}
	if len(raw) == 0 || string(raw) == "null" {
		return schema, nil
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return InputSchema{}, fmt.Errorf("invalid input schema: %w", err)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}

// ErrorResult builds an error ExecResult.
func ErrorResult(format string, args ...any) *ExecResult {
	return &ExecResult{Content: fmt.Sprintf(format, args...), IsError: true}
}
