package mcp

import (
	"context"

	"backoffice/pkg/tools"
)

// Tool exposes one remote MCP tool as a tools.Tool.
type Tool struct {
	client *Client
	def    tools.ToolDefinition
}

// Name returns the remote tool name.
func (t *Tool) Name() string { return t.def.Name }

// Definition returns the tool definition as listed by the server.
func (t *Tool) Definition() tools.ToolDefinition { return t.def }

// Exec calls the tool on the server.
func (t *Tool) Exec(ctx context.Context, args map[string]any) (*tools.ExecResult, error) {
	res, err := t.client.CallTool(ctx, t.def.Name, args)
	if err != nil {
		return nil, err
	}
	return &tools.ExecResult{Content: res.Text(), IsError: res.IsError}, nil
}

// Tools lists the server's tools and wraps each one. Tools whose input schema
// cannot be parsed are skipped with a warning.
func (c *Client) Tools(ctx context.Context) ([]tools.Tool, error) {
	remote, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]tools.Tool, 0, len(remote))
	for i := range remote {
		schema, err := tools.ParseInputSchema(remote[i].InputSchema)
		if err != nil {
			c.logger.Warn("Skipping MCP tool %s: %v", remote[i].Name, err)
			continue
		}
		out = append(out, &Tool{
			client: c,
			def: tools.ToolDefinition{
				Name:        remote[i].Name,
				Description: remote[i].Description,
				InputSchema: schema,
			},
		})
	}
	return out, nil
}
