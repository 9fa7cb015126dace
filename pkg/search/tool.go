package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"backoffice/pkg/tools"
)

// ToolName is the name of the local search tool. It matches the Elasticsearch MCP server.
const ToolName = "search"

// Tool exposes a LocalIndex with the same {index, <payload>} contract as the
// Elasticsearch MCP search tool.
type Tool struct {
	index        *LocalIndex
	payloadParam string
}

// NewTool wraps idx. payloadParam names the request-body argument.
func NewTool(idx *LocalIndex, payloadParam string) *Tool {
	return &Tool{index: idx, payloadParam: payloadParam}
}

// Name returns the tool name.
func (t *Tool) Name() string { return ToolName }

// Definition describes the tool to the model.
func (t *Tool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        ToolName,
		Description: "Perform an Elasticsearch search with the provided query DSL.",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"index": {
					Type:        "string",
					Description: "Name of the Elasticsearch index to search",
					Enum:        []string{t.index.Name()},
				},
				t.payloadParam: {
					Type:        "object",
					Description: "Complete Elasticsearch query DSL object that can include query, size, from, sort, etc.",
				},
			},
			Required: []string{"index", t.payloadParam},
		},
	}
}

// Exec runs the search. Bad input is reported to the model as an error result.
func (t *Tool) Exec(ctx context.Context, args map[string]any) (*tools.ExecResult, error) {
	index, _ := args["index"].(string)
	if index != t.index.Name() {
		return tools.ErrorResult("index %q not found; the only index is %q", index, t.index.Name()), nil
	}

	body, err := payload(args[t.payloadParam])
	if err != nil {
		return tools.ErrorResult("invalid %s: %v", t.payloadParam, err), nil
	}

	res, err := t.index.Search(ctx, body)
	if err != nil {
		return tools.ErrorResult("search failed: %v", err), nil
	}
	return &tools.ExecResult{Content: formatResult(res)}, nil
}

// payload accepts the request body as an object or as a JSON string.
func payload(v any) (map[string]any, error) {
	switch b := v.(type) {
	case map[string]any:
		return b, nil
	case string:
		var body map[string]any
		if err := json.Unmarshal([]byte(b), &body); err != nil {
			return nil, fmt.Errorf("not a JSON object: %w", err)
		}
		return body, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
}

func formatResult(res *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total results: %d, showing %d from position %d", res.Total, len(res.Hits), res.From)
	for _, h := range res.Hits {
		data, err := json.Marshal(h.Source)
		if err != nil {
			continue
		}
		sb.WriteByte('\n')
		sb.Write(data)
	}
	return sb.String()
}
