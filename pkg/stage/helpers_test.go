package stage

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"backoffice/pkg/templates"
	"backoffice/pkg/tools"
)

// collect drains a stage run.
func collect(t *testing.T, s Stage, inv *Invocation) ([]*Event, error) {
	t.Helper()
	var events []*Event
	for ev, err := range s.Run(context.Background(), inv) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func newRenderer(t *testing.T) *templates.Renderer {
	t.Helper()
	r, err := templates.NewRenderer(nil)
	require.NoError(t, err)
	return r
}

// searchStub stands in for the search tool and counts executions.
type searchStub struct {
	calls atomic.Int32
}

func (s *searchStub) Name() string { return "search" }

func (s *searchStub) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "search",
		Description: "search an index",
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

func (s *searchStub) Exec(_ context.Context, _ map[string]any) (*tools.ExecResult, error) {
	s.calls.Add(1)
	return &tools.ExecResult{Content: `Total results: 1, showing 1 from position 0` + "\n" + `{"name":"Shinjuku Central"}`}, nil
}
