package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"backoffice/internal/mocks"
	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/middleware/metrics"
	"backoffice/pkg/fieldpath"
	"backoffice/pkg/search"
	"backoffice/pkg/session"
	"backoffice/pkg/stage"
	"backoffice/pkg/templates"
	"backoffice/pkg/tools"
)

const testSecret = "right"

// harness wires real stages to one mock model per stage.
type harness struct {
	classifier *mocks.MockLLMClient
	domain     *mocks.MockLLMClient
	general    *mocks.MockLLMClient
	polisher   *mocks.MockLLMClient
	recorder   *metrics.InternalRecorder
	registry   *stage.Registry
	orch       *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		classifier: mocks.NewMockLLMClient(),
		domain:     mocks.NewMockLLMClient(),
		general:    mocks.NewMockLLMClient(),
		polisher:   mocks.NewMockLLMClient(),
		recorder:   metrics.NewInternalRecorder(),
	}
	h.classifier.RespondWith("OTHER")
	h.general.RespondWith("general answer")
	h.domain.RespondInSequence(
		mocks.ToolCallResponse("t1", search.ToolName, map[string]any{
			"index": "parking",
			"queryBody": map[string]any{"query": map[string]any{
				"nested": map[string]any{
					"path":  "nearbyStations",
					"query": map[string]any{"match_phrase": map[string]any{"nearbyStations.name": "Hoya"}},
				},
			}},
		}),
		mocks.TextResponse("Hoya Station Parking, 12 spaces"),
	)
	// The polisher decorates whatever it was asked to polish.
	h.polisher.OnComplete(func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		return llm.CompletionResponse{Content: "✨ " + last}, nil
	})

	renderer, err := templates.NewRenderer(nil)
	require.NoError(t, err)
	fields, err := fieldpath.Parse(fieldpath.DefaultSchema)
	require.NoError(t, err)

	idx, err := search.NewLocalIndex("parking", []map[string]any{
		{"id": "p1", "name": "Hoya Station Parking", "nearbyStations": []any{map[string]any{"name": "Hoya"}}},
		{"id": "p2", "name": "Shinjuku Central", "nearbyStations": []any{map[string]any{"name": "Shinjuku"}}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	registry, err := tools.NewRegistry(search.NewTool(idx, "queryBody"))
	require.NoError(t, err)

	classifier, err := stage.NewClassifier(h.classifier, renderer)
	require.NoError(t, err)
	general, err := stage.NewGeneralResponder(h.general, renderer)
	require.NoError(t, err)
	polisher, err := stage.NewPolisher(h.polisher, renderer)
	require.NoError(t, err)
	domain, err := stage.NewDomainResponder(&stage.DomainOptions{
		Client:       h.domain,
		Renderer:     renderer,
		Fields:       fields,
		Index:        "parking",
		PayloadParam: "queryBody",
		Tools:        registry,
		Guard:        stage.NewGuard(stage.GuardOptions{PayloadParam: "queryBody", Recorder: h.recorder}),
	})
	require.NoError(t, err)

	h.registry, err = stage.NewRegistry(
		classifier,
		stage.NewAuthChallenge(func() (string, error) { return testSecret, nil }),
		domain,
		general,
		polisher,
	)
	require.NoError(t, err)
	h.orch = New(h.registry, h.recorder)
	return h
}

// turn runs one orchestrator turn over st and returns its events.
func (h *harness) turn(t *testing.T, st *session.State, message string) (*Turn, []*stage.Event, error) {
	t.Helper()
	turn := &Turn{Invocation: &stage.Invocation{SessionID: "s1", UserID: "user1", Message: message, State: st}}
	var events []*stage.Event
	for ev, err := range h.orch.Run(context.Background(), turn) {
		if err != nil {
			return turn, events, err
		}
		events = append(events, ev)
	}
	return turn, events, nil
}

func (h *harness) modelCalls() map[string]int {
	return map[string]int{
		"classifier": h.classifier.CallCount(),
		"domain":     h.domain.CallCount(),
		"general":    h.general.CallCount(),
		"polisher":   h.polisher.CallCount(),
	}
}

// visible returns the user-facing texts of events.
func visible(events []*stage.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Visible() {
			out = append(out, ev.Text)
		}
	}
	return out
}

func finalEvent(events []*stage.Event) *stage.Event {
	for _, ev := range events {
		if ev.Final {
			return ev
		}
	}
	return nil
}

func joined(ss []string) string { return strings.Join(ss, " | ") }
