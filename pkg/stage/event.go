package stage

// Event is one thing a stage reports while it runs.
//
// Partial events carry intermediate output (classifier labels, raw responder text) and are
// not shown to the user. Auth messages and the final response are not partial.
//
//nolint:govet // fieldalignment: readability over packing
type Event struct {
	Author     string           `json:"author"`
	Text       string           `json:"text,omitempty"`
	Partial    bool             `json:"partial,omitempty"`
	StateDelta map[string]any   `json:"state_delta,omitempty"`
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`
	Final      bool             `json:"final,omitempty"`
	Err        string           `json:"error,omitempty"`
}

// ToolCallRecord summarizes one tool call made by a stage.
type ToolCallRecord struct {
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	Result  string         `json:"result,omitempty"`
	IsError bool           `json:"is_error,omitempty"`
	Blocked bool           `json:"blocked,omitempty"`
}

// Visible reports whether the event is meant for the user.
func (e *Event) Visible() bool {
	return e != nil && !e.Partial && (e.Text != "" || e.Final)
}
