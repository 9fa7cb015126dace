package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/middleware/metrics"
	"backoffice/pkg/agent/toolloop"
	"backoffice/pkg/logx"
	"backoffice/pkg/templates"
	"backoffice/pkg/tools"
)

// Guard rejection messages.
const (
	MsgMoreSearchDetail = "Your search needs a bit more detail. Please tell me more about what you are looking for " +
		"(e.g., location, price, facility, space) so I can help you better!"
	msgMissingParams = "Required information (%s) is missing. Please provide more details!"
	msgGuardFault    = "Exception occurred during parameter check: %v"
)

// Rejection reasons used as metric labels.
const (
	ReasonMissingPayload = "missing_payload"
	ReasonMissingParams  = "missing_params"
	ReasonGuardFault     = "guard_fault"
)

const translateMaxTokens = 512

// Rejection is returned to the model in place of a tool result.
type Rejection struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
	Reason  string   `json:"-"`
}

// GuardOptions configures a Guard.
type GuardOptions struct {
	// PayloadParam is the search body argument that gets the dedicated message.
	PayloadParam string
	// Translator, when set, re-tones the payload message in the user's language.
	Translator llm.LLMClient
	Renderer   *templates.Renderer
	Recorder   metrics.Recorder
}

// Guard checks required tool arguments before a tool runs.
type Guard struct {
	payloadParam string
	translator   llm.LLMClient
	renderer     *templates.Renderer
	recorder     metrics.Recorder
	logger       *logx.Logger
}

// NewGuard creates a guard.
func NewGuard(opts GuardOptions) *Guard {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Guard{
		payloadParam: opts.PayloadParam,
		translator:   opts.Translator,
		renderer:     opts.Renderer,
		recorder:     recorder,
		logger:       logx.NewLogger("guard"),
	}
}

// Check returns nil when every required argument of def is present in args, and a
// rejection otherwise. It never panics or fails; faults become rejections.
func (g *Guard) Check(ctx context.Context, def tools.ToolDefinition, args map[string]any, userMessage string) (rej *Rejection) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Parameter check for %s panicked: %v", def.Name, r)
			rej = &Rejection{Status: "error", Message: fmt.Sprintf(msgGuardFault, r), Reason: ReasonGuardFault}
		}
	}()

	var missing []string
	for _, name := range def.InputSchema.Required {
		if v, ok := args[name]; !ok || isEmptyValue(v) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	g.logger.Info("Tool %s called without required params: %s", def.Name, strings.Join(missing, ", "))

	if g.payloadParam != "" && slices.Contains(missing, g.payloadParam) {
		return &Rejection{
			Status:  "error",
			Message: g.translate(ctx, MsgMoreSearchDetail, userMessage),
			Missing: missing,
			Reason:  ReasonMissingPayload,
		}
	}
	return &Rejection{
		Status:  "error",
		Message: fmt.Sprintf(msgMissingParams, strings.Join(missing, ", ")),
		Missing: missing,
		Reason:  ReasonMissingParams,
	}
}

// Hook adapts the guard to the tool loop for one user message.
func (g *Guard) Hook(userMessage string) toolloop.BeforeToolCall {
	return func(ctx context.Context, def tools.ToolDefinition, call *llm.ToolCall) *tools.ExecResult {
		rej := g.Check(ctx, def, call.Parameters, userMessage)
		if rej == nil {
			return nil
		}
		g.recorder.IncGuardRejection(def.Name, rej.Reason)

		body, err := json.Marshal(rej)
		if err != nil {
			return tools.ErrorResult("%s", rej.Message)
		}
		return &tools.ExecResult{Content: string(body), IsError: true}
	}
}

// translate asks the secondary model to restate message in the user's language.
// Any failure returns message unchanged.
func (g *Guard) translate(ctx context.Context, message, userMessage string) string {
	if g.translator == nil || g.renderer == nil || strings.TrimSpace(userMessage) == "" {
		return message
	}

	prompt, err := g.renderer.Render(templates.GuardTranslateTemplate, &templates.TemplateData{
		UserMessage: userMessage,
		Message:     message,
	})
	if err != nil {
		g.logger.Warn("Failed to render translation prompt: %v", err)
		return message
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage(prompt)})
	req.MaxTokens = translateMaxTokens
	resp, err := g.translator.Complete(ctx, req)
	if err != nil {
		g.logger.Warn("Rejection translation failed, using original message: %v", err)
		return message
	}
	if out := strings.TrimSpace(resp.Content); out != "" {
		return out
	}
	return message
}

// isEmptyValue treats nil, "", and empty maps or slices as missing.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
