package stage

import (
	"fmt"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/toolloop"
	"backoffice/pkg/fieldpath"
	"backoffice/pkg/logx"
	"backoffice/pkg/session"
	"backoffice/pkg/templates"
)

// Stage names, used as event authors and metric labels.
const (
	NameClassifier       = "classifier"
	NameAuthChallenge    = "auth_challenge"
	NameDomainResponder  = "domain_responder"
	NameGeneralResponder = "general_responder"
	NamePolisher         = "polisher"
)

// classifierMaxTokens bounds the one-word label answer.
const classifierMaxTokens = 16

// NewClassifier returns the stage that labels the current message PARKING or OTHER.
func NewClassifier(client llm.LLMClient, renderer *templates.Renderer) (Stage, error) {
	instruction, err := renderer.Render(templates.ClassifierTemplate, &templates.TemplateData{
		ParkingLabel: LabelParking,
		OtherLabel:   LabelOther,
	})
	if err != nil {
		return nil, err
	}
	return &modelStage{
		name:        NameClassifier,
		kind:        KindClassifier,
		instruction: instruction,
		client:      client,
		logger:      logx.NewLogger(NameClassifier),
		input:       func(inv *Invocation) string { return inv.Message },
		output: func(st *session.State, text string) string {
			st.SetClassifierResult(text)
			return session.KeyClassifierResult
		},
		temperature:   llm.TemperatureDeterministic,
		maxIterations: 1,
		maxTokens:     classifierMaxTokens,
	}, nil
}

// NewGeneralResponder returns the tool-less responder for non-parking requests.
func NewGeneralResponder(client llm.LLMClient, renderer *templates.Renderer) (Stage, error) {
	instruction, err := renderer.Render(templates.GeneralTemplate, nil)
	if err != nil {
		return nil, err
	}
	return &modelStage{
		name:        NameGeneralResponder,
		kind:        KindGeneralResponder,
		instruction: instruction,
		client:      client,
		logger:      logx.NewLogger(NameGeneralResponder),
		input:       func(inv *Invocation) string { return inv.Message },
		output:      setResponseText,
		withHistory: true,
		temperature: llm.TemperatureDefault,
	}, nil
}

// NewPolisher returns the stage that rewrites to_polish into polished_text.
func NewPolisher(client llm.LLMClient, renderer *templates.Renderer) (Stage, error) {
	instruction, err := renderer.Render(templates.PolisherTemplate, nil)
	if err != nil {
		return nil, err
	}
	return &modelStage{
		name:        NamePolisher,
		kind:        KindPolisher,
		instruction: instruction,
		client:      client,
		logger:      logx.NewLogger(NamePolisher),
		input:       func(inv *Invocation) string { return inv.State.ToPolish() },
		output: func(st *session.State, text string) string {
			st.SetPolishedText(text)
			return session.KeyPolishedText
		},
		temperature: llm.TemperatureDefault,
	}, nil
}

// DomainOptions configures the parking search responder.
//
//nolint:govet // fieldalignment: readability over packing
type DomainOptions struct {
	Client       llm.LLMClient
	Renderer     *templates.Renderer
	Fields       *fieldpath.Fields
	Index        string
	PayloadParam string

	// Tools may be nil or empty when provisioning failed.
	Tools toolloop.ToolProvider
	// Guard, when set, checks every tool call before it runs.
	Guard *Guard

	MaxIterations   int
	MaxTokens       int
	MaxResultTokens int
}

// NewDomainResponder returns the responder that answers parking requests with the search tools.
// The instruction is rendered once, here.
func NewDomainResponder(opts *DomainOptions) (Stage, error) {
	if opts.Renderer == nil {
		return nil, fmt.Errorf("domain responder needs a renderer")
	}
	data := &templates.TemplateData{
		Index:        opts.Index,
		PayloadParam: opts.PayloadParam,
	}
	if opts.Fields != nil {
		data.DefaultFields = opts.Fields.Default
		data.NestedFields = opts.Fields.Nested
	}
	instruction, err := opts.Renderer.Render(templates.DomainTemplate, data)
	if err != nil {
		return nil, err
	}

	s := &modelStage{
		name:            NameDomainResponder,
		kind:            KindDomainResponder,
		instruction:     instruction,
		client:          opts.Client,
		logger:          logx.NewLogger(NameDomainResponder),
		input:           func(inv *Invocation) string { return inv.Message },
		output:          setResponseText,
		withHistory:     true,
		tools:           opts.Tools,
		temperature:     llm.TemperatureDefault,
		maxIterations:   opts.MaxIterations,
		maxTokens:       opts.MaxTokens,
		maxResultTokens: opts.MaxResultTokens,
	}
	if opts.Guard != nil {
		s.before = func(inv *Invocation) toolloop.BeforeToolCall {
			return opts.Guard.Hook(inv.Message)
		}
	}
	return s, nil
}

func setResponseText(st *session.State, text string) string {
	st.SetResponseText(text)
	return session.KeyResponseText
}
