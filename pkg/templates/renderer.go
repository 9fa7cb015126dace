// Package templates provides the instruction templates for the pipeline stages.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// TemplateData holds the data for template rendering.
type TemplateData struct {
	// Classifier labels.
	ParkingLabel string `json:"parking_label,omitempty"`
	OtherLabel   string `json:"other_label,omitempty"`

	// Domain responder.
	Index         string   `json:"index,omitempty"`
	PayloadParam  string   `json:"payload_param,omitempty"`
	DefaultFields []string `json:"default_fields,omitempty"`
	NestedFields  []string `json:"nested_fields,omitempty"`

	// Guard message translation.
	UserMessage string `json:"user_message,omitempty"`
	Message     string `json:"message,omitempty"`
}

// StateTemplate names one instruction template.
type StateTemplate string

const (
	// ClassifierTemplate is the classifier instruction.
	ClassifierTemplate StateTemplate = "classifier.tpl.md"
	// DomainTemplate is the parking search instruction.
	DomainTemplate StateTemplate = "domain.tpl.md"
	// GeneralTemplate is the general responder instruction.
	GeneralTemplate StateTemplate = "general.tpl.md"
	// PolisherTemplate is the tone polish instruction.
	PolisherTemplate StateTemplate = "polisher.tpl.md"
	// GuardTranslateTemplate is the prompt that re-tones a guard rejection.
	GuardTranslateTemplate StateTemplate = "guard_translate.tpl.md"
)

var allTemplates = []StateTemplate{
	ClassifierTemplate,
	DomainTemplate,
	GeneralTemplate,
	PolisherTemplate,
	GuardTranslateTemplate,
}

// Renderer handles template rendering for the stages.
type Renderer struct {
	templates map[StateTemplate]*template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"join":     strings.Join,
		"contains": strings.Contains,
	}
}

// NewRenderer parses the built-in templates. Overrides replace the built-in text of
// the named templates and are parsed the same way; empty overrides are ignored.
func NewRenderer(overrides map[StateTemplate]string) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[StateTemplate]*template.Template),
	}

	for _, name := range allTemplates {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		text := string(content)
		if override := overrides[name]; strings.TrimSpace(override) != "" {
			text = override
		}

		tmpl, err := template.New(string(name)).Funcs(funcs()).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	for name := range overrides {
		if _, known := r.templates[name]; !known {
			return nil, fmt.Errorf("unknown template override %s", name)
		}
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName StateTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}
	if data == nil {
		data = &TemplateData{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// GetAvailableTemplates returns the template names in load order.
func (r *Renderer) GetAvailableTemplates() []StateTemplate {
	out := make([]StateTemplate, 0, len(allTemplates))
	for _, name := range allTemplates {
		if _, ok := r.templates[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
