package templates

import (
	"strings"
	"testing"
)

func TestNewRenderer(t *testing.T) {
	renderer, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	data := &TemplateData{
		ParkingLabel:  "PARKING",
		OtherLabel:    "OTHER",
		Index:         "parking",
		PayloadParam:  "queryBody",
		DefaultFields: []string{"address"},
		NestedFields:  []string{"spaces"},
		UserMessage:   "hi",
		Message:       "more detail please",
	}
	for _, name := range renderer.GetAvailableTemplates() {
		out, err := renderer.Render(name, data)
		if err != nil {
			t.Errorf("Failed to render template %s: %v", name, err)
		}
		if strings.Contains(out, "{{") {
			t.Errorf("Template %s left unrendered placeholders", name)
		}
	}
	if got := len(renderer.GetAvailableTemplates()); got != 5 {
		t.Errorf("Expected 5 templates, got %d", got)
	}
}

func TestRenderDomainTemplate(t *testing.T) {
	renderer, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	result, err := renderer.Render(DomainTemplate, &TemplateData{
		Index:         "parking",
		PayloadParam:  "queryBody",
		DefaultFields: []string{"address", "payment.fee", "capacity"},
		NestedFields:  []string{"nearbyStations", "spaces"},
	})
	if err != nil {
		t.Fatalf("Failed to render domain template: %v", err)
	}

	for _, want := range []string{
		"only the 'parking' index",
		"valid 'queryBody' parameter",
		"address, payment.fee, capacity",
		"nested fields (nearbyStations, spaces)",
		"match_phrase",
		`"path": "nearbyStations"`,
	} {
		if !strings.Contains(result, want) {
			t.Errorf("Domain instruction missing %q", want)
		}
	}
}

func TestRenderDomainTemplateWithoutFields(t *testing.T) {
	renderer, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	result, err := renderer.Render(DomainTemplate, &TemplateData{Index: "parking", PayloadParam: "body"})
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	if strings.Contains(result, "by default unless") {
		t.Error("Default field line should be omitted when there are no fields")
	}
	if !strings.Contains(result, `"body": {`) {
		t.Error("Nested example should use the payload parameter name")
	}
}

func TestRendererOverrides(t *testing.T) {
	renderer, err := NewRenderer(map[StateTemplate]string{
		GeneralTemplate:    "Be brief.",
		ClassifierTemplate: "   ",
	})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	out, err := renderer.Render(GeneralTemplate, nil)
	if err != nil || out != "Be brief." {
		t.Errorf("Override not applied: %q, %v", out, err)
	}

	out, err = renderer.Render(ClassifierTemplate, &TemplateData{ParkingLabel: "PARKING", OtherLabel: "OTHER"})
	if err != nil || !strings.Contains(out, "request classifier") {
		t.Errorf("Blank override should keep the built-in text: %q, %v", out, err)
	}

	if _, err := NewRenderer(map[StateTemplate]string{"nope.tpl.md": "x"}); err == nil {
		t.Error("Expected error for unknown override")
	}
	if _, err := NewRenderer(map[StateTemplate]string{PolisherTemplate: "{{.Broken"}); err == nil {
		t.Error("Expected parse error for malformed override")
	}
	if _, err := renderer.Render("missing.tpl.md", nil); err == nil {
		t.Error("Expected error for unknown template")
	}
}

func TestRenderGuardTranslate(t *testing.T) {
	renderer, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	out, err := renderer.Render(GuardTranslateTemplate, &TemplateData{UserMessage: "駐車場を探して", Message: "Need more detail"})
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	want := "Translate the following message into the user's language, matching the tone and style of the user's last message.\n" +
		"User's last message: 駐車場を探して\nMessage: Need more detail"
	if out != want {
		t.Errorf("Unexpected prompt:\n%s", out)
	}
}
