package version

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, Program+", version "+Version) {
		t.Errorf("unexpected version string %q", s)
	}
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector()); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "backoffice_build_info" {
		t.Fatalf("unexpected families: %v", families)
	}
	labels := map[string]string{}
	for _, l := range families[0].GetMetric()[0].GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	if labels["version"] != Version {
		t.Errorf("unexpected labels %v", labels)
	}
}
