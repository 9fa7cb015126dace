package stage

import (
	"fmt"
)

// Registry is the fixed set of stages, one per kind.
type Registry struct {
	byKind map[Kind]Stage
}

// NewRegistry builds a registry. It requires exactly one stage for every kind.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{byKind: make(map[Kind]Stage, len(Kinds))}
	for _, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("stage cannot be nil")
		}
		if _, dup := r.byKind[s.Kind()]; dup {
			return nil, fmt.Errorf("duplicate stage for kind %s (%s)", s.Kind(), s.Name())
		}
		r.byKind[s.Kind()] = s
	}
	for _, k := range Kinds {
		if _, ok := r.byKind[k]; !ok {
			return nil, fmt.Errorf("missing stage for kind %s", k)
		}
	}
	if len(r.byKind) != len(Kinds) {
		return nil, fmt.Errorf("unknown stage kind registered")
	}
	return r, nil
}

// Get returns the stage of the given kind.
func (r *Registry) Get(k Kind) Stage {
	return r.byKind[k]
}

// Stages returns the stages in pipeline order.
func (r *Registry) Stages() []Stage {
	out := make([]Stage, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, r.byKind[k])
	}
	return out
}
