package stage

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStage struct {
	name string
	kind Kind
}

func (f fakeStage) Name() string { return f.name }
func (f fakeStage) Kind() Kind   { return f.kind }
func (f fakeStage) Run(context.Context, *Invocation) iter.Seq2[*Event, error] {
	return func(func(*Event, error) bool) {}
}

func allFakes() []Stage {
	out := make([]Stage, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, fakeStage{name: k.String(), kind: k})
	}
	return out
}

func TestNewRegistry(t *testing.T) {
	fakes := allFakes()
	// Order of registration does not matter.
	reversed := []Stage{fakes[4], fakes[3], fakes[2], fakes[1], fakes[0]}
	r, err := NewRegistry(reversed...)
	require.NoError(t, err)

	for _, k := range Kinds {
		assert.Equal(t, k, r.Get(k).Kind())
	}
	names := make([]string, 0, len(Kinds))
	for _, s := range r.Stages() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"classifier", "auth_challenge", "domain_responder", "general_responder", "polisher"}, names)
}

func TestNewRegistryErrors(t *testing.T) {
	fakes := allFakes()

	_, err := NewRegistry(fakes[:4]...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing stage for kind polisher")

	_, err = NewRegistry(append(fakes, fakeStage{name: "again", kind: KindClassifier})...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = NewRegistry(append(fakes, fakeStage{name: "odd", kind: Kind(42)})...)
	assert.Error(t, err)

	_, err = NewRegistry(nil)
	assert.Error(t, err)
}
