package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMapField(t *testing.T) {
	m := map[string]any{"size": float64(5), "index": "parking"}

	index, err := GetMapField[string](m, "index")
	require.NoError(t, err)
	assert.Equal(t, "parking", index)

	_, err = GetMapField[string](m, "size")
	assert.Error(t, err)

	_, err = GetMapField[string](m, "missing")
	assert.Error(t, err)

	assert.Equal(t, float64(5), GetMapFieldOr(m, "size", float64(10)))
	assert.Equal(t, float64(10), GetMapFieldOr(m, "from", float64(10)))
}

func TestToFloat64(t *testing.T) {
	for _, v := range []any{float64(3), float32(3), 3, int64(3), int32(3)} {
		f, ok := ToFloat64(v)
		assert.True(t, ok)
		assert.Equal(t, float64(3), f)
	}
	_, ok := ToFloat64("3")
	assert.False(t, ok)

	s, ok := SafeAssert[string]("x")
	assert.True(t, ok)
	assert.Equal(t, "x", s)
}
