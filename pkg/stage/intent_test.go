package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		label string
		want  Intent
	}{
		{"PARKING", IntentParking},
		{"  PARKING\n", IntentParking},
		{"OTHER", IntentOther},
		{"parking", IntentOther},
		{"PARKING.", IntentOther},
		{"I think PARKING", IntentOther},
		{"", IntentOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseIntent(tt.label), "label %q", tt.label)
	}
	assert.Equal(t, "PARKING", IntentParking.String())
	assert.Equal(t, "OTHER", IntentOther.String())
}
