package stage

import "strings"

// Intent is the classified request type.
type Intent int

const (
	IntentOther Intent = iota
	IntentParking
)

// Labels the classifier is instructed to output.
const (
	LabelParking = "PARKING"
	LabelOther   = "OTHER"
)

func (i Intent) String() string {
	if i == IntentParking {
		return LabelParking
	}
	return LabelOther
}

// ParseIntent maps a classifier label to an Intent. Only the exact label PARKING
// (surrounding whitespace ignored) selects IntentParking; anything else is IntentOther.
func ParseIntent(label string) Intent {
	if strings.TrimSpace(label) == LabelParking {
		return IntentParking
	}
	return IntentOther
}
