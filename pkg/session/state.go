package session

import (
	"fmt"
)

// State keys as they appear in snapshots, event deltas and the SQLite state column.
const (
	KeyClassifierResult = "classifier_result"
	KeyAuthInProgress   = "auth_in_progress"
	KeyUserAuthPassword = "user_auth_password"
	KeyAPIAuthSuccess   = "api_auth_success"
	KeyResponseText     = "response_text"
	KeyToPolish         = "to_polish"
	KeyPolishedText     = "polished_text"
	KeyFinalResponse    = "final_response"
)

// State is the per-session record shared by the pipeline stages.
// Every field is optional; a nil pointer means the key is absent.
// State is not safe for concurrent use. The Runner serializes turns per session.
type State struct {
	classifierResult *string
	authInProgress   *bool
	userAuthPassword *string
	apiAuthSuccess   *bool
	responseText     *string
	toPolish         *string
	polishedText     *string
	finalResponse    *string
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// ClassifierResult returns the raw classifier label, or "" when unset.
func (s *State) ClassifierResult() string { return deref(s.classifierResult) }

// SetClassifierResult stores the raw classifier label.
func (s *State) SetClassifierResult(v string) { s.classifierResult = ptr(v) }

// AuthInProgress reports whether the next message is expected to be a credential.
func (s *State) AuthInProgress() bool { return deref(s.authInProgress) }

// SetAuthInProgress sets the credential-awaiting flag.
func (s *State) SetAuthInProgress(v bool) { s.authInProgress = ptr(v) }

// UserAuthPassword returns the submitted credential and whether one is present.
func (s *State) UserAuthPassword() (string, bool) {
	if s.userAuthPassword == nil {
		return "", false
	}
	return *s.userAuthPassword, true
}

// SetUserAuthPassword stores the submitted credential.
func (s *State) SetUserAuthPassword(v string) { s.userAuthPassword = ptr(v) }

// ClearUserAuthPassword removes the credential.
func (s *State) ClearUserAuthPassword() { s.userAuthPassword = nil }

// APIAuthSuccess returns the auth outcome. set is false while no outcome has been recorded.
func (s *State) APIAuthSuccess() (value, set bool) {
	if s.apiAuthSuccess == nil {
		return false, false
	}
	return *s.apiAuthSuccess, true
}

// SetAPIAuthSuccess records the auth outcome.
func (s *State) SetAPIAuthSuccess(v bool) { s.apiAuthSuccess = ptr(v) }

// ClearAPIAuthSuccess returns the auth outcome to unset.
func (s *State) ClearAPIAuthSuccess() { s.apiAuthSuccess = nil }

func (s *State) ResponseText() string     { return deref(s.responseText) }
func (s *State) SetResponseText(v string) { s.responseText = ptr(v) }

func (s *State) ToPolish() string     { return deref(s.toPolish) }
func (s *State) SetToPolish(v string) { s.toPolish = ptr(v) }

func (s *State) PolishedText() string     { return deref(s.polishedText) }
func (s *State) SetPolishedText(v string) { s.polishedText = ptr(v) }

func (s *State) FinalResponse() string     { return deref(s.finalResponse) }
func (s *State) SetFinalResponse(v string) { s.finalResponse = ptr(v) }

// Reset empties every field.
func (s *State) Reset() {
	*s = State{}
}

// IsEmpty reports whether no field is set.
func (s *State) IsEmpty() bool {
	return len(s.Snapshot()) == 0
}

// Snapshot returns the set fields keyed by wire name.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any)
	putString := func(key string, p *string) {
		if p != nil {
			out[key] = *p
		}
	}
	putBool := func(key string, p *bool) {
		if p != nil {
			out[key] = *p
		}
	}

	putString(KeyClassifierResult, s.classifierResult)
	putBool(KeyAuthInProgress, s.authInProgress)
	putString(KeyUserAuthPassword, s.userAuthPassword)
	putBool(KeyAPIAuthSuccess, s.apiAuthSuccess)
	putString(KeyResponseText, s.responseText)
	putString(KeyToPolish, s.toPolish)
	putString(KeyPolishedText, s.polishedText)
	putString(KeyFinalResponse, s.finalResponse)
	return out
}

// Restore replaces the state with the fields in m. Unknown keys are ignored.
// A nil value clears the key.
func (s *State) Restore(m map[string]any) error {
	next := State{}
	for key, raw := range m {
		if raw == nil {
			continue
		}
		var err error
		switch key {
		case KeyClassifierResult:
			next.classifierResult, err = asString(key, raw)
		case KeyAuthInProgress:
			next.authInProgress, err = asBool(key, raw)
		case KeyUserAuthPassword:
			next.userAuthPassword, err = asString(key, raw)
		case KeyAPIAuthSuccess:
			next.apiAuthSuccess, err = asBool(key, raw)
		case KeyResponseText:
			next.responseText, err = asString(key, raw)
		case KeyToPolish:
			next.toPolish, err = asString(key, raw)
		case KeyPolishedText:
			next.polishedText, err = asString(key, raw)
		case KeyFinalResponse:
			next.finalResponse, err = asString(key, raw)
		}
		if err != nil {
			return err
		}
	}
	*s = next
	return nil
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := &State{}
	// Snapshot only produces values Restore accepts.
	_ = c.Restore(s.Snapshot())
	return c
}

func asString(key string, v any) (*string, error) {
	str, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("state key %s: expected string, got %T", key, v)
	}
	return &str, nil
}

func asBool(key string, v any) (*bool, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("state key %s: expected bool, got %T", key, v)
	}
	return &b, nil
}
