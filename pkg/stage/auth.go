package stage

import (
	"context"
	"crypto/subtle"
	"iter"

	"backoffice/pkg/config"
	"backoffice/pkg/logx"
	"backoffice/pkg/session"
)

// Messages emitted by the auth challenge.
const (
	MsgAuthPrompt  = "Please enter your password for authentication."
	MsgAuthSuccess = "Authentication successful. Please re-enter your request you want."
	MsgAuthFailed  = "Authentication failed."
)

// SecretLookup returns the expected credential.
type SecretLookup func() (string, error)

// SecretFromConfig resolves the named secret from the secrets file or the environment.
func SecretFromConfig(name string) SecretLookup {
	return func() (string, error) {
		return config.GetSecret(name)
	}
}

type authChallenge struct {
	lookup SecretLookup
	logger *logx.Logger
}

// NewAuthChallenge returns the stage that gates parking requests behind a shared secret.
func NewAuthChallenge(lookup SecretLookup) Stage {
	return &authChallenge{lookup: lookup, logger: logx.NewLogger(NameAuthChallenge)}
}

func (a *authChallenge) Name() string { return NameAuthChallenge }
func (a *authChallenge) Kind() Kind   { return KindAuthChallenge }

func (a *authChallenge) Run(ctx context.Context, inv *Invocation) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		st := inv.State
		success, set := st.APIAuthSuccess()
		if set && success {
			return
		}

		password, present := st.UserAuthPassword()
		if !present {
			st.SetAuthInProgress(true)
			delta := map[string]any{session.KeyAuthInProgress: true}
			if set {
				// A failure from an earlier challenge does not block a new one.
				st.ClearAPIAuthSuccess()
				delta[session.KeyAPIAuthSuccess] = nil
			}
			logx.DebugState(ctx, "auth", "challenge", "awaiting_credential")
			yield(&Event{Author: NameAuthChallenge, Text: MsgAuthPrompt, StateDelta: delta}, nil)
			return
		}

		ok := a.matches(password)
		st.ClearUserAuthPassword()
		st.SetAPIAuthSuccess(ok)
		st.SetAuthInProgress(false)
		delta := map[string]any{
			session.KeyAPIAuthSuccess:   ok,
			session.KeyAuthInProgress:   false,
			session.KeyUserAuthPassword: nil,
		}

		if ok {
			a.logger.Info("Session %s authenticated", inv.SessionID)
			yield(&Event{Author: NameAuthChallenge, Text: MsgAuthSuccess, StateDelta: delta}, nil)
			return
		}
		a.logger.Warn("Authentication failed for session %s", inv.SessionID)
		yield(&Event{Author: NameAuthChallenge, Text: MsgAuthFailed, StateDelta: delta}, nil)
	}
}

// matches compares the credential with the expected secret. A missing secret never matches.
func (a *authChallenge) matches(password string) bool {
	if a.lookup == nil {
		a.logger.Error("No credential source configured")
		return false
	}
	expected, err := a.lookup()
	if err != nil || expected == "" {
		a.logger.Error("Expected credential unavailable: %v", err)
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(expected)) == 1
}
