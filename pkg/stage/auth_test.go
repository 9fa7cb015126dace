package stage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/pkg/config"
	"backoffice/pkg/session"
)

func fixedSecret(v string) SecretLookup {
	return func() (string, error) { return v, nil }
}

func TestAuthChallengeAlreadyAuthenticated(t *testing.T) {
	st := session.NewState()
	st.SetAPIAuthSuccess(true)

	events, err := collect(t, NewAuthChallenge(fixedSecret("right")), &Invocation{State: st})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.False(t, st.AuthInProgress())
}

func TestAuthChallengePrompts(t *testing.T) {
	st := session.NewState()

	events, err := collect(t, NewAuthChallenge(fixedSecret("right")), &Invocation{State: st})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, MsgAuthPrompt, events[0].Text)
	assert.False(t, events[0].Partial)
	assert.Equal(t, map[string]any{session.KeyAuthInProgress: true}, events[0].StateDelta)
	assert.True(t, st.AuthInProgress())
	_, set := st.APIAuthSuccess()
	assert.False(t, set)
}

func TestAuthChallengeClearsStaleFailure(t *testing.T) {
	st := session.NewState()
	st.SetAPIAuthSuccess(false)

	events, err := collect(t, NewAuthChallenge(fixedSecret("right")), &Invocation{State: st})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, MsgAuthPrompt, events[0].Text)
	assert.Contains(t, events[0].StateDelta, session.KeyAPIAuthSuccess)
	assert.Nil(t, events[0].StateDelta[session.KeyAPIAuthSuccess])
	_, set := st.APIAuthSuccess()
	assert.False(t, set)
	assert.True(t, st.AuthInProgress())
}

func TestAuthChallengeVerifies(t *testing.T) {
	tests := []struct {
		name     string
		password string
		lookup   SecretLookup
		want     bool
		message  string
	}{
		{"match", "right", fixedSecret("right"), true, MsgAuthSuccess},
		{"mismatch", "wrong", fixedSecret("right"), false, MsgAuthFailed},
		{"case sensitive", "RIGHT", fixedSecret("right"), false, MsgAuthFailed},
		{"surrounding space", " right", fixedSecret("right"), false, MsgAuthFailed},
		{"empty secret never matches", "", fixedSecret(""), false, MsgAuthFailed},
		{"lookup error", "right", func() (string, error) { return "", errors.New("boom") }, false, MsgAuthFailed},
		{"no lookup", "right", nil, false, MsgAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := session.NewState()
			st.SetAuthInProgress(true)
			st.SetUserAuthPassword(tt.password)

			events, err := collect(t, NewAuthChallenge(tt.lookup), &Invocation{State: st})
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tt.message, events[0].Text)

			got, set := st.APIAuthSuccess()
			assert.True(t, set)
			assert.Equal(t, tt.want, got)
			assert.False(t, st.AuthInProgress())
			_, present := st.UserAuthPassword()
			assert.False(t, present, "credential must be cleared")
			assert.Equal(t, tt.want, events[0].StateDelta[session.KeyAPIAuthSuccess])
		})
	}
}

func TestSecretFromConfig(t *testing.T) {
	config.SetDecryptedSecrets(map[string]string{"DEMO_AUTH_API_KEY": "from-file"})
	t.Cleanup(func() { config.SetDecryptedSecrets(nil) })

	v, err := SecretFromConfig("DEMO_AUTH_API_KEY")()
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)
}
