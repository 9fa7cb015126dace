package session

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/pkg/agent/llm"
)

func TestStateAccessorsAndSnapshot(t *testing.T) {
	s := NewState()
	assert.True(t, s.IsEmpty())

	_, set := s.APIAuthSuccess()
	assert.False(t, set)
	_, present := s.UserAuthPassword()
	assert.False(t, present)

	s.SetClassifierResult("PARKING")
	s.SetAuthInProgress(true)
	s.SetUserAuthPassword("pw")
	s.SetAPIAuthSuccess(false)
	s.SetFinalResponse("")

	assert.False(t, s.IsEmpty())
	assert.Equal(t, map[string]any{
		KeyClassifierResult: "PARKING",
		KeyAuthInProgress:   true,
		KeyUserAuthPassword: "pw",
		KeyAPIAuthSuccess:   false,
		KeyFinalResponse:    "",
	}, s.Snapshot())

	v, set := s.APIAuthSuccess()
	assert.True(t, set)
	assert.False(t, v)

	s.ClearAPIAuthSuccess()
	s.ClearUserAuthPassword()
	_, set = s.APIAuthSuccess()
	assert.False(t, set)
	_, present = s.UserAuthPassword()
	assert.False(t, present)

	s.Reset()
	assert.True(t, s.IsEmpty())
	assert.Equal(t, "", s.ClassifierResult())
	assert.False(t, s.AuthInProgress())
}

func TestStateRestore(t *testing.T) {
	s := NewState()
	s.SetResponseText("stale")

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"api_auth_success":true,"to_polish":"hi","unknown":1,"polished_text":null}`), &m))
	require.NoError(t, s.Restore(m))

	v, set := s.APIAuthSuccess()
	assert.True(t, set)
	assert.True(t, v)
	assert.Equal(t, "hi", s.ToPolish())
	assert.Equal(t, "", s.ResponseText(), "restore replaces the whole state")
	assert.Len(t, s.Snapshot(), 2)

	err := s.Restore(map[string]any{KeyAuthInProgress: "yes"})
	require.Error(t, err)
	assert.Equal(t, "hi", s.ToPolish(), "failed restore leaves state untouched")
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := NewState()
	s.SetPolishedText("a")
	c := s.Clone()
	c.SetPolishedText("b")
	assert.Equal(t, "a", s.PolishedText())
	assert.Equal(t, "b", c.PolishedText())
}

func TestTrimHistory(t *testing.T) {
	sess := &Session{State: NewState()}
	for i := 0; i < 5; i++ {
		sess.AppendTurn("q", "a", 2)
	}
	assert.Len(t, sess.History, 4)
	assert.Equal(t, llm.RoleUser, sess.History[0].Role)
	assert.Equal(t, llm.RoleAssistant, sess.History[3].Role)

	unlimited := &Session{}
	for i := 0; i < 3; i++ {
		unlimited.AppendTurn("q", "a", 0)
	}
	assert.Len(t, unlimited.History, 6)

	sess.State.SetAuthInProgress(true)
	sess.ResetConversation()
	assert.Nil(t, sess.History)
	assert.True(t, sess.State.IsEmpty())
}

func TestNewIDIsUnique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

// services runs the same contract against both backends.
func services(t *testing.T) map[string]Service {
	t.Helper()
	mem, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	file, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	return map[string]Service{
		"memory":        NewMemoryService(),
		"sqlite-memory": mem,
		"sqlite-file":   file,
	}
}

func TestServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			initial := NewState()
			initial.SetClassifierResult("OTHER")

			sess, err := svc.Create(ctx, "back_office", "user1", initial)
			require.NoError(t, err)
			require.NotEmpty(t, sess.ID)
			assert.Equal(t, "OTHER", sess.State.ClassifierResult())

			sess.State.SetAuthInProgress(true)
			sess.State.SetAPIAuthSuccess(false)
			sess.AppendTurn("find parking", "here you go", 20)
			require.NoError(t, svc.Save(ctx, sess))

			got, err := svc.Get(ctx, "back_office", "user1", sess.ID)
			require.NoError(t, err)
			assert.Equal(t, sess.State.Snapshot(), got.State.Snapshot())
			require.Len(t, got.History, 2)
			assert.Equal(t, "find parking", got.History[0].Content)
			assert.Equal(t, llm.RoleAssistant, got.History[1].Role)
			assert.False(t, got.CreatedAt.IsZero())

			// Mutating the copy must not leak into the store.
			got.State.Reset()
			again, err := svc.Get(ctx, "back_office", "user1", sess.ID)
			require.NoError(t, err)
			assert.True(t, again.State.AuthInProgress())

			_, err = svc.Get(ctx, "back_office", "someone-else", sess.ID)
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, svc.Delete(ctx, "back_office", "user1", sess.ID))
			_, err = svc.Get(ctx, "back_office", "user1", sess.ID)
			assert.True(t, errors.Is(err, ErrNotFound))
			assert.True(t, errors.Is(svc.Delete(ctx, "back_office", "user1", sess.ID), ErrNotFound))
		})
	}
}

func TestServiceCreateWithID(t *testing.T) {
	ctx := context.Background()
	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := svc.CreateWithID(ctx, "back_office", "user1", "fixed-id", nil)
			require.NoError(t, err)
			assert.Equal(t, "fixed-id", sess.ID)
			assert.True(t, sess.State.IsEmpty())

			_, err = svc.CreateWithID(ctx, "back_office", "user1", "fixed-id", nil)
			assert.Error(t, err)

			_, err = svc.CreateWithID(ctx, "back_office", "user1", "", nil)
			assert.Error(t, err)

			// Save of a never-created session inserts it.
			fresh := &Session{ID: "saved-id", AppName: "back_office", UserID: "user1", State: NewState()}
			require.NoError(t, svc.Save(ctx, fresh))
			got, err := svc.Get(ctx, "back_office", "user1", "saved-id")
			require.NoError(t, err)
			assert.Empty(t, got.History)
		})
	}
}
