// Package session provides conversation sessions and their storage backends.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"backoffice/pkg/agent/llm"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is one conversation. State and History are owned by whoever holds the session
// for the current turn; services hand out copies.
type Session struct {
	ID        string                  `json:"id"`
	AppName   string                  `json:"app_name"`
	UserID    string                  `json:"user_id"`
	State     *State                  `json:"-"`
	History   []llm.CompletionMessage `json:"history"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Service stores sessions.
type Service interface {
	// Create makes a session with a fresh id. A nil state starts empty.
	Create(ctx context.Context, appName, userID string, state *State) (*Session, error)
	// CreateWithID makes a session with the caller's id. It fails if the id is taken.
	CreateWithID(ctx context.Context, appName, userID, id string, state *State) (*Session, error)
	// Get returns a copy of the session or ErrNotFound.
	Get(ctx context.Context, appName, userID, id string) (*Session, error)
	// Save writes the session back.
	Save(ctx context.Context, s *Session) error
	// Delete removes the session. Deleting an unknown id returns ErrNotFound.
	Delete(ctx context.Context, appName, userID, id string) error
}

// NewID returns a time-ordered session id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// AppendTurn appends a user/assistant pair and keeps at most limit pairs.
// A limit of zero or less keeps everything.
func (s *Session) AppendTurn(userText, assistantText string, limit int) {
	s.History = append(s.History,
		llm.NewUserMessage(userText),
		llm.NewAssistantMessage(assistantText),
	)
	s.History = TrimHistory(s.History, limit)
}

// ResetConversation clears state and history but keeps the session identity.
func (s *Session) ResetConversation() {
	if s.State == nil {
		s.State = NewState()
	}
	s.State.Reset()
	s.History = nil
}

// TrimHistory keeps the last limit user/assistant pairs.
func TrimHistory(history []llm.CompletionMessage, limit int) []llm.CompletionMessage {
	if limit <= 0 || len(history) <= limit*2 {
		return history
	}
	return append([]llm.CompletionMessage(nil), history[len(history)-limit*2:]...)
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.State != nil {
		c.State = s.State.Clone()
	} else {
		c.State = NewState()
	}
	c.History = cloneHistory(s.History)
	return &c
}

func cloneHistory(h []llm.CompletionMessage) []llm.CompletionMessage {
	if h == nil {
		return nil
	}
	out := make([]llm.CompletionMessage, len(h))
	copy(out, h)
	return out
}
