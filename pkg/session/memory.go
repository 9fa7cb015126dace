package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryService keeps sessions in process memory.
type MemoryService struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryService returns an empty in-memory store.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (m *MemoryService) Create(ctx context.Context, appName, userID string, state *State) (*Session, error) {
	return m.CreateWithID(ctx, appName, userID, NewID(), state)
}

func (m *MemoryService) CreateWithID(_ context.Context, appName, userID, id string, state *State) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if state == nil {
		state = NewState()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("session %s already exists", id)
	}
	now := m.now()
	s := &Session{
		ID:        id,
		AppName:   appName,
		UserID:    userID,
		State:     state.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[id] = s
	return s.Clone(), nil
}

func (m *MemoryService) Get(_ context.Context, appName, userID, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || s.AppName != appName || s.UserID != userID {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryService) Save(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("cannot save session without id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := s.Clone()
	stored.UpdatedAt = m.now()
	if existing, ok := m.sessions[s.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	m.sessions[s.ID] = stored
	s.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryService) Delete(_ context.Context, appName, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.AppName != appName || s.UserID != userID {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}
