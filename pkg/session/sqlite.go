package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/logx"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	app_name TEXT NOT NULL,
	user_id TEXT NOT NULL,
	state_json TEXT NOT NULL DEFAULT '{}',
	history_json TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_app_user ON sessions(app_name, user_id);
`

// SQLiteService stores sessions in a SQLite database. State and history are JSON columns.
type SQLiteService struct {
	db     *sql.DB
	logger *logx.Logger
	now    func() time.Time
}

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteService, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer; a single connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(sessionsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteService{db: db, logger: logx.NewLogger("sessions"), now: time.Now}
	s.logger.Info("📦 Session database ready: %s", path)
	return s, nil
}

// Close closes the database.
func (s *SQLiteService) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *SQLiteService) Create(ctx context.Context, appName, userID string, state *State) (*Session, error) {
	return s.CreateWithID(ctx, appName, userID, NewID(), state)
}

func (s *SQLiteService) CreateWithID(ctx context.Context, appName, userID, id string, state *State) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if state == nil {
		state = NewState()
	}
	stateJSON, err := json.Marshal(state.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	now := s.now().UTC()
	stamp := now.Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, app_name, user_id, state_json, history_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, '[]', ?, ?)
	`, id, appName, userID, string(stateJSON), stamp, stamp)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("session %s already exists", id)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Session{
		ID:        id,
		AppName:   appName,
		UserID:    userID,
		State:     state.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteService) Get(ctx context.Context, appName, userID, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app_name, user_id, state_json, history_json, created_at, updated_at
		FROM sessions WHERE id = ? AND app_name = ? AND user_id = ?
	`, id, appName, userID)

	var (
		sess                  Session
		stateJSON, historyRaw string
		created, updated      string
	)
	err := row.Scan(&sess.ID, &sess.AppName, &sess.UserID, &stateJSON, &historyRaw, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	var snapshot map[string]any
	if err := json.Unmarshal([]byte(stateJSON), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode state of session %s: %w", id, err)
	}
	sess.State = NewState()
	if err := sess.State.Restore(snapshot); err != nil {
		return nil, fmt.Errorf("failed to restore state of session %s: %w", id, err)
	}

	var history []llm.CompletionMessage
	if err := json.Unmarshal([]byte(historyRaw), &history); err != nil {
		return nil, fmt.Errorf("failed to decode history of session %s: %w", id, err)
	}
	if len(history) > 0 {
		sess.History = history
	}

	if t, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
		sess.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, updated); parseErr == nil {
		sess.UpdatedAt = t
	}
	return &sess, nil
}

// Save upserts the session.
func (s *SQLiteService) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("cannot save session without id")
	}
	state := sess.State
	if state == nil {
		state = NewState()
	}
	stateJSON, err := json.Marshal(state.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	history := sess.History
	if history == nil {
		history = []llm.CompletionMessage{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	now := s.now().UTC()
	created := sess.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, app_name, user_id, state_json, history_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state_json = excluded.state_json,
			history_json = excluded.history_json,
			updated_at = excluded.updated_at
	`, sess.ID, sess.AppName, sess.UserID, string(stateJSON), string(historyJSON),
		created.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	sess.UpdatedAt = now
	return nil
}

func (s *SQLiteService) Delete(ctx context.Context, appName, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ? AND app_name = ? AND user_id = ?`, id, appName, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
