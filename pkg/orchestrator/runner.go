package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"backoffice/pkg/agent/middleware/metrics"
	"backoffice/pkg/logx"
	"backoffice/pkg/session"
	"backoffice/pkg/stage"
)

// SystemErrorMessage is shown to the user when a turn fails unexpectedly.
const SystemErrorMessage = "[System Error] An unexpected error occurred. Please try again later."

// AuthorSystem is the author of system error events.
const AuthorSystem = "system"

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	AppName string
	// HistoryLimit is the number of user/assistant pairs kept per session; zero keeps all.
	HistoryLimit int
	Recorder     metrics.Recorder
	// Transcript, when set, receives every event of every turn.
	Transcript EventSink
}

// EventSink records turn events.
type EventSink interface {
	WriteEvent(sessionID, userID string, ev *stage.Event) error
}

// Runner is the turn invocation surface. It serializes turns per session, loads and
// saves sessions, and converts failures into a system error event.
type Runner struct {
	orch         *Orchestrator
	sessions     session.Service
	appName      string
	historyLimit int
	recorder     metrics.Recorder
	transcript   EventSink
	locks        *keyedMutex
	logger       *logx.Logger
}

// NewRunner creates a runner.
func NewRunner(orch *Orchestrator, sessions session.Service, opts RunnerOptions) *Runner {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Runner{
		orch:         orch,
		sessions:     sessions,
		appName:      opts.AppName,
		historyLimit: opts.HistoryLimit,
		recorder:     recorder,
		transcript:   opts.Transcript,
		locks:        newKeyedMutex(),
		logger:       logx.NewLogger("runner"),
	}
}

// NewSession creates an empty session for userID.
func (r *Runner) NewSession(ctx context.Context, userID string) (*session.Session, error) {
	s, err := r.sessions.Create(ctx, r.appName, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	r.logger.Info("Created session %s for %s", s.ID, userID)
	return s, nil
}

// Session returns a copy of the stored session.
func (r *Runner) Session(ctx context.Context, sessionID, userID string) (*session.Session, error) {
	return r.sessions.Get(ctx, r.appName, userID, sessionID)
}

// Run executes one turn. The sequence always ends normally: failures are reported as a
// final event carrying SystemErrorMessage and the cause is logged. If the consumer stops
// early, the turn still runs to completion and is saved.
func (r *Runner) Run(ctx context.Context, sessionID, userID, message string) iter.Seq2[*stage.Event, error] {
	return func(yield func(*stage.Event, error) bool) {
		unlock := r.locks.Lock(sessionID)
		defer unlock()

		ctx := logx.WithSessionID(ctx, sessionID)
		consumerGone := false
		emit := func(ev *stage.Event) {
			if r.transcript != nil {
				if err := r.transcript.WriteEvent(sessionID, userID, ev); err != nil {
					r.logger.Warn("Failed to record event for session %s: %v", sessionID, err)
				}
			}
			if !consumerGone && !yield(ev, nil) {
				consumerGone = true
			}
		}
		systemError := func(cause error) {
			r.logger.Error("Turn failed for session %s: %v", sessionID, cause)
			r.recorder.IncTurnOutcome(string(OutcomeSystemError))
			emit(&stage.Event{Author: AuthorSystem, Text: SystemErrorMessage, Final: true, Err: cause.Error()})
		}

		sess, err := r.load(ctx, sessionID, userID)
		if err != nil {
			systemError(err)
			return
		}

		turn := &Turn{Invocation: &stage.Invocation{
			SessionID: sess.ID,
			UserID:    userID,
			Message:   message,
			State:     sess.State,
			History:   sess.History,
		}}

		next, stop := iter.Pull2(r.orch.Run(ctx, turn))
		defer stop()

		var failure error
		for {
			step, panicErr := safeNext(next)
			if panicErr != nil {
				failure = panicErr
				break
			}
			if !step.ok {
				break
			}
			if step.err != nil {
				failure = step.err
				break
			}
			emit(step.ev)
		}

		switch {
		case failure != nil:
			systemError(failure)
		case turn.ResetConversation:
			sess.ResetConversation()
		case turn.Outcome == OutcomeFinal:
			sess.AppendTurn(message, sess.State.FinalResponse(), r.historyLimit)
		}

		if err := r.sessions.Save(ctx, sess); err != nil {
			systemError(fmt.Errorf("failed to save session %s: %w", sess.ID, err))
		}
	}
}

// load fetches the session, creating it under the given id when unknown.
func (r *Runner) load(ctx context.Context, sessionID, userID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	sess, err := r.sessions.Get(ctx, r.appName, userID, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		r.logger.Info("Session %s not found, creating it", sessionID)
		sess, err = r.sessions.CreateWithID(ctx, r.appName, userID, sessionID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess.State == nil {
		sess.State = session.NewState()
	}
	return sess, nil
}

type pulled struct {
	ev  *stage.Event
	err error
	ok  bool
}

// safeNext pulls one event, turning a panic in the pipeline into an error.
func safeNext(next func() (*stage.Event, error, bool)) (step pulled, panicErr error) {
	defer func() {
		if p := recover(); p != nil {
			panicErr = fmt.Errorf("panic during turn: %v", p)
		}
	}()
	step.ev, step.err, step.ok = next()
	return step, nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
