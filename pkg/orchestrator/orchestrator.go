// Package orchestrator drives one conversational turn through the pipeline stages.
//
// The conceptual states (awaiting credential, classifying, auth gate, dispatching,
// polishing, done) are not stored; they are re-derived from the session state at the
// start of every turn.
package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"time"

	"backoffice/pkg/agent/middleware/metrics"
	"backoffice/pkg/logx"
	"backoffice/pkg/session"
	"backoffice/pkg/stage"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeFinal       Outcome = "final"
	OutcomeAuthPrompt  Outcome = "auth_prompt"
	OutcomeAuthSuccess Outcome = "auth_success"
	OutcomeAuthFailed  Outcome = "auth_failed"
	OutcomeSystemError Outcome = "system_error"
)

// AuthorOrchestrator is the author of the final event.
const AuthorOrchestrator = "orchestrator"

const debugDomain = "orchestrator"

// Turn is one pass through the pipeline. Outcome and ResetConversation are filled in
// while the event sequence is consumed.
type Turn struct {
	Invocation *stage.Invocation

	Outcome Outcome
	// ResetConversation is set when the session history must be cleared as well as the state.
	ResetConversation bool
}

// Orchestrator is the root state machine.
type Orchestrator struct {
	stages   *stage.Registry
	recorder metrics.Recorder
	logger   *logx.Logger
}

// New creates an orchestrator over a complete stage registry.
func New(stages *stage.Registry, recorder metrics.Recorder) *Orchestrator {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Orchestrator{
		stages:   stages,
		recorder: recorder,
		logger:   logx.NewLogger("orchestrator"),
	}
}

// Run executes the turn and re-yields every stage event in order. A stage error is
// yielded once and ends the sequence; the caller decides how to surface it.
func (o *Orchestrator) Run(ctx context.Context, turn *Turn) iter.Seq2[*stage.Event, error] {
	return func(yield func(*stage.Event, error) bool) {
		inv := turn.Invocation
		st := inv.State
		ctx := logx.WithSessionID(ctx, inv.SessionID)

		// A pending challenge consumes the message as the credential and nothing else runs.
		if st.AuthInProgress() {
			logx.DebugState(ctx, debugDomain, "transition", "AWAITING_CREDENTIAL")
			st.SetUserAuthPassword(inv.Message)
			if !o.runStage(ctx, stage.KindAuthChallenge, inv, yield) {
				return
			}
			if ok, set := st.APIAuthSuccess(); set && ok {
				o.finish(turn, OutcomeAuthSuccess)
			} else {
				o.finish(turn, OutcomeAuthFailed)
			}
			return
		}

		logx.DebugState(ctx, debugDomain, "transition", "CLASSIFYING")
		if !o.runStage(ctx, stage.KindClassifier, inv, yield) {
			return
		}
		intent := stage.ParseIntent(st.ClassifierResult())
		logx.Debug(ctx, debugDomain, "classified as %s (label %q)", intent, st.ClassifierResult())

		responder := stage.KindGeneralResponder
		if intent == stage.IntentParking {
			logx.DebugState(ctx, debugDomain, "transition", "AUTH_GATE")
			if !o.runStage(ctx, stage.KindAuthChallenge, inv, yield) {
				return
			}
			ok, set := st.APIAuthSuccess()
			switch {
			case set && !ok:
				st.Reset()
				turn.ResetConversation = true
				o.finish(turn, OutcomeAuthFailed)
				return
			case !set:
				o.finish(turn, OutcomeAuthPrompt)
				return
			}
			responder = stage.KindDomainResponder
		}

		logx.DebugState(ctx, debugDomain, "transition", "DISPATCHING", responder.String())
		if !o.runStage(ctx, responder, inv, yield) {
			return
		}

		logx.DebugState(ctx, debugDomain, "transition", "POLISHING")
		st.SetToPolish(st.ResponseText())
		if !o.runStage(ctx, stage.KindPolisher, inv, yield) {
			return
		}

		final := st.PolishedText()
		st.SetFinalResponse(final)
		logx.DebugState(ctx, debugDomain, "transition", "DONE")
		o.finish(turn, OutcomeFinal)
		yield(&stage.Event{
			Author:     AuthorOrchestrator,
			Text:       final,
			Final:      true,
			StateDelta: map[string]any{session.KeyFinalResponse: final},
		}, nil)
	}
}

// runStage forwards one stage's events. It returns false when the sequence must stop,
// either because the consumer stopped or because the stage failed.
func (o *Orchestrator) runStage(ctx context.Context, kind stage.Kind, inv *stage.Invocation, yield func(*stage.Event, error) bool) bool {
	s := o.stages.Get(kind)
	if err := ctx.Err(); err != nil {
		yield(nil, fmt.Errorf("turn cancelled before %s: %w", s.Name(), err))
		return false
	}

	start := time.Now()
	defer func() { o.recorder.ObserveStage(s.Name(), time.Since(start)) }()

	logx.DebugFlow(ctx, debugDomain, s.Name(), "start")
	for ev, err := range s.Run(ctx, inv) {
		if err != nil {
			o.logger.Error("Stage %s failed: %v", s.Name(), err)
			yield(nil, fmt.Errorf("stage %s: %w", s.Name(), err))
			return false
		}
		if !yield(ev, nil) {
			return false
		}
	}
	logx.DebugFlow(ctx, debugDomain, s.Name(), "done")
	return true
}

func (o *Orchestrator) finish(turn *Turn, outcome Outcome) {
	turn.Outcome = outcome
	o.recorder.IncTurnOutcome(string(outcome))
}
