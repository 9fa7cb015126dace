// Package metrics records LLM calls and pipeline activity.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording LLM and pipeline metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request made on behalf of stage.
	ObserveRequest(
		model, stage string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// ObserveStage records how long one stage run took.
	ObserveStage(stage string, duration time.Duration)

	// IncTurnOutcome counts a finished turn by outcome (final, auth_prompt, ...).
	IncTurnOutcome(outcome string)

	// IncGuardRejection counts a tool call blocked before execution.
	IncGuardRejection(tool, reason string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _ string, _, _ int, _ bool, _ string, _ time.Duration) {}

// ObserveStage does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveStage(_ string, _ time.Duration) {}

// IncTurnOutcome does nothing in the no-op recorder.
func (n *NoopRecorder) IncTurnOutcome(_ string) {}

// IncGuardRejection does nothing in the no-op recorder.
func (n *NoopRecorder) IncGuardRejection(_, _ string) {}

// multiRecorder fans every observation out to several recorders.
type multiRecorder []Recorder

// Multi returns a Recorder that forwards to each non-nil recorder.
func Multi(recorders ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multiRecorder) ObserveRequest(model, stage string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration) {
	for _, r := range m {
		r.ObserveRequest(model, stage, promptTokens, completionTokens, success, errorType, duration)
	}
}

func (m multiRecorder) ObserveStage(stage string, duration time.Duration) {
	for _, r := range m {
		r.ObserveStage(stage, duration)
	}
}

func (m multiRecorder) IncTurnOutcome(outcome string) {
	for _, r := range m {
		r.IncTurnOutcome(outcome)
	}
}

func (m multiRecorder) IncGuardRejection(tool, reason string) {
	for _, r := range m {
		r.IncGuardRejection(tool, reason)
	}
}
