package metrics

import (
	"sort"
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory aggregation.
// The chat command prints it at exit; it needs no Prometheus server.
type InternalRecorder struct {
	mu       sync.RWMutex
	stages   map[string]*StageMetrics
	outcomes map[string]int64
	rejected int64
}

// StageMetrics represents aggregated LLM usage for one stage.
//
//nolint:govet
type StageMetrics struct {
	Stage            string        `json:"stage"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalTokens      int64         `json:"total_tokens"`
	RequestCount     int64         `json:"request_count"`
	ErrorCount       int64         `json:"error_count"`
	RunCount         int64         `json:"run_count"`
	TotalDuration    time.Duration `json:"total_duration"`
	LastUpdated      time.Time     `json:"last_updated"`
}

// NewInternalRecorder returns an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		stages:   make(map[string]*StageMetrics),
		outcomes: make(map[string]int64),
	}
}

func (r *InternalRecorder) stage(name string) *StageMetrics {
	s, ok := r.stages[name]
	if !ok {
		s = &StageMetrics{Stage: name}
		r.stages[name] = s
	}
	return s
}

// ObserveRequest aggregates token usage per stage.
func (r *InternalRecorder) ObserveRequest(_, stage string, promptTokens, completionTokens int, success bool, _ string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stage(stage)
	s.RequestCount++
	if !success {
		s.ErrorCount++
		return
	}
	s.PromptTokens += int64(promptTokens)
	s.CompletionTokens += int64(completionTokens)
	s.TotalTokens = s.PromptTokens + s.CompletionTokens
	s.LastUpdated = time.Now()
}

// ObserveStage aggregates stage run time.
func (r *InternalRecorder) ObserveStage(stage string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stage(stage)
	s.RunCount++
	s.TotalDuration += duration
}

// IncTurnOutcome counts turns by outcome.
func (r *InternalRecorder) IncTurnOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

// IncGuardRejection counts rejected tool calls.
func (r *InternalRecorder) IncGuardRejection(_, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
}

// Stages returns a copy of the per-stage metrics sorted by stage name.
func (r *InternalRecorder) Stages() []StageMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StageMetrics, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Outcomes returns a copy of the turn outcome counts.
func (r *InternalRecorder) Outcomes() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.outcomes))
	for k, v := range r.outcomes {
		out[k] = v
	}
	return out
}

// GuardRejections returns the number of rejected tool calls.
func (r *InternalRecorder) GuardRejections() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rejected
}

// Reset clears all metrics.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = make(map[string]*StageMetrics)
	r.outcomes = make(map[string]int64)
	r.rejected = 0
}
