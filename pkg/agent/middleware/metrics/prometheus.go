package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names. pkg/metrics queries them back by these names.
const (
	MetricRequestsTotal    = "backoffice_llm_requests_total"
	MetricTokensTotal      = "backoffice_llm_tokens_total"
	MetricRequestDuration  = "backoffice_llm_request_duration_seconds"
	MetricStageDuration    = "backoffice_stage_duration_seconds"
	MetricTurnsTotal       = "backoffice_turns_total"
	MetricGuardRejectTotal = "backoffice_guard_rejections_total"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	turnsTotal      *prometheus.CounterVec
	guardRejections *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder whose collectors are registered with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequestsTotal,
				Help: "Total number of LLM requests by model, stage, and status",
			},
			[]string{"model", "stage", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTokensTotal,
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "stage", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRequestDuration,
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "stage"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Duration of one pipeline stage run in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTurnsTotal,
				Help: "Completed turns by outcome",
			},
			[]string{"outcome"},
		),
		guardRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricGuardRejectTotal,
				Help: "Tool calls rejected by the parameter guard",
			},
			[]string{"tool", "reason"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, stage string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(model, stage, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, stage, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, stage, "completion").Add(float64(completionTokens))
	}

	p.requestDuration.WithLabelValues(model, stage).Observe(duration.Seconds())
}

// ObserveStage records one stage run.
func (p *PrometheusRecorder) ObserveStage(stage string, duration time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncTurnOutcome counts a finished turn.
func (p *PrometheusRecorder) IncTurnOutcome(outcome string) {
	p.turnsTotal.WithLabelValues(outcome).Inc()
}

// IncGuardRejection counts a blocked tool call.
func (p *PrometheusRecorder) IncGuardRejection(tool, reason string) {
	p.guardRejections.WithLabelValues(tool, reason).Inc()
}
