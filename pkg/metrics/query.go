// Package metrics queries pipeline usage back out of a Prometheus server.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	llmmetrics "backoffice/pkg/agent/middleware/metrics"
)

// StageUsage represents aggregated token usage for one stage.
//
//nolint:govet // fieldalignment: readability over packing
type StageUsage struct {
	Stage            string `json:"stage"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Requests         int64  `json:"requests"`
	Errors           int64  `json:"errors"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
	now      func() time.Time
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
		now:      time.Now,
	}, nil
}

// selector wraps a counter in increase() when a window such as "24h" is given.
func selector(metric, window string) string {
	if window == "" {
		return metric
	}
	return fmt.Sprintf("increase(%s[%s])", metric, window)
}

// GetStageUsage returns token and request totals per stage, sorted by stage name.
// An empty window means totals since the counters started.
func (q *QueryService) GetStageUsage(ctx context.Context, window string) ([]StageUsage, error) {
	byStage := make(map[string]*StageUsage)
	get := func(stage string) *StageUsage {
		u, ok := byStage[stage]
		if !ok {
			u = &StageUsage{Stage: stage}
			byStage[stage] = u
		}
		return u
	}

	tokens, err := q.vector(ctx, fmt.Sprintf(`sum by (stage, type) (%s)`, selector(llmmetrics.MetricTokensTotal, window)))
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	for _, sample := range tokens {
		u := get(string(sample.Metric["stage"]))
		switch sample.Metric["type"] {
		case "prompt":
			u.PromptTokens = int64(sample.Value)
		case "completion":
			u.CompletionTokens = int64(sample.Value)
		}
	}

	requests, err := q.vector(ctx, fmt.Sprintf(`sum by (stage, status) (%s)`, selector(llmmetrics.MetricRequestsTotal, window)))
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	for _, sample := range requests {
		u := get(string(sample.Metric["stage"]))
		n := int64(sample.Value)
		u.Requests += n
		if sample.Metric["status"] == "error" {
			u.Errors += n
		}
	}

	out := make([]StageUsage, 0, len(byStage))
	for _, u := range byStage {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}

// GetTurnOutcomes returns the number of turns per outcome.
func (q *QueryService) GetTurnOutcomes(ctx context.Context, window string) (map[string]int64, error) {
	vector, err := q.vector(ctx, fmt.Sprintf(`sum by (outcome) (%s)`, selector(llmmetrics.MetricTurnsTotal, window)))
	if err != nil {
		return nil, fmt.Errorf("failed to query turn outcomes: %w", err)
	}
	out := make(map[string]int64, len(vector))
	for _, sample := range vector {
		out[string(sample.Metric["outcome"])] = int64(sample.Value)
	}
	return out, nil
}

// GetGuardRejections returns rejected tool calls per reason.
func (q *QueryService) GetGuardRejections(ctx context.Context, window string) (map[string]int64, error) {
	vector, err := q.vector(ctx, fmt.Sprintf(`sum by (reason) (%s)`, selector(llmmetrics.MetricGuardRejectTotal, window)))
	if err != nil {
		return nil, fmt.Errorf("failed to query guard rejections: %w", err)
	}
	out := make(map[string]int64, len(vector))
	for _, sample := range vector {
		out[string(sample.Metric["reason"])] = int64(sample.Value)
	}
	return out, nil
}

func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with the query purpose
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s", result.Type())
	}
	return vector, nil
}
