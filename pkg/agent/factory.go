package agent

import (
	"fmt"

	"backoffice/pkg/agent/internal/llmimpl/anthropic"
	"backoffice/pkg/agent/internal/llmimpl/google"
	"backoffice/pkg/agent/internal/llmimpl/ollama"
	"backoffice/pkg/agent/internal/llmimpl/openaiofficial"
	"backoffice/pkg/agent/llm"
	"backoffice/pkg/agent/middleware/logging"
	"backoffice/pkg/agent/middleware/metrics"
	"backoffice/pkg/agent/middleware/timeout"
	"backoffice/pkg/config"
	"backoffice/pkg/logx"
)

// Model-backed stage names. They select the model from config.ModelsConfig and label metrics.
const (
	StageClassifier = "classifier"
	StageDomain     = "domain"
	StageGeneral    = "general"
	StagePolisher   = "polisher"
	StageGuard      = "guard"
)

// rawClientFunc builds an unwrapped provider client.
type rawClientFunc func(provider, model, credential string) (llm.LLMClient, error)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
type LLMClientFactory struct {
	config          config.Config
	metricsRecorder metrics.Recorder
	logger          *logx.Logger
	newRaw          rawClientFunc
}

// NewLLMClientFactory creates a new LLM client factory. A nil recorder disables metrics.
func NewLLMClientFactory(cfg config.Config, recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		config:          cfg,
		metricsRecorder: recorder,
		logger:          logx.NewLogger("llm"),
		newRaw:          newProviderClient,
	}
}

// ModelFor returns the configured model reference for a stage.
func (f *LLMClientFactory) ModelFor(stage string) (string, error) {
	m := f.config.Models
	switch stage {
	case StageClassifier:
		return m.Classifier, nil
	case StageDomain:
		return m.Domain, nil
	case StageGeneral:
		return m.General, nil
	case StagePolisher:
		return m.Polisher, nil
	case StageGuard:
		return m.Guard, nil
	default:
		return "", fmt.Errorf("unsupported stage: %s", stage)
	}
}

// CreateClient creates the client for stage using its configured model.
func (f *LLMClientFactory) CreateClient(stage string) (llm.LLMClient, error) {
	modelRef, err := f.ModelFor(stage)
	if err != nil {
		return nil, err
	}
	return f.CreateClientForModel(stage, modelRef)
}

// CreateClientForModel creates a client for an explicit model reference, labelled as stage.
func (f *LLMClientFactory) CreateClientForModel(stage, modelRef string) (llm.LLMClient, error) {
	provider, model, err := config.ResolveModel(modelRef)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelRef, err)
	}

	credential, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	rawClient, err := f.newRaw(provider, model, credential)
	if err != nil {
		return nil, err
	}

	stageLogger := f.logger.WithComponent("llm-" + stage)
	client := llm.Chain(rawClient,
		logging.ErrorLoggingMiddleware(stageLogger),
		logging.EmptyResponseLoggingMiddleware(stageLogger),
		metrics.Middleware(f.metricsRecorder, nil, stage, stageLogger),
		timeout.Middleware(f.config.Providers.RequestTimeout),
	)

	f.logger.Debug("Created %s client for stage %s (%s)", provider, stage, model)
	return client, nil
}

func newProviderClient(provider, model, credential string) (llm.LLMClient, error) {
	switch provider {
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(credential, model), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(credential, model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(credential, model), nil
	case config.ProviderOllama:
		// For Ollama the credential slot carries the host URL.
		return ollama.NewOllamaClientWithModel(credential, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
