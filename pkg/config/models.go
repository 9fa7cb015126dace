package config

import (
	"fmt"
	"strings"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment / secret names for provider credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// DefaultModel is used for every stage unless overridden.
const DefaultModel = "gpt-4o-mini"

// ModelInfo contains static information about a known model.
type ModelInfo struct {
	Provider         string
	MaxContextTokens int
	MaxOutputTokens  int
}

// KnownModels lists models with known limits. Unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // static registry
var KnownModels = map[string]ModelInfo{
	"gpt-4o-mini": {
		Provider:         ProviderOpenAI,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"gpt-4.1-mini": {
		Provider:         ProviderOpenAI,
		MaxContextTokens: 1047576,
		MaxOutputTokens:  32768,
	},
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-3-5-haiku-latest": {
		Provider:         ProviderAnthropic,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern maps a model-name prefix to a provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns infers providers for models missing from KnownModels.
//
//nolint:gochecknoglobals // static inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"gemma", ProviderOllama},
}

// ResolveModel splits a model reference into provider and bare model name.
// Both "openai/gpt-4o-mini" and "gpt-4o-mini" resolve to ("openai", "gpt-4o-mini").
func ResolveModel(ref string) (provider, model string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("empty model name")
	}

	if p, m, ok := strings.Cut(ref, "/"); ok {
		switch p {
		case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderOllama:
			if m == "" {
				return "", "", fmt.Errorf("model reference %q has no model name", ref)
			}
			return p, m, nil
		}
	}

	provider, err = GetModelProvider(ref)
	if err != nil {
		return "", "", err
	}
	return provider, ref, nil
}

// GetModelProvider returns the API provider for a bare model name.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a model, with conservative defaults for unknown models.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// GetAPIKey returns the API key for a provider, checking the secrets file first, then the environment.
// For Ollama it returns the host URL instead.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		if host, err := GetSecret(EnvOllamaHost); err == nil {
			return host, nil
		}
		if cfg, err := GetConfig(); err == nil && cfg.Providers.OllamaHost != "" {
			return cfg.Providers.OllamaHost, nil
		}
		return DefaultOllamaHost, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}
