package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultAppName, cfg.AppName)
	assert.Equal(t, DefaultUserID, cfg.DefaultUser)
	assert.Equal(t, DefaultModel, cfg.Models.Classifier)
	assert.Equal(t, DefaultModel, cfg.Models.Guard)
	assert.Equal(t, SearchBackendMCP, cfg.Search.Backend)
	assert.Equal(t, "parking", cfg.Search.Index)
	assert.Equal(t, "queryBody", cfg.Search.PayloadParam)
	assert.Equal(t, "npx", cfg.Search.MCP.Command)
	assert.Equal(t, []string{"-y", "@elastic/mcp-server-elasticsearch"}, cfg.Search.MCP.Args)
	assert.Equal(t, []string{"ES_URL", "ES_USERNAME", "ES_PASSWORD"}, cfg.Search.MCP.EnvSecrets)
	assert.Equal(t, 100*time.Second, cfg.Search.MCP.ConnectTimeout)
	assert.Equal(t, SessionBackendMemory, cfg.Sessions.Backend)
	assert.Equal(t, DefaultHistoryLimit, cfg.Sessions.HistoryLimit)
	assert.Equal(t, DefaultAuthSecretName, cfg.Auth.SecretName)
	assert.Equal(t, DefaultRequestTimeout, cfg.Providers.RequestTimeout)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backoffice.yaml")
	content := `
app_name: lots
models:
  domain: anthropic/claude-sonnet-4-5
  polisher: gemini-2.5-flash
search:
  backend: local
  local:
    documents: ./docs.json
  mcp:
    connect_timeout: 5s
sessions:
  backend: sqlite
  sqlite_path: /tmp/x.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lots", cfg.AppName)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Models.Domain)
	assert.Equal(t, "gemini-2.5-flash", cfg.Models.Polisher)
	assert.Equal(t, DefaultModel, cfg.Models.Classifier)
	assert.Equal(t, SearchBackendLocal, cfg.Search.Backend)
	assert.Equal(t, "./docs.json", cfg.Search.Local.Documents)
	assert.Equal(t, 5*time.Second, cfg.Search.MCP.ConnectTimeout)
	assert.Equal(t, SessionBackendSQLite, cfg.Sessions.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Sessions.SQLitePath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BACKOFFICE_MODEL", "llama3.1")
	t.Setenv("BACKOFFICE_SEARCH_BACKEND", "none")
	t.Setenv("BACKOFFICE_SESSION_BACKEND", "sqlite")
	t.Setenv("BACKOFFICE_METRICS", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "llama3.1", cfg.Models.Classifier)
	assert.Equal(t, "llama3.1", cfg.Models.Polisher)
	assert.Equal(t, SearchBackendNone, cfg.Search.Backend)
	assert.Equal(t, SessionBackendSQLite, cfg.Sessions.Backend)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"bad search backend", func(c *Config) { c.Search.Backend = "solr" }, "search.backend"},
		{"local without documents", func(c *Config) { c.Search.Backend = SearchBackendLocal }, "search.local.documents"},
		{"bad session backend", func(c *Config) { c.Sessions.Backend = "redis" }, "sessions.backend"},
		{"unknown model", func(c *Config) { c.Models.General = "mystery-1" }, "models.general"},
		{"negative history", func(c *Config) { c.Sessions.HistoryLimit = -1 }, "history_limit"},
		{"negative request timeout", func(c *Config) { c.Providers.RequestTimeout = -time.Second }, "request_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetConfigRequiresLoad(t *testing.T) {
	SetConfigForTesting(nil)
	_, err := GetConfig()
	require.Error(t, err)

	require.NoError(t, LoadConfig(""))
	t.Cleanup(func() { SetConfigForTesting(nil) })

	cfg, err := GetConfig()
	require.NoError(t, err)
	cfg.AppName = "mutated"

	again, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultAppName, again.AppName, "GetConfig must return a copy")
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		ref          string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{"gpt-4o-mini", ProviderOpenAI, "gpt-4o-mini", false},
		{"openai/gpt-4o-mini", ProviderOpenAI, "gpt-4o-mini", false},
		{"anthropic/claude-sonnet-4-5", ProviderAnthropic, "claude-sonnet-4-5", false},
		{"claude-3-5-haiku-latest", ProviderAnthropic, "claude-3-5-haiku-latest", false},
		{"gemini-2.0-flash", ProviderGoogle, "gemini-2.0-flash", false},
		{"ollama/phi4:latest", ProviderOllama, "phi4:latest", false},
		{"qwen2.5", ProviderOllama, "qwen2.5", false},
		{"openai/", "", "", true},
		{"", "", "", true},
		{"unknown-model", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			provider, model, err := ResolveModel(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestGetModelInfoUnknownDefaults(t *testing.T) {
	info, known := GetModelInfo("llama3.2")
	assert.False(t, known)
	assert.Equal(t, ProviderOllama, info.Provider)
	assert.Equal(t, 4096, info.MaxOutputTokens)

	info, known = GetModelInfo("gpt-4o-mini")
	assert.True(t, known)
	assert.Equal(t, 16384, info.MaxOutputTokens)
}

func TestGetAPIKey(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	t.Setenv(EnvOllamaHost, "")

	key, err := GetAPIKey(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", key)

	SetDecryptedSecrets(map[string]string{EnvOpenAIAPIKey: "sk-file"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	key, err = GetAPIKey(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", key, "secrets file takes precedence over env")

	t.Setenv(EnvAnthropicAPIKey, "")
	_, err = GetAPIKey(ProviderAnthropic)
	assert.Error(t, err)

	SetConfigForTesting(nil)
	host, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaHost, host)

	_, err = GetAPIKey("bedrock")
	assert.Error(t, err)
}
