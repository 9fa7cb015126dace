// Package config provides configuration loading, validation and secret lookup for backoffice.
//
// A single Config is loaded at startup into a process-wide singleton guarded by a mutex.
// GetConfig returns it by value so callers cannot mutate shared state.
//
//	err := config.LoadConfig("backoffice.yaml")
//	cfg, err := config.GetConfig()
//
// Values come from, in increasing precedence: built-in defaults, the YAML file,
// and BACKOFFICE_* environment variables. Credentials never live in the file;
// they are resolved through GetSecret.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"backoffice/pkg/logx"
)

// Defaults.
const (
	DefaultConfigFile      = "backoffice.yaml"
	DefaultAppName         = "back_office"
	DefaultUserID          = "user1"
	DefaultAuthSecretName  = "DEMO_AUTH_API_KEY"
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultSearchIndex     = "parking"
	DefaultPayloadParam    = "queryBody"
	DefaultConnectTimeout  = 100 * time.Second
	DefaultSQLitePath      = "backoffice.db"
	DefaultHistoryLimit    = 20
	DefaultMaxIterations   = 8
	DefaultMaxResultTokens = 4000
	DefaultMaxTokens       = 4096
	DefaultMetricsListen   = ":9090"
	DefaultRequestTimeout  = 120 * time.Second
)

// Search backends.
const (
	SearchBackendMCP   = "mcp"
	SearchBackendLocal = "local"
	SearchBackendNone  = "none"
)

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendSQLite = "sqlite"
)

// Config is the complete runtime configuration.
type Config struct {
	AppName      string             `yaml:"app_name"`
	DefaultUser  string             `yaml:"default_user"`
	Models       ModelsConfig       `yaml:"models"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Auth         AuthConfig         `yaml:"auth"`
	Search       SearchConfig       `yaml:"search"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	ToolLoop     ToolLoopConfig     `yaml:"toolloop"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Instructions InstructionsConfig `yaml:"instructions"`
}

// ModelsConfig selects the model per stage. Values are bare names or "provider/model".
type ModelsConfig struct {
	Classifier string `yaml:"classifier"`
	Domain     string `yaml:"domain"`
	General    string `yaml:"general"`
	Polisher   string `yaml:"polisher"`
	Guard      string `yaml:"guard"`
}

// ProvidersConfig holds provider endpoints and the per-request timeout applied to every model call.
type ProvidersConfig struct {
	OllamaHost     string        `yaml:"ollama_host"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AuthConfig names the secret holding the expected credential.
type AuthConfig struct {
	SecretName string `yaml:"secret_name"`
}

type SearchConfig struct {
	Backend      string            `yaml:"backend"`
	Index        string            `yaml:"index"`
	PayloadParam string            `yaml:"payload_param"`
	SchemaPath   string            `yaml:"schema_path"`
	MCP          MCPConfig         `yaml:"mcp"`
	Local        LocalSearchConfig `yaml:"local"`
}

// MCPConfig describes the stdio MCP server that provides the search tools.
// EnvSecrets are resolved with GetSecret and passed to the subprocess environment.
type MCPConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
	EnvSecrets     []string      `yaml:"env_secrets"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type LocalSearchConfig struct {
	Documents string `yaml:"documents"`
}

type SessionsConfig struct {
	Backend      string `yaml:"backend"`
	SQLitePath   string `yaml:"sqlite_path"`
	HistoryLimit int    `yaml:"history_limit"`
}

type ToolLoopConfig struct {
	MaxIterations   int `yaml:"max_iterations"`
	MaxResultTokens int `yaml:"max_result_tokens"`
	MaxTokens       int `yaml:"max_tokens"`
}

type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Listen        string `yaml:"listen"`
	PrometheusURL string `yaml:"prometheus_url"`
}

// InstructionsConfig overrides the built-in stage instructions. Empty fields keep the defaults.
type InstructionsConfig struct {
	Classifier     string `yaml:"classifier"`
	Domain         string `yaml:"domain"`
	General        string `yaml:"general"`
	Polisher       string `yaml:"polisher"`
	GuardTranslate string `yaml:"guard_translate"`
}

//nolint:gochecknoglobals // intentional singleton
var (
	config *Config
	mu     sync.RWMutex
	logger = logx.NewLogger("config")
)

// GetConfig returns the current config by value. LoadConfig must have been called.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting replaces the global config. Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// LoadConfig reads path (if it exists), applies defaults and environment overrides,
// validates, and installs the result as the global config. A missing file is not an error.
func LoadConfig(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	config = cfg
	return nil
}

// Load builds a Config without touching the global singleton.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			logger.Info("Loaded config from %s", path)
		case errors.Is(err, os.ErrNotExist):
			logger.Info("Config file %s not found, using defaults", path)
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = DefaultUserID
	}

	for _, m := range []*string{&cfg.Models.Classifier, &cfg.Models.Domain, &cfg.Models.General, &cfg.Models.Polisher, &cfg.Models.Guard} {
		if *m == "" {
			*m = DefaultModel
		}
	}

	if cfg.Providers.OllamaHost == "" {
		cfg.Providers.OllamaHost = DefaultOllamaHost
	}
	if cfg.Providers.RequestTimeout == 0 {
		cfg.Providers.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Auth.SecretName == "" {
		cfg.Auth.SecretName = DefaultAuthSecretName
	}

	s := &cfg.Search
	if s.Backend == "" {
		s.Backend = SearchBackendMCP
	}
	if s.Index == "" {
		s.Index = DefaultSearchIndex
	}
	if s.PayloadParam == "" {
		s.PayloadParam = DefaultPayloadParam
	}
	if s.MCP.Command == "" {
		s.MCP.Command = "npx"
		if len(s.MCP.Args) == 0 {
			s.MCP.Args = []string{"-y", "@elastic/mcp-server-elasticsearch"}
		}
	}
	if len(s.MCP.EnvSecrets) == 0 {
		s.MCP.EnvSecrets = []string{"ES_URL", "ES_USERNAME", "ES_PASSWORD"}
	}
	if s.MCP.ConnectTimeout == 0 {
		s.MCP.ConnectTimeout = DefaultConnectTimeout
	}

	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = SessionBackendMemory
	}
	if cfg.Sessions.SQLitePath == "" {
		cfg.Sessions.SQLitePath = DefaultSQLitePath
	}
	if cfg.Sessions.HistoryLimit == 0 {
		cfg.Sessions.HistoryLimit = DefaultHistoryLimit
	}

	if cfg.ToolLoop.MaxIterations == 0 {
		cfg.ToolLoop.MaxIterations = DefaultMaxIterations
	}
	if cfg.ToolLoop.MaxResultTokens == 0 {
		cfg.ToolLoop.MaxResultTokens = DefaultMaxResultTokens
	}
	if cfg.ToolLoop.MaxTokens == 0 {
		cfg.ToolLoop.MaxTokens = DefaultMaxTokens
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
}

// applyEnvOverrides applies BACKOFFICE_* variables on top of file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKOFFICE_MODEL"); v != "" {
		cfg.Models = ModelsConfig{Classifier: v, Domain: v, General: v, Polisher: v, Guard: v}
	}
	if v := os.Getenv("BACKOFFICE_SEARCH_BACKEND"); v != "" {
		cfg.Search.Backend = v
	}
	if v := os.Getenv("BACKOFFICE_SEARCH_DOCUMENTS"); v != "" {
		cfg.Search.Local.Documents = v
	}
	if v := os.Getenv("BACKOFFICE_SCHEMA_PATH"); v != "" {
		cfg.Search.SchemaPath = v
	}
	if v := os.Getenv("BACKOFFICE_SESSION_BACKEND"); v != "" {
		cfg.Sessions.Backend = v
	}
	if v := os.Getenv("BACKOFFICE_SQLITE_PATH"); v != "" {
		cfg.Sessions.SQLitePath = v
	}
	if v := os.Getenv("BACKOFFICE_METRICS"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = enabled
		} else {
			logger.Warn("Ignoring BACKOFFICE_METRICS=%q: %v", v, err)
		}
	}
	if v := os.Getenv(EnvOllamaHost); v != "" {
		cfg.Providers.OllamaHost = v
	}
}

// Validate checks enumerations, model names and numeric limits.
func Validate(cfg *Config) error {
	var problems []string

	switch cfg.Search.Backend {
	case SearchBackendMCP, SearchBackendLocal, SearchBackendNone:
	default:
		problems = append(problems, fmt.Sprintf("search.backend must be one of mcp, local, none (got %q)", cfg.Search.Backend))
	}
	if cfg.Search.Backend == SearchBackendLocal && cfg.Search.Local.Documents == "" {
		problems = append(problems, "search.local.documents is required for the local backend")
	}

	switch cfg.Sessions.Backend {
	case SessionBackendMemory, SessionBackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("sessions.backend must be memory or sqlite (got %q)", cfg.Sessions.Backend))
	}

	models := map[string]string{
		"classifier": cfg.Models.Classifier,
		"domain":     cfg.Models.Domain,
		"general":    cfg.Models.General,
		"polisher":   cfg.Models.Polisher,
		"guard":      cfg.Models.Guard,
	}
	for _, stage := range []string{"classifier", "domain", "general", "polisher", "guard"} {
		if _, _, err := ResolveModel(models[stage]); err != nil {
			problems = append(problems, fmt.Sprintf("models.%s: %v", stage, err))
		}
	}

	if cfg.Sessions.HistoryLimit < 0 {
		problems = append(problems, "sessions.history_limit must not be negative")
	}
	if cfg.ToolLoop.MaxIterations < 0 || cfg.ToolLoop.MaxResultTokens < 0 || cfg.ToolLoop.MaxTokens < 0 {
		problems = append(problems, "toolloop limits must not be negative")
	}
	if cfg.Search.MCP.ConnectTimeout < 0 {
		problems = append(problems, "search.mcp.connect_timeout must not be negative")
	}
	if cfg.Providers.RequestTimeout < 0 {
		problems = append(problems, "providers.request_timeout must not be negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
