// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.stationmind/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive values (passwords) are masked in MarshalJSON and String;
// validation uses sentinel errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidSessionBackend indicates the session backend is unknown.
	ErrInvalidSessionBackend = errors.New("invalid session backend")

	// ErrInvalidRetrieval indicates a retrieval parameter is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidLimits indicates a conversation limit is out of range.
	ErrInvalidLimits = errors.New("invalid limits configuration")

	// ErrInvalidIntents indicates the intent map is inconsistent.
	ErrInvalidIntents = errors.New("invalid intents configuration")

	// ErrInvalidBusinessAPI indicates the business API settings are invalid.
	ErrInvalidBusinessAPI = errors.New("invalid business API configuration")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
)

// Session backend identifiers used in Config.SessionBackend.
const (
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
)

// RetrievalConfig tunes grounded question answering.
type RetrievalConfig struct {
	TopK           int     `mapstructure:"top_k" json:"top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold" json:"score_threshold"`
	ChunkSize      int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap   int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
}

// LimitsConfig bounds a conversation turn.
type LimitsConfig struct {
	MaxHistoryMessages int `mapstructure:"max_history_messages" json:"max_history_messages"`
	MaxContextTokens   int `mapstructure:"max_context_tokens" json:"max_context_tokens"`
	MaxToolIterations  int `mapstructure:"max_tool_iterations" json:"max_tool_iterations"`
	TurnTimeoutSeconds int `mapstructure:"turn_timeout_seconds" json:"turn_timeout_seconds"`
}

// IntentsConfig overrides the built-in intent map. Empty maps keep the
// defaults.
type IntentsConfig struct {
	Phrases      map[string]string `mapstructure:"phrases" json:"phrases"`             // intent phrase -> canonical key
	Tools        map[string]string `mapstructure:"tools" json:"tools"`                 // canonical key -> tool name
	ConfirmTools []string          `mapstructure:"confirm_tools" json:"confirm_tools"` // tools requiring user confirmation
	AuthTools    []string          `mapstructure:"auth_tools" json:"auth_tools"`       // tools requiring an auth token
}

// BusinessAPIConfig locates the external fleet operations API.
type BusinessAPIConfig struct {
	BaseURL        string `mapstructure:"base_url" json:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON().
type Config struct {
	// Model configuration
	Provider      string `mapstructure:"provider" json:"provider"` // "gemini" (default), "ollama", "openai"
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"` // used when provider is "ollama"

	// Session persistence
	SessionBackend string `mapstructure:"session_backend" json:"session_backend"` // "memory" or "postgres"

	// PostgreSQL (session store + document store)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	Retrieval   RetrievalConfig   `mapstructure:"retrieval" json:"retrieval"`
	Limits      LimitsConfig      `mapstructure:"limits" json:"limits"`
	Intents     IntentsConfig     `mapstructure:"intents" json:"intents"`
	BusinessAPI BusinessAPIConfig `mapstructure:"business_api" json:"business_api"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".stationmind")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("session_backend", SessionBackendPostgres)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "stationmind")
	v.SetDefault("postgres_password", "stationmind_dev_password")
	v.SetDefault("postgres_db_name", "stationmind")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("retrieval.top_k", 6)
	v.SetDefault("retrieval.score_threshold", 0.3)
	v.SetDefault("retrieval.chunk_size", 500)
	v.SetDefault("retrieval.chunk_overlap", 50)

	v.SetDefault("limits.max_history_messages", 15)
	v.SetDefault("limits.max_context_tokens", 16384)
	v.SetDefault("limits.max_tool_iterations", 10)
	v.SetDefault("limits.turn_timeout_seconds", 300)

	v.SetDefault("intents.confirm_tools", []string{})
	v.SetDefault("intents.auth_tools", []string{"uptime_report", "station_info"})

	v.SetDefault("business_api.base_url", "http://localhost:9100")
	v.SetDefault("business_api.timeout_seconds", 60)

	v.SetDefault("server_addr", ":8080")
}

// bindEnvVariables binds environment overrides explicitly.
// API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the
// Genkit plugins, not via Viper; Validate checks their presence for the
// selected provider.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "STATIONMIND_PROVIDER")
	mustBind("model_name", "STATIONMIND_MODEL_NAME")
	mustBind("embedder_model", "STATIONMIND_EMBEDDER_MODEL")
	mustBind("ollama_host", "STATIONMIND_OLLAMA_HOST")
	mustBind("session_backend", "STATIONMIND_SESSION_BACKEND")
	mustBind("business_api.base_url", "STATIONMIND_BUSINESS_API_URL")
	mustBind("server_addr", "STATIONMIND_SERVER_ADDR")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 characters or
// fewer are fully masked; longer ones keep the first and last 2 characters
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/qwen3", "openai/gpt-4o".
// A ModelName already containing "/" is returned as-is.
func (c *Config) FullModelName() string {
	return c.qualify(c.ModelName)
}

// FullEmbedderName returns the provider-qualified embedder name.
func (c *Config) FullEmbedderName() string {
	return c.qualify(c.EmbedderModel)
}

func (c *Config) qualify(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + name
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + name
	default:
		return ProviderGoogleAI + "/" + name
	}
}
