package config

import (
	"fmt"
	"os"
	"slices"
)

// Validate validates configuration values. Returns sentinel errors that
// can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty for provider %q",
				ErrInvalidProvider, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q, must be one of: gemini, googleai, ollama, openai",
			ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.SessionBackend != SessionBackendMemory && c.SessionBackend != SessionBackendPostgres {
		return fmt.Errorf("%w: %q, must be %q or %q",
			ErrInvalidSessionBackend, c.SessionBackend, SessionBackendMemory, SessionBackendPostgres)
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d",
			ErrInvalidRetrieval, c.Retrieval.TopK)
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score_threshold must be between 0 and 1, got %.2f",
			ErrInvalidRetrieval, c.Retrieval.ScoreThreshold)
	}
	if c.Retrieval.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d",
			ErrInvalidRetrieval, c.Retrieval.ChunkSize)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d",
			ErrInvalidRetrieval, c.Retrieval.ChunkOverlap)
	}

	if c.Limits.MaxHistoryMessages < 1 {
		return fmt.Errorf("%w: max_history_messages must be positive, got %d",
			ErrInvalidLimits, c.Limits.MaxHistoryMessages)
	}
	if c.Limits.MaxContextTokens < 1 {
		return fmt.Errorf("%w: max_context_tokens must be positive, got %d",
			ErrInvalidLimits, c.Limits.MaxContextTokens)
	}
	if c.Limits.MaxToolIterations < 1 || c.Limits.MaxToolIterations > 100 {
		return fmt.Errorf("%w: max_tool_iterations must be between 1 and 100, got %d",
			ErrInvalidLimits, c.Limits.MaxToolIterations)
	}
	if c.Limits.TurnTimeoutSeconds < 1 {
		return fmt.Errorf("%w: turn_timeout_seconds must be positive, got %d",
			ErrInvalidLimits, c.Limits.TurnTimeoutSeconds)
	}

	// Override maps must stay consistent: either both empty (use the
	// built-in map) or every phrase's key resolves to a tool.
	if len(c.Intents.Phrases) > 0 || len(c.Intents.Tools) > 0 {
		if len(c.Intents.Phrases) == 0 || len(c.Intents.Tools) == 0 {
			return fmt.Errorf("%w: phrases and tools must be set together", ErrInvalidIntents)
		}
		for phrase, key := range c.Intents.Phrases {
			if _, ok := c.Intents.Tools[key]; !ok {
				return fmt.Errorf("%w: phrase %q maps to key %q which has no tool",
					ErrInvalidIntents, phrase, key)
			}
		}
	}
	for _, name := range c.Intents.AuthTools {
		if name == "" {
			return fmt.Errorf("%w: auth_tools contains an empty tool name", ErrInvalidIntents)
		}
	}
	for _, name := range c.Intents.ConfirmTools {
		if name == "" {
			return fmt.Errorf("%w: confirm_tools contains an empty tool name", ErrInvalidIntents)
		}
	}

	if c.BusinessAPI.BaseURL == "" {
		return fmt.Errorf("%w: base_url cannot be empty", ErrInvalidBusinessAPI)
	}
	if c.BusinessAPI.TimeoutSeconds < 1 {
		return fmt.Errorf("%w: timeout_seconds must be positive, got %d",
			ErrInvalidBusinessAPI, c.BusinessAPI.TimeoutSeconds)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
