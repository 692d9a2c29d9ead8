package llm

import (
	"time"

	"github.com/HexSleeves/pollen/internal/errors"
)

// ProviderConfig holds what's needed to construct an LLM client.
type ProviderConfig struct {
	Provider  string // "gemini", "openai", "openai-compatible", "anthropic"
	Model     string
	APIKey    string
	BaseURL   string // optional: override API base URL (for OpenAI-compatible endpoints)
	Timeout   time.Duration
	MaxTokens int
}

// NewFromConfig creates the appropriate Completer based on provider name.
// OpenAI-compatible providers also implement Streamer.
func NewFromConfig(cfg ProviderConfig) (Completer, error) {
	switch cfg.Provider {
	case "gemini", "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GeminiBaseURL
		}
		return newOpenAI(cfg, baseURL), nil

	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return newOpenAI(cfg, baseURL), nil

	case "openai-compatible":
		if cfg.BaseURL == "" {
			return nil, errors.Newf(errors.KindConfig, "llm", "provider %q requires base_url", cfg.Provider)
		}
		return newOpenAI(cfg, cfg.BaseURL), nil

	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil

	default:
		return nil, errors.Newf(errors.KindConfig, "llm",
			"unknown LLM provider: %q (supported: gemini, openai, openai-compatible, anthropic)", cfg.Provider)
	}
}

func newOpenAI(cfg ProviderConfig, baseURL string) *OpenAIClient {
	opts := []Option{WithMaxTokens(cfg.MaxTokens)}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	return NewOpenAIClient(cfg.APIKey, cfg.Model, baseURL, opts...)
}
