package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	ProviderAuto      = "auto"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

var (
	ErrInvalidProvider = fmt.Errorf("invalid llm provider")
	ErrMissingAPIKey   = fmt.Errorf("missing api key")
)

type LLMConfig struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
	MaxTries  uint
}

// LLMConfigForProvider returns the defaults for provider with environment
// overrides applied. ProviderAuto resolves to anthropic when
// ANTHROPIC_API_KEY is set, to ollama when OLLAMA_URL is set, and to none
// otherwise.
func LLMConfigForProvider(provider string) (*LLMConfig, error) {
	if provider == "" || provider == ProviderAuto {
		switch {
		case os.Getenv("ANTHROPIC_API_KEY") != "":
			provider = ProviderAnthropic
		case os.Getenv("OLLAMA_URL") != "":
			provider = ProviderOllama
		default:
			provider = ProviderNone
		}
	}

	var config *LLMConfig
	switch provider {
	case ProviderAnthropic:
		config = &LLMConfig{
			Provider:  ProviderAnthropic,
			APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			Model:     DefaultAnthropicModel,
			MaxTokens: DefaultAnthropicMaxTokens,
		}
		if model := os.Getenv("ANTHROPIC_MODEL"); model != "" {
			config.Model = model
		}
		if config.APIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is required for the anthropic provider", ErrMissingAPIKey)
		}
	case ProviderOllama:
		config = &LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  DefaultOllamaURL,
			Model:    DefaultOllamaModel,
		}
		if url := os.Getenv("OLLAMA_URL"); url != "" {
			config.BaseURL = url
		}
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			config.Model = model
		}
	case ProviderNone:
		return &LLMConfig{Provider: ProviderNone}, nil
	default:
		return nil, ErrInvalidProvider
	}

	config.MaxTries = DefaultLLMMaxTries
	if v := os.Getenv("NLQUERY_LLM_MAX_TRIES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid NLQUERY_LLM_MAX_TRIES %q", v)
		}
		config.MaxTries = uint(n)
	}
	if v := os.Getenv("NLQUERY_LLM_MAX_TOKENS"); v != "" && config.Provider == ProviderAnthropic {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid NLQUERY_LLM_MAX_TOKENS %q", v)
		}
		config.MaxTokens = n
	}

	return config, nil
}
