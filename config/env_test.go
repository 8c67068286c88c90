package config_test

import (
	"testing"

	"github.com/malbeclabs/nlquery/config"
	"github.com/stretchr/testify/require"
)

func TestConfig_LLMConfigForProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		env      map[string]string
		want     *config.LLMConfig
		wantErr  error
	}{
		{
			name:     "anthropic",
			provider: config.ProviderAnthropic,
			env:      map[string]string{"ANTHROPIC_API_KEY": "key"},
			want: &config.LLMConfig{
				Provider:  config.ProviderAnthropic,
				APIKey:    "key",
				Model:     config.DefaultAnthropicModel,
				MaxTokens: config.DefaultAnthropicMaxTokens,
				MaxTries:  config.DefaultLLMMaxTries,
			},
		},
		{
			name:     "anthropic with overrides",
			provider: config.ProviderAnthropic,
			env: map[string]string{
				"ANTHROPIC_API_KEY":      "key",
				"ANTHROPIC_MODEL":        "claude-haiku-4-5",
				"NLQUERY_LLM_MAX_TRIES":  "5",
				"NLQUERY_LLM_MAX_TOKENS": "1024",
			},
			want: &config.LLMConfig{
				Provider:  config.ProviderAnthropic,
				APIKey:    "key",
				Model:     "claude-haiku-4-5",
				MaxTokens: 1024,
				MaxTries:  5,
			},
		},
		{
			name:     "anthropic without key",
			provider: config.ProviderAnthropic,
			wantErr:  config.ErrMissingAPIKey,
		},
		{
			name:     "ollama",
			provider: config.ProviderOllama,
			env:      map[string]string{"OLLAMA_MODEL": "qwen2.5"},
			want: &config.LLMConfig{
				Provider: config.ProviderOllama,
				BaseURL:  config.DefaultOllamaURL,
				Model:    "qwen2.5",
				MaxTries: config.DefaultLLMMaxTries,
			},
		},
		{
			name:     "auto picks ollama",
			provider: config.ProviderAuto,
			env:      map[string]string{"OLLAMA_URL": "http://ollama:11434"},
			want: &config.LLMConfig{
				Provider: config.ProviderOllama,
				BaseURL:  "http://ollama:11434",
				Model:    config.DefaultOllamaModel,
				MaxTries: config.DefaultLLMMaxTries,
			},
		},
		{
			name:     "auto without credentials",
			provider: "",
			want:     &config.LLMConfig{Provider: config.ProviderNone},
		},
		{
			name:     "invalid",
			provider: "openai",
			wantErr:  config.ErrInvalidProvider,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "OLLAMA_URL", "OLLAMA_MODEL", "NLQUERY_LLM_MAX_TRIES", "NLQUERY_LLM_MAX_TOKENS"} {
				t.Setenv(k, tt.env[k])
			}
			got, err := config.LLMConfigForProvider(tt.provider)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
