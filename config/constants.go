package config

const (
	// Anthropic defaults.
	DefaultAnthropicModel     = "claude-sonnet-4-5"
	DefaultAnthropicMaxTokens = 4096

	// Ollama defaults.
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.1"

	// Retry defaults for LLM calls.
	DefaultLLMMaxTries = 3

	// Server defaults.
	DefaultListenAddr  = ":8080"
	DefaultMetricsAddr = ":9090"
)
