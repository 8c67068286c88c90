package cli

import (
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/malbeclabs/nlquery/config"
	"github.com/malbeclabs/nlquery/pkg/indexer"
	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/malbeclabs/nlquery/pkg/pipeline"
)

// newLLMClient returns nil for the none provider so the pipeline answers
// with fallback aggregation only.
func newLLMClient(log *slog.Logger, provider string) (pipeline.LLMClient, error) {
	cfg, err := config.LLMConfigForProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get llm config: %w", err)
	}

	var client pipeline.LLMClient
	switch cfg.Provider {
	case config.ProviderAnthropic:
		client = pipeline.NewAnthropicLLMClient(log, cfg.APIKey, anthropic.Model(cfg.Model), cfg.MaxTokens)
	case config.ProviderOllama:
		client = pipeline.NewOllamaLLMClient(log, cfg.BaseURL, cfg.Model, nil)
	default:
		log.Debug("cli: no llm provider configured, using fallback aggregation")
		return nil, nil
	}
	log.Debug("cli: using llm provider", "provider", cfg.Provider, "model", cfg.Model, "maxTries", cfg.MaxTries)
	return pipeline.NewRetryingLLMClient(log, client, pipeline.WithMaxTries(cfg.MaxTries)), nil
}

type engine struct {
	pipeline *pipeline.Pipeline
	indexer  *indexer.Indexer
	metadata *metadata.Cache
}

func (e *engine) Close() {
	e.metadata.Close()
}

func newEngine(log *slog.Logger, provider string) (*engine, error) {
	llm, err := newLLMClient(log, provider)
	if err != nil {
		return nil, err
	}
	ix, err := indexer.New(indexer.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}
	cache, err := metadata.NewCache(metadata.CacheConfig{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	p, err := pipeline.New(pipeline.Config{
		Logger:   log,
		LLM:      llm,
		Indexer:  ix,
		Metadata: cache,
	})
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return &engine{pipeline: p, indexer: ix, metadata: cache}, nil
}
