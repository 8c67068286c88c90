package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const defaultMaxTries = 3

// RetryingLLMClient retries failed completions with exponential backoff.
type RetryingLLMClient struct {
	log      *slog.Logger
	next     LLMClient
	maxTries uint
	newBack  func() backoff.BackOff
}

type RetryOption func(*RetryingLLMClient)

// WithMaxTries sets the total number of attempts, including the first.
func WithMaxTries(n uint) RetryOption {
	return func(c *RetryingLLMClient) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithBackOff replaces the exponential schedule, mainly for tests.
func WithBackOff(newBackOff func() backoff.BackOff) RetryOption {
	return func(c *RetryingLLMClient) {
		c.newBack = newBackOff
	}
}

func NewRetryingLLMClient(log *slog.Logger, next LLMClient, opts ...RetryOption) *RetryingLLMClient {
	c := &RetryingLLMClient{
		log:      log,
		next:     next,
		maxTries: defaultMaxTries,
		newBack: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete stops retrying when ctx is done.
func (c *RetryingLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		text, err := c.next.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			c.log.Debug("llm: completion failed, retrying", "attempt", attempt, "error", err)
			return "", err
		}
		return text, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBack()),
		backoff.WithMaxTries(c.maxTries),
	)
}
