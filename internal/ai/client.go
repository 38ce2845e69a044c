// Package ai implements the model-backed analysis stages: static QA,
// refactor proposals, and report summarization. All Anthropic API
// access goes through the Client, which handles retries, rate limiting,
// and concurrency capping in one place.
package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Completer is the slice of Client the stages depend on. Tests swap in
// a scripted implementation instead of hitting the API.
type Completer interface {
	// Complete sends one user prompt to the given model and returns the
	// concatenated text content of the response.
	Complete(ctx context.Context, model, prompt string, maxTokens int64) (string, error)
}

// ClientConfig holds client construction options
type ClientConfig struct {
	// APIKey for the Anthropic API (if empty, reads ANTHROPIC_API_KEY)
	APIKey string

	// Retry configuration (uses defaults if not specified)
	Retry RetryConfig

	// RequestsPerMinute rate-limits API calls (default 30)
	RequestsPerMinute int

	// MaxConcurrentCalls caps in-flight API calls (default 3)
	MaxConcurrentCalls int
}

// Client is the shared Anthropic API client for all stages
type Client struct {
	client  *anthropic.Client
	retry   RetryConfig
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

var _ Completer = (*Client)(nil)

// NewClient creates an Anthropic-backed completer
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	maxConcurrent := cfg.MaxConcurrentCalls
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Client{
		client:  &client,
		retry:   retry,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
	}, nil
}

// Complete sends one prompt and returns the response text. The call is
// rate-limited, concurrency-capped, and retried with backoff on
// transient API errors.
func (c *Client) Complete(ctx context.Context, model, prompt string, maxTokens int64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire concurrency slot: %w", err)
	}
	defer c.sem.Release(1)

	var response *anthropic.Message
	err := retryWithBackoff(ctx, c.retry, "completion", func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
