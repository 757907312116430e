package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/relaydesk/relaydesk/internal/domain/generation"
	"github.com/relaydesk/relaydesk/internal/domain/retry"
	"github.com/relaydesk/relaydesk/internal/metrics"
)

// Low temperature: replies must stay close to the provided evidence.
const defaultTemperature = 0.2

// Config controls connectivity to the OpenAI-compatible gateway.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	MaxTokens  int
}

// Client completes chat prompts against an OpenAI-compatible gateway with
// bounded retries on transient failures.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	policy    retry.Policy
}

var _ generation.ChatClient = (*Client)(nil)

func NewClient(cfg Config) *Client {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		apiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		api:       openai.NewClientWithConfig(apiConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		policy: retry.Policy{
			MaxRetries:      cfg.MaxRetries,
			InitialDelay:    250 * time.Millisecond,
			MaxDelay:        2 * time.Second,
			BackoffStrategy: retry.BackoffExponential,
			JitterFactor:    0.25,
		},
	}
}

// Complete implements generation.ChatClient.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: defaultTemperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	return retry.ExecuteWithResult(ctx, c.policy, func(ctx context.Context, attempt int) (string, error) {
		if attempt > 0 {
			metrics.RecordGenerationRetry()
			log.Ctx(ctx).Debug().Int("attempt", attempt).Str("model", c.model).Msg("generation_retry")
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			if !isRetryable(err) {
				return "", retry.Permanent(fmt.Errorf("chat completion: %w", err))
			}
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", retry.Permanent(errors.New("no choices in completion"))
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// isRetryable treats rate limits and upstream 5xx as transient; everything
// the caller can't outwait (bad request, canceled context) fails fast.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Transport-level failures (refused connections, resets) are worth
	// another attempt.
	return true
}
