package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/mailsense/mailsense-backend/internal/errors"
	"github.com/mailsense/mailsense-backend/internal/metrics"
)

// LLMCaller is the provider boundary the analyzer depends on.
type LLMCaller interface {
	Call(ctx context.Context, prompt string) (string, error)
}

// LLMClientConfig configures an LLMClient
type LLMClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

// LLMClient calls the analysis provider's messages API. Every call reserves
// its estimated token cost against the rate budget first, then runs under
// the shared retry policy.
type LLMClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	limiter    *TokenRateLimiter
	retry      RetryPolicy
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewLLMClient creates a new LLMClient
func NewLLMClient(cfg LLMClientConfig, limiter *TokenRateLimiter, m *metrics.Metrics, logger *slog.Logger) *LLMClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 60 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &LLMClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		// Transient network and server failures look the same from here,
		// so every failed attempt is retried until the cap.
		retry:   NewRetryPolicy(cfg.MaxRetries, cfg.BaseDelay, nil),
		logger:  logger,
		metrics: m,
	}
}

// llmMessage represents a conversation message
type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// llmRequest is the API request structure
type llmRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []llmMessage `json:"messages"`
}

// llmResponse is the API response structure
type llmResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Call sends prompt to the provider and returns the raw response text.
// Fails with *apperrors.LLMError after the retry schedule is exhausted.
func (c *LLMClient) Call(ctx context.Context, prompt string) (string, error) {
	estimated := c.limiter.Estimate(prompt)
	if err := c.limiter.Reserve(ctx, estimated); err != nil {
		return "", fmt.Errorf("waiting for token budget: %w", err)
	}
	if c.metrics != nil {
		c.metrics.TokensReserved.Add(float64(estimated))
	}

	var text string
	err := c.retry.Do(ctx, func(attempt int) error {
		start := time.Now()
		result, callErr := c.doCall(ctx, prompt, attempt)
		if c.metrics != nil {
			c.metrics.LLMCallDuration.Observe(time.Since(start).Seconds())
			c.metrics.LLMCalls.WithLabelValues(callOutcome(callErr)).Inc()
		}
		if callErr != nil {
			if c.logger != nil {
				c.logger.Warn("analysis call failed",
					slog.Int("attempt", attempt+1),
					slog.Int("estimated_tokens", estimated),
					slog.Any("error", callErr))
			}
			return callErr
		}
		text = result
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func callOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if llmErr := apperrors.GetLLMError(err); llmErr != nil && llmErr.Throttled() {
		return "throttled"
	}
	return "error"
}

func (c *LLMClient) doCall(ctx context.Context, prompt string, attempt int) (string, error) {
	body, err := json.Marshal(llmRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []llmMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apperrors.NewLLMError(0, err.Error(), attempt+1)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewLLMError(resp.StatusCode, "failed to read response body", attempt+1)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewLLMError(resp.StatusCode, string(respBody), attempt+1)
	}

	var parsed llmResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", apperrors.NewLLMError(resp.StatusCode, "failed to decode response envelope", attempt+1)
	}
	if len(parsed.Content) == 0 {
		return "", apperrors.NewLLMError(resp.StatusCode, "empty response content", attempt+1)
	}

	return parsed.Content[0].Text, nil
}
