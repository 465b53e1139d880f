// Package llm defines the completion-service boundary used by the
// classification engine. Clients issue one request and surface typed
// errors; retry and rate governance are the batch orchestrator's job, so
// no client sleeps or retries internally.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mise/internal/logging"
)

// Params are the generation parameters for a completion request. Low
// temperature (0.1 or below) is required for reproducible classification.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client is the LLM completion interface consumed by the engine.
type Client interface {
	Complete(ctx context.Context, prompt string, p Params) (string, error)
	Model() string
}

// =============================================================================
// TYPED ERRORS
// =============================================================================

// RateLimitedError indicates the provider rejected the request with a
// 429-equivalent. Retryable after backoff.
type RateLimitedError struct {
	RetryAfter time.Duration // zero when the provider gave no hint
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// ServiceError indicates a transient provider-side failure (5xx, network,
// empty response). Retryable with fewer attempts than rate limits.
type ServiceError struct {
	Status int
	Msg    string
}

func (e *ServiceError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm service error (status %d): %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("llm service error: %s", e.Msg)
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsRetryable reports whether err is a transient upstream failure (either
// a rate limit or a service error).
func IsRetryable(err error) bool {
	var se *ServiceError
	return IsRateLimited(err) || errors.As(err, &se)
}

// =============================================================================
// OPENAI-COMPATIBLE HTTP CLIENT
// =============================================================================

// HTTPClient talks to any chat-completions compatible endpoint.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// HTTPConfig holds configuration for the HTTP client.
type HTTPConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig(apiKey string) HTTPConfig {
	return HTTPConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 120 * time.Second,
	}
}

// NewHTTPClient creates a client for an OpenAI-compatible endpoint.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	return &HTTPClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a single completion request and returns the raw text.
func (c *HTTPClient) Complete(ctx context.Context, prompt string, p Params) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	model := p.Model
	if model == "" {
		model = c.model
	}
	maxTokens := p.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	reqBody := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: p.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ServiceError{Msg: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ServiceError{Msg: fmt.Sprintf("failed to read response: %v", err)}
	}

	logging.APIDebug("completion request: model=%s status=%d elapsed=%v", model, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode >= 500 {
		return "", &ServiceError{Status: resp.StatusCode, Msg: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &ServiceError{Msg: fmt.Sprintf("failed to parse response: %v", err)}
	}
	if parsed.Error != nil {
		return "", &ServiceError{Msg: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &ServiceError{Msg: "no completion returned"}
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Model returns the configured model identifier.
func (c *HTTPClient) Model() string {
	return c.model
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}
