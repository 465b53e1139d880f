package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GENAI CLIENT
// =============================================================================

// GeminiClient issues completions through Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed completion client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Complete sends a single completion request and returns the raw text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string, p Params) (string, error) {
	model := p.Model
	if model == "" {
		model = c.model
	}
	maxTokens := p.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.Temperature)),
		MaxOutputTokens: int32(maxTokens),
	}

	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyGenAIError(err)
	}

	text := result.Text()
	if text == "" {
		return "", &ServiceError{Msg: "no completion returned"}
	}
	return strings.TrimSpace(text), nil
}

// Model returns the configured model identifier.
func (c *GeminiClient) Model() string {
	return c.model
}

// classifyGenAIError maps SDK errors onto the typed errors the
// orchestrator branches on.
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return &RateLimitedError{}
		case apiErr.Code >= 500:
			return &ServiceError{Status: apiErr.Code, Msg: apiErr.Message}
		default:
			return fmt.Errorf("GenAI request failed: %w", err)
		}
	}
	return &ServiceError{Msg: err.Error()}
}
