// Package gemini implements llm.PromptClient on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"swisscv-backend/internal/llm"
)

// Client calls the Gemini generateContent API.
type Client struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
}

// NewClient constructs a Gemini prompt client.
func NewClient(ctx context.Context, apiKey, model string, maxOutputTokens int) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("LLM_MODEL is required for Gemini")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		client:          client,
		model:           model,
		maxOutputTokens: int32(maxOutputTokens),
	}, nil
}

// Complete returns the raw model text for the prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0.3)
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if c.maxOutputTokens > 0 {
		config.MaxOutputTokens = c.maxOutputTokens
	}
	if llm.JSONResponseFromContext(ctx) {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("gemini request timeout: %w", err)
		}
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return "", errors.New("gemini response missing")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini response empty content")
	}
	return text, nil
}

var _ llm.PromptClient = (*Client)(nil)
