// Package llm defines the prompt-completion boundary of the rewrite
// pipeline and owns the prompt material for both stages.
package llm

import (
	"context"
	"errors"
)

// PromptClient completes a prompt and returns the raw model text.
type PromptClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type jsonResponseKey struct{}

// WithJSONResponse marks a completion as expecting a single JSON
// object, letting providers switch on their structured output mode.
func WithJSONResponse(ctx context.Context) context.Context {
	return context.WithValue(ctx, jsonResponseKey{}, true)
}

// JSONResponseFromContext reports whether the completion should return JSON.
func JSONResponseFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(jsonResponseKey{}).(bool)
	return v
}

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("llm provider not configured")

// PlaceholderClient stands in when no provider credentials are set, so
// the server can still boot in development. Every completion fails
// with ErrNotConfigured.
type PlaceholderClient struct{}

// Complete returns ErrNotConfigured.
func (PlaceholderClient) Complete(ctx context.Context, prompt string) (string, error) {
	_ = ctx
	_ = prompt
	return "", ErrNotConfigured
}
