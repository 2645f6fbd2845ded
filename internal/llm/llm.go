// Package llm abstracts the language model backends agents generate text with.
package llm

import "context"

// Options tunes a single generation call. Zero values fall back to the
// provider's configured defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Provider interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)

	// GenerateStructured returns a JSON object matching the given
	// JSON-schema-like mapping.
	GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error)
}
