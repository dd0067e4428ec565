// Package provider defines the boundary to the embedding and summarization
// capability.
//
// The engine never computes embeddings itself: stores call Embed to vectorize
// documents and queries, and the collection metadata synchronizer calls
// Generate to produce free-text summaries. Implementations must be safe for
// concurrent use; the concurrent synchronizer issues up to its concurrency
// limit of Generate calls in flight at once.
package provider

import (
	"context"
	"errors"
)

// Error values for consistent error handling by callers.
var (
	ErrEmptyText     = errors.New("cannot embed empty text")
	ErrEmptyPrompt   = errors.New("cannot generate from empty prompt")
	ErrNotConfigured = errors.New("provider is not configured")
)

// Provider turns text into vectors and prompts into generated text.
type Provider interface {
	// Embed returns a fixed-length vector for the given text. Results
	// must be deterministic for the same text and model.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Generate produces free text for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Close releases the provider's resources. Safe to call from teardown
	// paths that run concurrently with in-flight request cancellation.
	Close(ctx context.Context) error
}
