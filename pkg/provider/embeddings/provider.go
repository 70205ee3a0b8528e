// Package embeddings defines the Provider interface for text-embedding
// backends used by the menu retrieval layer.
//
// A provider maps text to dense float32 vectors. The menu store embeds
// one chunk per catalog item at load time and embeds each customer
// query at turn time; both sides must use the same provider instance so
// the vectors share a space.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The
	// returned slice always has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for all texts in one provider call.
	// The i-th result corresponds to texts[i]. On error the entire
	// result is nil; partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length produced by this
	// provider, constant for its lifetime.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for
	// logging and consistency checks.
	ModelID() string
}
