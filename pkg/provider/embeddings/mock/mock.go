// Package mock provides a deterministic test double for the embeddings
// package.
package mock

import (
	"context"
	"sync"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/embeddings"
)

// Compile-time check that *Provider satisfies embeddings.Provider.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock embeddings provider. Vectors are derived from the
// input length so similarity tests stay deterministic.
type Provider struct {
	mu sync.Mutex

	// Dim is the vector dimensionality. Zero defaults to 8.
	Dim int

	// EmbedErr, if non-nil, is returned by Embed and EmbedBatch.
	EmbedErr error

	// EmbedCalls records each text passed to Embed or EmbedBatch.
	EmbedCalls []string
}

func (p *Provider) dim() int {
	if p.Dim <= 0 {
		return 8
	}
	return p.Dim
}

func (p *Provider) vector(text string) []float32 {
	v := make([]float32, p.dim())
	for i, r := range text {
		v[i%len(v)] += float32(r % 13)
	}
	return v
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, texts...)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dim() }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock-embeddings" }
