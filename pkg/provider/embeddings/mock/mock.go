// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider. It produces
// deterministic vectors of the configured dimensionality so tests can run
// the memory layer without a live embeddings backend.
type Provider struct {
	mu sync.Mutex

	// Dim is the dimensionality of every produced vector. Defaults to 4
	// when zero.
	Dim int

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// Texts records every string passed to Embed or EmbedBatch, in order.
	Texts []string
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) dim() int {
	if p.Dim == 0 {
		return 4
	}
	return p.Dim
}

// vector derives a deterministic vector from the text length so that equal
// texts embed identically.
func (p *Provider) vector(text string) []float32 {
	out := make([]float32, p.dim())
	for i := range out {
		out[i] = float32((len(text)+i)%7) / 7.0
	}
	return out
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, texts...)
	if p.Err != nil {
		return nil, p.Err
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
