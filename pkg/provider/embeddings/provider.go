// Package embeddings defines the Provider interface for text-embedding
// backends.
//
// The assistant embeds every conversation exchange so that the memory layer
// can retrieve semantically related past exchanges when building the LLM
// prompt. Vectors from one Provider instance all share the dimensionality
// reported by Dimensions; mixing vectors from different models in the same
// similarity computation is a caller bug.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The
	// returned slice has length Dimensions(). Text is passed through
	// verbatim; any model-specific prefixing is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embeddings for several texts in one provider
	// call. The returned slice has the same length as texts, with the i-th
	// element corresponding to texts[i]. On error the entire result is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider, determined by the underlying model.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging
	// and for verifying consistent model usage across sessions.
	ModelID() string
}
