// Package memory defines the conversation memory layer.
//
// Every completed voice exchange (transcript in, assistant action out) is
// recorded as an [Exchange] together with its embedding vector. The prompt
// builder retrieves the most recent exchanges of the active session plus
// semantically similar exchanges from past sessions, so the assistant can
// refer back to earlier requests ("play that song again").
//
// All implementations must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// Exchange is one completed voice interaction: what the user said and what
// the assistant did about it.
type Exchange struct {
	// ID is the unique identifier for this exchange (a UUID).
	ID string

	// UserID identifies the user the exchange belongs to.
	UserID string

	// SessionID groups exchanges of one assistant run.
	SessionID string

	// Transcript is the text of the user's utterance.
	Transcript string

	// Response is the assistant's spoken reply, if any.
	Response string

	// ToolName is the tool the assistant invoked for this exchange.
	// Empty when the request resolved to nothing.
	ToolName string

	// Embedding is the vector representation of Transcript. Its dimension
	// must match the store configuration.
	Embedding []float32

	// Timestamp is when the exchange completed.
	Timestamp time.Time
}

// SearchResult pairs a retrieved exchange with its vector-space distance from
// the query embedding. Lower Distance means higher semantic similarity.
type SearchResult struct {
	Exchange Exchange

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// Store is the abstraction over the conversation memory backend.
type Store interface {
	// AddExchange appends an exchange to the store. The ID must be unique;
	// re-adding an existing ID replaces the stored exchange.
	AddExchange(ctx context.Context, ex Exchange) error

	// Recent returns up to limit exchanges of the given session, newest
	// first. Returns an empty (non-nil) slice when the session has none.
	Recent(ctx context.Context, sessionID string, limit int) ([]Exchange, error)

	// SearchSimilar finds the topK stored exchanges for userID whose
	// embeddings are closest to the query embedding, ordered by ascending
	// distance. Returns an empty (non-nil) slice when nothing matches.
	SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int) ([]SearchResult, error)

	// ClearSession deletes every exchange of the given session. Clearing an
	// unknown session is not an error.
	ClearSession(ctx context.Context, sessionID string) error
}
