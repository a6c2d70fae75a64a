// Package mock provides an in-memory test double for the memory.Store
// interface.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/MrWong99/earshot/pkg/memory"
)

// Store is a mock implementation of memory.Store. Similarity search uses real
// cosine distance over the stored embeddings, so tests can verify retrieval
// ordering without a database.
type Store struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from every method.
	Err error

	// Exchanges holds everything added so far, in insertion order.
	Exchanges []memory.Exchange

	// ClearedSessions records every session ID passed to ClearSession.
	ClearedSessions []string
}

// Compile-time interface assertion.
var _ memory.Store = (*Store)(nil)

// AddExchange implements memory.Store.
func (s *Store) AddExchange(_ context.Context, ex memory.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for i, existing := range s.Exchanges {
		if existing.ID == ex.ID {
			s.Exchanges[i] = ex
			return nil
		}
	}
	s.Exchanges = append(s.Exchanges, ex)
	return nil
}

// Recent implements memory.Store.
func (s *Store) Recent(_ context.Context, sessionID string, limit int) ([]memory.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	out := []memory.Exchange{}
	for i := len(s.Exchanges) - 1; i >= 0 && len(out) < limit; i-- {
		if s.Exchanges[i].SessionID == sessionID {
			out = append(out, s.Exchanges[i])
		}
	}
	return out, nil
}

// SearchSimilar implements memory.Store.
func (s *Store) SearchSimilar(_ context.Context, userID string, embedding []float32, topK int) ([]memory.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	results := []memory.SearchResult{}
	for _, ex := range s.Exchanges {
		if ex.UserID != userID {
			continue
		}
		results = append(results, memory.SearchResult{
			Exchange: ex,
			Distance: cosineDistance(embedding, ex.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ClearSession implements memory.Store.
func (s *Store) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	s.ClearedSessions = append(s.ClearedSessions, sessionID)
	kept := s.Exchanges[:0]
	for _, ex := range s.Exchanges {
		if ex.SessionID != sessionID {
			kept = append(kept, ex)
		}
	}
	s.Exchanges = kept
	return nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
