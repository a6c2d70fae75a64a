// Package mock provides a test double for the tts.Speaker interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// Speaker is a mock implementation of tts.Speaker.
type Speaker struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from Speak.
	Err error

	// Spoken records every text passed to Speak, in order.
	Spoken []string
}

// Compile-time interface assertion.
var _ tts.Speaker = (*Speaker)(nil)

// Speak implements tts.Speaker.
func (s *Speaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spoken = append(s.Spoken, text)
	return s.Err
}

// Texts returns a copy of everything spoken so far.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Spoken))
	copy(out, s.Spoken)
	return out
}
