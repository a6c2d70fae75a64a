// Package mock provides a test double for the transcribe.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/transcribe"
)

// Transcriber is a mock implementation of transcribe.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe. Empty means "no usable speech".
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Clips records every clip path passed to Transcribe, in order.
	Clips []string
}

// Compile-time interface assertion.
var _ transcribe.Transcriber = (*Transcriber)(nil)

// Transcribe implements transcribe.Transcriber.
func (t *Transcriber) Transcribe(_ context.Context, clipPath string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Clips = append(t.Clips, clipPath)
	return t.Text, t.Err
}
