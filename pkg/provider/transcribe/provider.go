// Package transcribe defines the Transcriber interface for clip-based
// speech-to-text backends.
//
// Unlike a streaming STT session, a Transcriber works on the finished WAV
// clip produced by a capture session: one call, one transcript. The empty
// string is a valid result and means "no usable speech in the clip"; callers
// short-circuit the pipeline on it without treating it as an error.
package transcribe

import "context"

// Transcriber converts a recorded audio clip into text.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Transcriber interface {
	// Transcribe reads the WAV clip at clipPath and returns its transcript.
	// An empty string (with nil error) means the clip contained no usable
	// speech. A non-nil error indicates a backend or I/O failure.
	Transcribe(ctx context.Context, clipPath string) (string, error)
}
