// Package tts defines the Speaker interface for text-to-speech backends.
//
// The assistant speaks short confirmations and answers through a Speaker. A
// single utterance at a time is the expected usage pattern, so the interface
// is synchronous: Speak returns once playback has finished or ctx is
// cancelled.
package tts

import "context"

// Speaker converts text to audible speech.
//
// Implementations must be safe for concurrent use, but may serialize
// playback internally so that overlapping calls do not talk over each other.
type Speaker interface {
	// Speak synthesises and plays text. Empty or whitespace-only text is a
	// no-op and returns nil. Returns an error if synthesis or playback
	// fails, or ctx is cancelled mid-utterance.
	Speak(ctx context.Context, text string) error
}
