// Package mock provides a scripted FrameSource for tests.
package mock

import (
	"github.com/MrWong99/earshot/pkg/audio"
)

// Source replays a fixed sequence of frames. After the sequence is exhausted
// it returns ExhaustedErr (defaulting to [audio.ErrDeviceClosed]), which lets
// tests simulate both a device failure and an endless silent stream.
type Source struct {
	// Frames is the scripted frame sequence.
	Frames [][]byte

	// ExhaustedErr is returned once Frames runs out. Nil means
	// audio.ErrDeviceClosed.
	ExhaustedErr error

	// Repeat, when non-nil, is returned forever after Frames runs out
	// instead of an error.
	Repeat []byte

	pos    int
	closed bool

	// Reads counts ReadFrame calls, including post-exhaustion ones.
	Reads int
	// Closed reports whether Close was called.
	Closed bool
}

var _ audio.FrameSource = (*Source)(nil)

// ReadFrame implements [audio.FrameSource].
func (s *Source) ReadFrame() ([]byte, error) {
	s.Reads++
	if s.closed {
		return nil, audio.ErrDeviceClosed
	}
	if s.pos < len(s.Frames) {
		f := s.Frames[s.pos]
		s.pos++
		return f, nil
	}
	if s.Repeat != nil {
		return s.Repeat, nil
	}
	if s.ExhaustedErr != nil {
		return nil, s.ExhaustedErr
	}
	return nil, audio.ErrDeviceClosed
}

// Close implements [audio.FrameSource].
func (s *Source) Close() error {
	s.closed = true
	s.Closed = true
	return nil
}
