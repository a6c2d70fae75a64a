// Package audio provides the frame-level audio primitives shared by the
// earshot pipeline: the FrameSource abstraction over an input device,
// RMS-energy silence classification, and WAV clip persistence.
//
// All PCM data is signed 16-bit little-endian mono at a configured sample
// rate. A frame is one fixed-size chunk of that stream; frames are transient
// and must be copied by consumers that retain them beyond one read.
package audio

import "errors"

// ErrDeviceClosed is returned by ReadFrame after Close, or when the
// underlying input device becomes unavailable mid-stream.
var ErrDeviceClosed = errors.New("audio: input device closed")

// FrameSource yields fixed-size PCM frames from an audio input device.
//
// A FrameSource is single-consumer: ReadFrame must not be called from
// multiple goroutines. Implementations wrap device failures in
// [ErrDeviceClosed] so callers can distinguish device loss from other errors.
type FrameSource interface {
	// ReadFrame blocks until the next frame is available and returns it.
	// The returned slice is owned by the caller until the next ReadFrame
	// call; implementations may reuse the backing array.
	ReadFrame() ([]byte, error)

	// Close releases the device. Subsequent ReadFrame calls return
	// [ErrDeviceClosed]. Close is idempotent.
	Close() error
}

// SourceFactory opens a fresh FrameSource. The wake listener and the capture
// recorder each open their own source per invocation so that a device failure
// is fatal to that call only and the next iteration can retry.
type SourceFactory func() (FrameSource, error)

// SilentFrame returns a frame of byteLen zero samples. Used to feed
// classifiers during cooldown and to pad flush windows.
func SilentFrame(byteLen int) []byte {
	return make([]byte, byteLen)
}
