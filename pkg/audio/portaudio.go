package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// initOnce guards the process-wide PortAudio initialisation. Terminate is
// deliberately never called: the library is torn down with the process.
var initOnce sync.Once

// MicConfig describes the input stream opened by [OpenMic].
type MicConfig struct {
	// SampleRate in Hz. 16000 is the rate expected by the wake classifier
	// and the transcriber.
	SampleRate int

	// ChunkSize is the number of samples per frame (so each frame is
	// 2*ChunkSize bytes of 16-bit PCM).
	ChunkSize int
}

// micSource reads mono int16 frames from the default PortAudio input device.
type micSource struct {
	stream *portaudio.Stream
	buf    []int16
	out    []byte
	closed bool
}

// Compile-time interface assertion.
var _ FrameSource = (*micSource)(nil)

// OpenMic opens the default input device as a [FrameSource]. The device is
// opened fresh on every call; a failure here is fatal to the caller's current
// listen/capture attempt only.
func OpenMic(cfg MicConfig) (FrameSource, error) {
	var initErr error
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	if initErr != nil {
		return nil, fmt.Errorf("audio: initialise portaudio: %w", initErr)
	}

	buf := make([]int16, cfg.ChunkSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("audio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("audio: start input stream: %w", err)
	}

	return &micSource{
		stream: stream,
		buf:    buf,
		out:    make([]byte, 2*cfg.ChunkSize),
	}, nil
}

// ReadFrame implements [FrameSource].
func (m *micSource) ReadFrame() ([]byte, error) {
	if m.closed {
		return nil, ErrDeviceClosed
	}
	if err := m.stream.Read(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceClosed, err)
	}
	for i, s := range m.buf {
		binary.LittleEndian.PutUint16(m.out[i*2:], uint16(s))
	}
	return m.out, nil
}

// Close implements [FrameSource].
func (m *micSource) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.stream.Stop()
	return m.stream.Close()
}
