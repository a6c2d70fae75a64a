// Package piper provides a Speaker backed by the Piper CLI. Each utterance is
// synthesised into a temporary WAV file by running the piper binary with the
// text on stdin, then played back through the default output device.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	beepwav "github.com/faiface/beep/wav"

	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Speaker = (*Speaker)(nil)

// speakerInit guards the process-global beep speaker initialisation. The
// output device keeps the sample rate of the first clip played; later clips
// at other rates are resampled to it.
var (
	speakerInit sync.Once
	speakerRate beep.SampleRate
)

// Speaker implements tts.Speaker by shelling out to the piper binary.
// Playback is serialized: concurrent Speak calls queue on an internal mutex.
type Speaker struct {
	binPath   string
	modelPath string

	mu sync.Mutex
}

// Option is a functional option for Speaker.
type Option func(*Speaker)

// WithBinary overrides the piper executable path. Defaults to "piper" on PATH.
func WithBinary(path string) Option {
	return func(s *Speaker) { s.binPath = path }
}

// New constructs a Speaker that synthesises with the ONNX voice model at
// modelPath (the matching .onnx.json config must sit next to it).
func New(modelPath string, opts ...Option) (*Speaker, error) {
	if modelPath == "" {
		return nil, errors.New("piper: modelPath must not be empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("piper: voice model %q: %w", modelPath, err)
	}

	s := &Speaker{binPath: "piper", modelPath: modelPath}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Speak implements tts.Speaker.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clip, err := s.synthesize(ctx, text)
	if err != nil {
		return err
	}
	defer os.Remove(clip)

	return play(ctx, clip)
}

// synthesize runs the piper binary and returns the path of the generated WAV
// file. The caller owns the file and must remove it.
func (s *Speaker) synthesize(ctx context.Context, text string) (string, error) {
	tmp, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return "", fmt.Errorf("piper: create temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, s.binPath,
		"--model", s.modelPath,
		"--output-file", tmp.Name(),
	)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("piper: run %s: %w (stderr: %s)",
			s.binPath, err, strings.TrimSpace(stderr.String()))
	}
	return tmp.Name(), nil
}

// play decodes the WAV clip and plays it to completion through the default
// output device.
func play(ctx context.Context, clipPath string) error {
	f, err := os.Open(clipPath)
	if err != nil {
		return fmt.Errorf("piper: open clip: %w", err)
	}
	defer f.Close()

	streamer, format, err := beepwav.Decode(f)
	if err != nil {
		return fmt.Errorf("piper: decode clip: %w", err)
	}
	defer streamer.Close()

	var initErr error
	speakerInit.Do(func() {
		speakerRate = format.SampleRate
		initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if initErr != nil {
		return fmt.Errorf("piper: init speaker: %w", initErr)
	}

	var stream beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		stream = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(
		stream,
		beep.Callback(func() { close(done) }),
	))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return fmt.Errorf("piper: playback interrupted: %w", ctx.Err())
	}
}
