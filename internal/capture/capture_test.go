package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-audio/wav"

	audiomock "github.com/MrWong99/earshot/pkg/audio/mock"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		SampleRate:        16000,
		ChunkSize:         1024,
		SilenceThreshold:  500,
		InitialSilence:    5.0,
		PostSpeechSilence: 2.0,
		MaxDuration:       time.Hour,
		ClipsDir:          t.TempDir(),
		ClipBaseName:      "command",
	}
}

// loudFrame builds a chunk of int16 samples well above the silence threshold.
func loudFrame(chunkSize int) []byte {
	frame := make([]byte, chunkSize*2)
	for i := 0; i < chunkSize; i++ {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(int16(8000)))
	}
	return frame
}

func silentFrame(chunkSize int) []byte {
	return make([]byte, chunkSize*2)
}

func frames(n int, frame []byte) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = frame
	}
	return out
}

// reusingSource returns the same backing buffer from every ReadFrame,
// overwritten with the next scripted frame, the way the portaudio source
// reuses its device buffer.
type reusingSource struct {
	script [][]byte
	repeat []byte
	buf    []byte
	reads  int
}

func (s *reusingSource) ReadFrame() ([]byte, error) {
	next := s.repeat
	if s.reads < len(s.script) {
		next = s.script[s.reads]
	}
	s.reads++
	if s.buf == nil {
		s.buf = make([]byte, len(next))
	}
	copy(s.buf, next)
	return s.buf, nil
}

func (s *reusingSource) Close() error { return nil }

func TestSilentChunks(t *testing.T) {
	if got := SilentChunks(5.0, 16000, 1024); got != 78 {
		t.Errorf("SilentChunks(5.0, 16000, 1024) = %d, want 78", got)
	}
	if got := SilentChunks(2.0, 16000, 1024); got != 31 {
		t.Errorf("SilentChunks(2.0, 16000, 1024) = %d, want 31", got)
	}
	// Sub-frame durations clamp to a single chunk instead of zero.
	if got := SilentChunks(0.01, 16000, 1024); got != 1 {
		t.Errorf("SilentChunks(0.01, 16000, 1024) = %d, want 1", got)
	}
}

func TestRecord_NoSpeechAfterInitialAllowance(t *testing.T) {
	cfg := testConfig(t)
	silent := silentFrame(cfg.ChunkSize)
	src := &audiomock.Source{Frames: frames(78, silent), Repeat: silent}

	out := New(cfg).Record(context.Background(), src)
	if _, ok := out.(NoSpeech); !ok {
		t.Fatalf("outcome = %T, want NoSpeech", out)
	}
	// The 5s allowance at 16000/1024 is exactly 78 chunks; the session
	// must give up on the 78th silent frame, not before or after.
	if src.Reads != 78 {
		t.Errorf("frames read = %d, want 78", src.Reads)
	}
}

func TestRecord_ClipIncludesLeadingAndTrailingSilence(t *testing.T) {
	cfg := testConfig(t)
	cfg.PostSpeechSilence = 4.0 // 62 chunks

	silent := silentFrame(cfg.ChunkSize)
	loud := loudFrame(cfg.ChunkSize)
	var script [][]byte
	script = append(script, frames(5, silent)...)
	script = append(script, frames(10, loud)...)
	script = append(script, frames(62, silent)...)
	src := &audiomock.Source{Frames: script, Repeat: silent}

	out := New(cfg).Record(context.Background(), src)
	clip, ok := out.(Clip)
	if !ok {
		t.Fatalf("outcome = %T, want Clip", out)
	}
	if clip.Frames != 77 {
		t.Errorf("clip frames = %d, want 77 (5 leading + 10 speech + 62 trailing)", clip.Frames)
	}

	info, err := os.Stat(clip.Path)
	if err != nil {
		t.Fatalf("stat clip: %v", err)
	}
	if info.Size() <= 44 {
		t.Errorf("clip size = %d, want more than a bare WAV header", info.Size())
	}
}

func TestRecord_ClipSurvivesSourceBufferReuse(t *testing.T) {
	cfg := testConfig(t)
	src := &reusingSource{
		script: [][]byte{loudFrame(cfg.ChunkSize)},
		repeat: silentFrame(cfg.ChunkSize),
	}

	out := New(cfg).Record(context.Background(), src)
	clip, ok := out.(Clip)
	if !ok {
		t.Fatalf("outcome = %T, want Clip", out)
	}

	// By the time the clip is persisted the source has overwritten its
	// buffer with silence; the spoken frame must still be in the file.
	f, err := os.Open(clip.Path)
	if err != nil {
		t.Fatalf("open clip: %v", err)
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode clip: %v", err)
	}
	var loudSamples int
	for _, s := range buf.Data {
		if s == 8000 {
			loudSamples++
		}
	}
	if loudSamples != cfg.ChunkSize {
		t.Errorf("loud samples in clip = %d, want %d", loudSamples, cfg.ChunkSize)
	}
}

func TestRecord_TrailingSilenceResetsOnSpeech(t *testing.T) {
	cfg := testConfig(t) // post-speech budget: 31 chunks

	silent := silentFrame(cfg.ChunkSize)
	loud := loudFrame(cfg.ChunkSize)
	var script [][]byte
	script = append(script, loud)
	script = append(script, frames(30, silent)...) // one short of the budget
	script = append(script, loud)                  // resets the counter
	script = append(script, frames(31, silent)...)
	src := &audiomock.Source{Frames: script, Repeat: silent}

	out := New(cfg).Record(context.Background(), src)
	clip, ok := out.(Clip)
	if !ok {
		t.Fatalf("outcome = %T, want Clip", out)
	}
	if clip.Frames != 63 {
		t.Errorf("clip frames = %d, want 63", clip.Frames)
	}
}

func TestRecord_SilencePhasesAreIndependent(t *testing.T) {
	cfg := testConfig(t)
	cfg.InitialSilence = 0.5    // 7 chunks
	cfg.PostSpeechSilence = 4.0 // 62 chunks

	silent := silentFrame(cfg.ChunkSize)
	loud := loudFrame(cfg.ChunkSize)

	// 7 leading silent chunks exhaust the initial allowance even though
	// the post-speech budget is much larger.
	src := &audiomock.Source{Frames: frames(7, silent), Repeat: silent}
	if out := New(cfg).Record(context.Background(), src); out != (NoSpeech{}) {
		t.Fatalf("outcome = %T, want NoSpeech", out)
	}

	// 6 leading silent chunks plus speech capture fine, and termination
	// needs the full 62-chunk trailing budget.
	var script [][]byte
	script = append(script, frames(6, silent)...)
	script = append(script, loud)
	script = append(script, frames(62, silent)...)
	src = &audiomock.Source{Frames: script, Repeat: silent}
	clip, ok := New(cfg).Record(context.Background(), src).(Clip)
	if !ok {
		t.Fatal("expected Clip outcome")
	}
	if clip.Frames != 69 {
		t.Errorf("clip frames = %d, want 69", clip.Frames)
	}
}

func TestRecord_DeviceErrorMidCapture(t *testing.T) {
	cfg := testConfig(t)
	src := &audiomock.Source{Frames: [][]byte{loudFrame(cfg.ChunkSize)}}

	out := New(cfg).Record(context.Background(), src)
	devErr, ok := out.(DeviceError)
	if !ok {
		t.Fatalf("outcome = %T, want DeviceError", out)
	}
	if devErr.Err == nil {
		t.Error("DeviceError.Err is nil")
	}
}

func TestRecord_ContextCancellation(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &audiomock.Source{Repeat: silentFrame(cfg.ChunkSize)}
	out := New(cfg).Record(ctx, src)
	devErr, ok := out.(DeviceError)
	if !ok {
		t.Fatalf("outcome = %T, want DeviceError", out)
	}
	if !errors.Is(devErr.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", devErr.Err)
	}
}

func TestRecord_HardCapWithSpeech(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxDuration = 3 * time.Second

	// Each clock read advances one second; endless speech never satisfies
	// the trailing-silence budget, so only the cap can end the session.
	var tick int
	clock := func() time.Time {
		tick++
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).Add(time.Duration(tick) * time.Second)
	}

	src := &audiomock.Source{Repeat: loudFrame(cfg.ChunkSize)}
	out := New(cfg, withClock(clock)).Record(context.Background(), src)
	if _, ok := out.(Clip); !ok {
		t.Fatalf("outcome = %T, want Clip at hard cap", out)
	}
}

func TestRecord_HardCapWithoutSpeech(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxDuration = 3 * time.Second
	cfg.InitialSilence = 3600 // allowance far beyond the cap

	var tick int
	clock := func() time.Time {
		tick++
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).Add(time.Duration(tick) * time.Second)
	}

	src := &audiomock.Source{Repeat: silentFrame(cfg.ChunkSize)}
	out := New(cfg, withClock(clock)).Record(context.Background(), src)
	if _, ok := out.(NoSpeech); !ok {
		t.Fatalf("outcome = %T, want NoSpeech at hard cap", out)
	}
}
