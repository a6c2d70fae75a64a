// Package capture records a spoken command after a wake event using
// dual-phase silence detection.
//
// A capture session starts in the AwaitingSpeech phase: leading silence is
// tolerated up to a configured allowance, after which the session gives up
// with [NoSpeech]. The first loud frame switches to the InSpeech phase,
// where capture continues until the trailing silence exceeds a separately
// configured threshold. A hard wall-clock cap bounds the whole session
// regardless of phase. Successful sessions are persisted as a WAV clip.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/audio"
)

// Outcome is the discriminated result of one capture session. It is exactly
// one of [Clip], [NoSpeech], or [DeviceError].
type Outcome interface{ outcome() }

// Clip is a successful capture persisted to disk.
type Clip struct {
	// Path is the WAV file the session was written to.
	Path string

	// Frames is the number of audio frames in the clip, including the
	// leading silence and the trailing silence that ended the session.
	Frames int

	// Duration is the wall-clock length of the session.
	Duration time.Duration
}

// NoSpeech means the initial silence allowance elapsed without any frame
// crossing the silence threshold. Nothing was persisted.
type NoSpeech struct{}

// DeviceError means the frame source failed or the clip could not be
// written. It is fatal to this session only; the caller may start another.
type DeviceError struct {
	Err error
}

func (Clip) outcome()        {}
func (NoSpeech) outcome()    {}
func (DeviceError) outcome() {}

func (e DeviceError) Error() string { return e.Err.Error() }
func (e DeviceError) Unwrap() error { return e.Err }

// Config holds the tuning parameters of a capture session.
type Config struct {
	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// ChunkSize is the number of samples per frame.
	ChunkSize int

	// SilenceThreshold is the RMS amplitude below which a frame counts as
	// silent, on the int16 sample scale.
	SilenceThreshold float64

	// InitialSilence is the leading-silence allowance in seconds.
	InitialSilence float64

	// PostSpeechSilence is the trailing-silence threshold in seconds.
	PostSpeechSilence float64

	// MaxDuration is the hard wall-clock cap on the session.
	MaxDuration time.Duration

	// ClipsDir is the directory clips are written to.
	ClipsDir string

	// ClipBaseName is the base file name; the session start timestamp is
	// appended.
	ClipBaseName string
}

// SilentChunks converts a silence duration to a frame-count budget:
// floor(seconds * sampleRate / chunkSize), clamped to a minimum of 1 so a
// sub-frame duration can never produce a zero-chunk timeout.
func SilentChunks(seconds float64, sampleRate, chunkSize int) int {
	n := int(seconds * float64(sampleRate) / float64(chunkSize))
	if n < 1 {
		return 1
	}
	return n
}

// Recorder runs capture sessions. Each session is independent; no state is
// carried between Record calls.
type Recorder struct {
	cfg     Config
	metrics *observe.Metrics

	now func() time.Time
}

// Option is a functional option for Recorder.
type Option func(*Recorder)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// withClock overrides the wall clock, for tests.
func withClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates a Recorder.
func New(cfg Config, opts ...Option) *Recorder {
	r := &Recorder{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Record runs one capture session over src and returns its outcome. The
// returned value is exactly one of [Clip], [NoSpeech], or [DeviceError].
//
// The wall-clock cap is checked between frames, so a ReadFrame call that
// blocks indefinitely is not interrupted by it. With a live device frames
// arrive at a fixed rate and the cap overshoots by at most one chunk.
func (r *Recorder) Record(ctx context.Context, src audio.FrameSource) Outcome {
	var (
		initialBudget = SilentChunks(r.cfg.InitialSilence, r.cfg.SampleRate, r.cfg.ChunkSize)
		trailBudget   = SilentChunks(r.cfg.PostSpeechSilence, r.cfg.SampleRate, r.cfg.ChunkSize)

		frames         [][]byte
		speechDetected bool
		initialSilent  int
		trailingSilent int

		start = r.now()
	)

	log := observe.Logger(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, start, DeviceError{Err: fmt.Errorf("capture: aborted: %w", err)})
		}

		// Hard cap: safety valve against runaway recordings,
		// independent of both silence phases.
		if r.now().Sub(start) >= r.cfg.MaxDuration {
			log.Warn("capture hit hard duration cap", "max_duration", r.cfg.MaxDuration)
			if speechDetected {
				return r.persist(ctx, start, frames)
			}
			return r.finish(ctx, start, NoSpeech{})
		}

		frame, err := src.ReadFrame()
		if err != nil {
			return r.finish(ctx, start, DeviceError{Err: fmt.Errorf("capture: read frame: %w", err)})
		}
		// The source owns the slice only until the next ReadFrame and may
		// reuse the backing array; retained frames must be copies.
		frames = append(frames, slices.Clone(frame))

		silent := audio.IsSilent(frame, r.cfg.SilenceThreshold)

		if !speechDetected {
			if silent {
				initialSilent++
				if initialSilent >= initialBudget {
					return r.finish(ctx, start, NoSpeech{})
				}
				continue
			}
			speechDetected = true
			trailingSilent = 0
			continue
		}

		if silent {
			trailingSilent++
			if trailingSilent >= trailBudget {
				return r.persist(ctx, start, frames)
			}
			continue
		}
		// Speech must be continuously trailed by silence to end capture.
		trailingSilent = 0
	}
}

// persist concatenates the session frames and writes them as a WAV clip.
func (r *Recorder) persist(ctx context.Context, start time.Time, frames [][]byte) Outcome {
	var total int
	for _, f := range frames {
		total += len(f)
	}
	pcm := make([]byte, 0, total)
	for _, f := range frames {
		pcm = append(pcm, f...)
	}

	if r.cfg.ClipsDir != "" {
		if err := os.MkdirAll(r.cfg.ClipsDir, 0o755); err != nil {
			return r.finish(ctx, start, DeviceError{Err: fmt.Errorf("capture: create clips dir: %w", err)})
		}
	}

	name := fmt.Sprintf("%s_%s.wav", r.cfg.ClipBaseName, start.Format("20060102-150405"))
	path := filepath.Join(r.cfg.ClipsDir, name)
	if err := audio.WriteClip(path, pcm, r.cfg.SampleRate); err != nil {
		return r.finish(ctx, start, DeviceError{Err: fmt.Errorf("capture: persist clip: %w", err)})
	}

	return r.finish(ctx, start, Clip{
		Path:     path,
		Frames:   len(frames),
		Duration: r.now().Sub(start),
	})
}

// finish records session metrics and passes the outcome through.
func (r *Recorder) finish(ctx context.Context, start time.Time, out Outcome) Outcome {
	r.metrics.CaptureDuration.Record(ctx, r.now().Sub(start).Seconds())

	switch out.(type) {
	case Clip:
		r.metrics.RecordCaptureOutcome(ctx, "clip")
	case NoSpeech:
		r.metrics.RecordCaptureOutcome(ctx, "no_speech")
	case DeviceError:
		r.metrics.RecordCaptureOutcome(ctx, "error")
	}
	return out
}
