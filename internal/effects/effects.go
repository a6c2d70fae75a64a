// Package effects plays short acknowledgement cues (wake chime, error buzz)
// through the default output device.
//
// Cues are decorative: playback runs fire-and-forget and failures are
// logged, never propagated. A cue must not be able to break the command
// pipeline.
package effects

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	beepwav "github.com/faiface/beep/wav"
)

// Well-known cue names. Each maps to <name>.wav in the sounds directory.
const (
	CueWake  = "wake"
	CueDone  = "done"
	CueError = "error"
)

// speakerInit guards the process-global beep speaker initialisation, shared
// semantics with TTS playback: the device keeps the rate of the first clip
// and everything else is resampled to it.
var (
	speakerInit sync.Once
	speakerRate beep.SampleRate
)

// Player plays cue files from a directory. The zero value is a disabled
// player whose Play is a no-op.
type Player struct {
	dir     string
	enabled bool

	mu        sync.Mutex
	current   *beep.Ctrl
	interrupt chan struct{}
}

// NewPlayer creates a Player reading cues from dir. With enabled false all
// playback calls are no-ops, so callers never need to branch.
func NewPlayer(dir string, enabled bool) *Player {
	return &Player{dir: dir, enabled: enabled}
}

// Play starts the named cue asynchronously, replacing any cue still playing.
func (p *Player) Play(name string) {
	if p == nil || !p.enabled {
		return
	}
	go func() {
		if err := p.play(name); err != nil {
			slog.Warn("sound cue failed", "cue", name, "error", err)
		}
	}()
}

// Stop halts the currently playing cue, if any. Detaching the streamer lets
// the mixer drain it immediately instead of leaving it paused in the queue.
func (p *Player) Stop() {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		speaker.Lock()
		p.current.Streamer = nil
		speaker.Unlock()
		close(p.interrupt)
		p.current = nil
		p.interrupt = nil
	}
}

func (p *Player) play(name string) error {
	path := filepath.Join(p.dir, name+".wav")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("effects: open cue %q: %w", path, err)
	}
	defer f.Close()

	streamer, format, err := beepwav.Decode(f)
	if err != nil {
		return fmt.Errorf("effects: decode cue %q: %w", path, err)
	}
	defer streamer.Close()

	var initErr error
	speakerInit.Do(func() {
		speakerRate = format.SampleRate
		initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if initErr != nil {
		return fmt.Errorf("effects: init speaker: %w", initErr)
	}

	var stream beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		stream = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}

	done := make(chan struct{})
	interrupt := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(stream, beep.Callback(func() { close(done) }))}

	p.mu.Lock()
	// A cue already playing is stopped first; overlapping chimes sound
	// like a fault.
	if p.current != nil {
		speaker.Lock()
		p.current.Streamer = nil
		speaker.Unlock()
		close(p.interrupt)
	}
	p.current = ctrl
	p.interrupt = interrupt
	p.mu.Unlock()

	speaker.Play(ctrl)

	select {
	case <-done:
	case <-interrupt:
	}

	p.mu.Lock()
	if p.current == ctrl {
		p.current = nil
		p.interrupt = nil
	}
	p.mu.Unlock()
	return nil
}
