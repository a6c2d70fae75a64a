// Package volume controls the system output volume, including smooth timed
// transitions between levels.
//
// At most one transition runs at a time. Starting a new one atomically
// replaces the active cancellation token, so the superseded worker notices
// between steps and exits without fighting over the mixer.
package volume

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"
)

// Mixer reads and writes the output volume as a percentage in [0, 100].
type Mixer interface {
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, percent int) error
}

// AmixerMixer drives the default ALSA Master control through the amixer CLI.
type AmixerMixer struct {
	// Control is the mixer control name. Defaults to "Master".
	Control string
}

// Compile-time interface assertion.
var _ Mixer = (*AmixerMixer)(nil)

func (m *AmixerMixer) control() string {
	if m.Control == "" {
		return "Master"
	}
	return m.Control
}

// Volume implements Mixer by parsing `amixer get` output.
func (m *AmixerMixer) Volume(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, "amixer", "get", m.control()).Output()
	if err != nil {
		return 0, fmt.Errorf("volume: amixer get: %w", err)
	}
	return parseAmixerPercent(string(out))
}

// SetVolume implements Mixer via `amixer set`.
func (m *AmixerMixer) SetVolume(ctx context.Context, percent int) error {
	percent = clamp(percent)
	if err := exec.CommandContext(ctx, "amixer", "set", m.control(), strconv.Itoa(percent)+"%").Run(); err != nil {
		return fmt.Errorf("volume: amixer set %d%%: %w", percent, err)
	}
	return nil
}

// percentPattern matches the "[NN%]" token amixer prints per channel.
var percentPattern = regexp.MustCompile(`\[(\d{1,3})%\]`)

// parseAmixerPercent extracts the first "[NN%]" token from amixer output.
func parseAmixerPercent(out string) (int, error) {
	m := percentPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("volume: no percentage in amixer output")
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("volume: parse percentage %q: %w", m[1], err)
	}
	return clamp(v), nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// token is the cooperative cancellation flag one transition worker polls.
type token struct {
	cancelled atomic.Bool
}

// TransitionManager owns volume changes. Immediate sets and timed
// transitions both go through it so they cannot interleave.
type TransitionManager struct {
	mixer  Mixer
	active atomic.Pointer[token]

	stepInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// ManagerOption is a functional option for TransitionManager.
type ManagerOption func(*TransitionManager)

// withTiming overrides the step interval and sleep function, for tests.
func withTiming(interval time.Duration, sleep func(context.Context, time.Duration) error) ManagerOption {
	return func(m *TransitionManager) {
		m.stepInterval = interval
		m.sleep = sleep
	}
}

// NewManager creates a TransitionManager on top of mixer.
func NewManager(mixer Mixer, opts ...ManagerOption) *TransitionManager {
	m := &TransitionManager{
		mixer:        mixer,
		stepInterval: 50 * time.Millisecond,
		sleep:        sleepCtx,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Set cancels any running transition and applies the target level at once.
func (m *TransitionManager) Set(ctx context.Context, percent int) error {
	m.cancelActive()
	return m.mixer.SetVolume(ctx, clamp(percent))
}

// Volume returns the current level.
func (m *TransitionManager) Volume(ctx context.Context) (int, error) {
	return m.mixer.Volume(ctx)
}

// TransitionTo moves the volume from its current level to target over the
// given duration, in small steps. It blocks until the transition completes,
// is superseded by a newer one, or ctx is cancelled. A superseded transition
// stops where it is and returns nil.
func (m *TransitionManager) TransitionTo(ctx context.Context, target int, over time.Duration) error {
	target = clamp(target)

	tok := &token{}
	if prev := m.active.Swap(tok); prev != nil {
		prev.cancelled.Store(true)
	}

	current, err := m.mixer.Volume(ctx)
	if err != nil {
		return err
	}
	if current == target || over <= 0 {
		return m.mixer.SetVolume(ctx, target)
	}

	steps := int(over / m.stepInterval)
	if steps < 1 {
		steps = 1
	}
	diff := target - current
	if distance := absInt(diff); steps > distance {
		steps = distance
	}

	for i := 1; i <= steps; i++ {
		if tok.cancelled.Load() {
			slog.Debug("volume transition superseded", "target", target)
			return nil
		}
		level := current + diff*i/steps
		if err := m.mixer.SetVolume(ctx, level); err != nil {
			return err
		}
		if i == steps {
			break
		}
		if err := m.sleep(ctx, m.stepInterval); err != nil {
			return err
		}
	}
	return nil
}

// cancelActive flags the running transition, if any, to stop at its next
// step boundary.
func (m *TransitionManager) cancelActive() {
	if prev := m.active.Swap(nil); prev != nil {
		prev.cancelled.Store(true)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
