package wake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/audio"
)

// State is the listener's position in its detection cycle.
type State int

const (
	// StateIdle means no Await call is in progress.
	StateIdle State = iota

	// StateListening means frames are being classified.
	StateListening

	// StateCooldown means frames are being consumed but not classified,
	// absorbing acoustic residue of the trigger phrase.
	StateCooldown
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Event describes a single wake detection.
type Event struct {
	// Model is the wake model whose score crossed the sensitivity.
	Model string

	// Score is the winning model's confidence.
	Score float64

	// Timestamp is when the detection fired.
	Timestamp time.Time
}

// Listener runs the wake-word detection cycle over a frame stream.
//
// The only state carried between Await calls is the cooldown counter: after
// a detection, the first cooldownFrames frames of the next call are consumed
// without classification. Listener is not safe for concurrent use; the
// pipeline drives it from a single goroutine.
type Listener struct {
	classifier     Classifier
	sensitivity    float64
	cooldownFrames int

	state        State
	cooldownLeft int
	detections   uint64

	metrics *observe.Metrics

	now func() time.Time
}

// ListenerOption is a functional option for Listener.
type ListenerOption func(*Listener)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ListenerOption {
	return func(l *Listener) { l.metrics = m }
}

// WithSampleRates declares the microphone and classifier sample rates.
// A mismatch does not prevent operation but degrades detection accuracy, so
// it is logged once at construction.
func WithSampleRates(micRate, classifierRate int) ListenerOption {
	return func(l *Listener) {
		if classifierRate != 0 && micRate != classifierRate {
			slog.Warn("wake classifier sample rate differs from microphone; detection accuracy degraded",
				"mic_rate", micRate,
				"classifier_rate", classifierRate,
			)
		}
	}
}

// NewListener creates a Listener. sensitivity is the minimum score that
// counts as a detection; cooldownFrames is how many frames are skipped after
// each detection.
func NewListener(classifier Classifier, sensitivity float64, cooldownFrames int, opts ...ListenerOption) *Listener {
	l := &Listener{
		classifier:     classifier,
		sensitivity:    sensitivity,
		cooldownFrames: cooldownFrames,
		now:            time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// State returns the listener's current state.
func (l *Listener) State() State { return l.state }

// Detections returns the number of wake events fired since construction.
// The counter is monotonic.
func (l *Listener) Detections() uint64 { return l.detections }

// Await blocks until a wake word is detected on src, then returns the
// detection event. It returns an error when the frame source fails; the
// caller may retry by re-invoking. Context cancellation aborts the wait.
func (l *Listener) Await(ctx context.Context, src audio.FrameSource) (*Event, error) {
	l.state = StateListening
	defer func() { l.state = StateIdle }()

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("wake: listen aborted: %w", err)
		}

		frame, err := src.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("wake: read frame: %w", err)
		}

		// Cooldown frames are consumed but never classified. The
		// counter only ever decreases and stops at zero.
		if l.cooldownLeft > 0 {
			l.state = StateCooldown
			l.cooldownLeft--
			if l.cooldownLeft == 0 {
				l.state = StateListening
			}
			continue
		}

		scores, err := l.classifier.Classify(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("wake: classify frame: %w", err)
		}

		model, score := bestScore(scores)
		if score < l.sensitivity {
			continue
		}

		l.detections++
		l.cooldownLeft = l.cooldownFrames
		l.metrics.WakeDetections.Add(ctx, 1, metric.WithAttributes(observe.Attr("model", model)))

		// Flush the classifier's streaming state so the tail of the
		// trigger phrase cannot score again after the cooldown.
		if err := l.classifier.Reset(ctx); err != nil {
			slog.Warn("wake: classifier reset failed; residual audio may re-trigger", "error", err)
		}

		return &Event{Model: model, Score: score, Timestamp: l.now()}, nil
	}
}

// bestScore returns the highest-scoring model.
func bestScore(scores map[string]float64) (string, float64) {
	var (
		bestModel string
		best      float64 = -1
	)
	for model, score := range scores {
		if score > best {
			bestModel, best = model, score
		}
	}
	return bestModel, best
}
