package wake

import (
	"context"
	"errors"
	"testing"

	audiomock "github.com/MrWong99/earshot/pkg/audio/mock"
)

// scriptedClassifier feeds one score map per Classify call. After the script
// is exhausted the last entry repeats.
type scriptedClassifier struct {
	scores []map[string]float64
	err    error

	classifyCalls int
	resetCalls    int
}

func (c *scriptedClassifier) Classify(_ context.Context, _ []byte) (map[string]float64, error) {
	call := c.classifyCalls
	c.classifyCalls++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.scores) == 0 {
		return map[string]float64{}, nil
	}
	return c.scores[min(call, len(c.scores)-1)], nil
}

func (c *scriptedClassifier) Reset(_ context.Context) error {
	c.resetCalls++
	return nil
}

func silentFrames(n, byteLen int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = make([]byte, byteLen)
	}
	return frames
}

func TestAwait_DetectsWhenScoreCrossesSensitivity(t *testing.T) {
	clf := &scriptedClassifier{scores: []map[string]float64{
		{"hey_earshot": 0.1},
		{"hey_earshot": 0.2},
		{"hey_earshot": 0.92, "computer": 0.4},
	}}
	src := &audiomock.Source{Frames: silentFrames(10, 2048)}
	l := NewListener(clf, 0.5, 3)

	ev, err := l.Await(context.Background(), src)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if ev.Model != "hey_earshot" {
		t.Errorf("model = %q, want hey_earshot", ev.Model)
	}
	if ev.Score != 0.92 {
		t.Errorf("score = %v, want 0.92", ev.Score)
	}
	if got := l.Detections(); got != 1 {
		t.Errorf("detections = %d, want 1", got)
	}
	if clf.resetCalls != 1 {
		t.Errorf("classifier resets = %d, want 1", clf.resetCalls)
	}
	if clf.classifyCalls != 3 {
		t.Errorf("classify calls = %d, want 3", clf.classifyCalls)
	}
}

func TestAwait_CooldownSkipsClassification(t *testing.T) {
	// Every frame would score above sensitivity, but the 3 cooldown
	// frames after the first detection must not be classified.
	clf := &scriptedClassifier{scores: []map[string]float64{
		{"hey_earshot": 0.9},
	}}
	src := &audiomock.Source{Frames: silentFrames(10, 2048), Repeat: make([]byte, 2048)}
	l := NewListener(clf, 0.5, 3)

	ctx := context.Background()
	if _, err := l.Await(ctx, src); err != nil {
		t.Fatalf("first Await: %v", err)
	}
	if _, err := l.Await(ctx, src); err != nil {
		t.Fatalf("second Await: %v", err)
	}

	// First detection: 1 classify. Second call: 3 cooldown frames pass
	// unclassified, then the 4th frame is classified and fires.
	if clf.classifyCalls != 2 {
		t.Errorf("classify calls = %d, want 2", clf.classifyCalls)
	}
	if got := l.Detections(); got != 2 {
		t.Errorf("detections = %d, want 2", got)
	}
}

func TestAwait_DeviceErrorSurfaces(t *testing.T) {
	src := &audiomock.Source{Frames: nil} // exhausted immediately
	l := NewListener(&scriptedClassifier{}, 0.5, 0)

	_, err := l.Await(context.Background(), src)
	if err == nil {
		t.Fatal("expected device error, got nil")
	}
}

func TestAwait_ClassifierErrorSurfaces(t *testing.T) {
	clf := &scriptedClassifier{err: errors.New("model not loaded")}
	src := &audiomock.Source{Frames: silentFrames(1, 2048)}
	l := NewListener(clf, 0.5, 0)

	_, err := l.Await(context.Background(), src)
	if err == nil {
		t.Fatal("expected classifier error, got nil")
	}
}

func TestAwait_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &audiomock.Source{Frames: silentFrames(1, 2048), Repeat: make([]byte, 2048)}
	l := NewListener(&scriptedClassifier{}, 0.5, 0)

	if _, err := l.Await(ctx, src); err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}

func TestDetections_Monotonic(t *testing.T) {
	clf := &scriptedClassifier{scores: []map[string]float64{{"m": 0.9}}}
	src := &audiomock.Source{Frames: silentFrames(1, 2048), Repeat: make([]byte, 2048)}
	l := NewListener(clf, 0.5, 0)

	var last uint64
	for i := 0; i < 5; i++ {
		if _, err := l.Await(context.Background(), src); err != nil {
			t.Fatalf("Await %d: %v", i, err)
		}
		if got := l.Detections(); got <= last {
			t.Fatalf("detections went from %d to %d; want strictly increasing", last, got)
		}
		last = l.Detections()
	}
}
