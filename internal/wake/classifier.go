// Package wake implements wake-word detection over a microphone frame stream.
//
// A [Listener] feeds PCM frames to a [Classifier] and fires when the score
// crosses the configured sensitivity. After each detection the listener
// enters a cooldown window during which frames are consumed but not scored,
// so the tail of the wake phrase cannot re-trigger it.
package wake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Classifier scores audio frames for wake-word presence.
//
// Implementations must be safe for concurrent use.
type Classifier interface {
	// Classify returns the confidence per loaded wake model for one PCM
	// frame. Scores are in [0, 1].
	Classify(ctx context.Context, frame []byte) (map[string]float64, error)

	// Reset flushes any internal streaming state the classifier keeps
	// across frames, equivalent to feeding it several frames of pure
	// silence. The listener calls it after every detection so that
	// residual audio of the wake phrase cannot bleed into the next
	// scoring window.
	Reset(ctx context.Context) error
}

// HTTPClassifier is a Classifier backed by a wake-word scoring service over
// HTTP. Frames are posted as raw PCM; the service answers with a JSON score.
type HTTPClassifier struct {
	baseURL    string
	sampleRate int
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ Classifier = (*HTTPClassifier)(nil)

// HTTPOption is a functional option for HTTPClassifier.
type HTTPOption func(*HTTPClassifier)

// WithTimeout sets the per-request HTTP timeout. Defaults to 2s; scoring is
// in the audio hot path, so keep it tight.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClassifier) { c.httpClient.Timeout = d }
}

// WithSampleRate sets the sample rate announced to the service via the
// X-Sample-Rate header.
func WithSampleRate(rate int) HTTPOption {
	return func(c *HTTPClassifier) { c.sampleRate = rate }
}

// NewHTTPClassifier creates a classifier client for the scoring service at
// baseURL (e.g., "http://localhost:8123").
func NewHTTPClassifier(baseURL string, opts ...HTTPOption) (*HTTPClassifier, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("wake: classifier baseURL must not be empty")
	}
	c := &HTTPClassifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// scoreResponse is the JSON body returned by POST /score.
type scoreResponse struct {
	// Scores maps wake model name to confidence.
	Scores map[string]float64 `json:"scores"`
}

// Classify implements Classifier via POST /score.
func (c *HTTPClassifier) Classify(ctx context.Context, frame []byte) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("wake: create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.sampleRate > 0 {
		req.Header.Set("X-Sample-Rate", strconv.Itoa(c.sampleRate))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wake: POST /score: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wake: POST /score returned status %d", resp.StatusCode)
	}

	var body scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("wake: decode score response: %w", err)
	}
	return body.Scores, nil
}

// Healthy probes the scoring service via GET /health. It reports nil when
// the service is reachable and answers 200.
func (c *HTTPClassifier) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("wake: create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wake: GET /health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wake: GET /health returned status %d", resp.StatusCode)
	}
	return nil
}

// Reset implements Classifier via POST /reset.
func (c *HTTPClassifier) Reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reset", nil)
	if err != nil {
		return fmt.Errorf("wake: create reset request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wake: POST /reset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wake: POST /reset returned status %d", resp.StatusCode)
	}
	return nil
}
