// Package music is the client for the local music daemon: a small REST
// surface for playback commands plus a websocket feed for player events.
package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Track describes what the daemon is playing.
type Track struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Playing  bool    `json:"playing"`
}

// String renders the track for spoken feedback.
func (t Track) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return fmt.Sprintf("%s by %s", t.Title, t.Artist)
}

// Action is a playback control verb understood by the daemon.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionSkip   Action = "skip"
	ActionStop   Action = "stop"
)

// IsValid reports whether a is a known control verb.
func (a Action) IsValid() bool {
	switch a {
	case ActionPause, ActionResume, ActionSkip, ActionStop:
		return true
	}
	return false
}

// Client talks to the music daemon's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a functional option for Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the daemon at host:port.
func NewClient(host string, port int, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Play asks the daemon to search for query and start playback. It returns
// the track that started playing.
func (c *Client) Play(ctx context.Context, query string) (*Track, error) {
	var track Track
	if err := c.post(ctx, "/play", map[string]string{"query": query}, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// Control sends a playback verb.
func (c *Client) Control(ctx context.Context, action Action) error {
	if !action.IsValid() {
		return fmt.Errorf("music: unknown control action %q", action)
	}
	return c.post(ctx, "/control", map[string]string{"action": string(action)}, nil)
}

// NowPlaying returns the current track, or nil when nothing is playing.
func (c *Client) NowPlaying(ctx context.Context) (*Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/now-playing", nil)
	if err != nil {
		return nil, fmt.Errorf("music: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("music: GET /now-playing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("music: GET /now-playing returned status %d", resp.StatusCode)
	}
	var track Track
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("music: decode now-playing: %w", err)
	}
	return &track, nil
}

// post sends a JSON body and optionally decodes a JSON response into out.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("music: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("music: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("music: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("music: POST %s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("music: decode response: %w", err)
	}
	return nil
}
