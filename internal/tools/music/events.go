package music

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Event is a player state change pushed by the daemon.
type Event struct {
	// Type is one of "track_started", "track_finished", "paused",
	// "resumed", "stopped", "queue_empty".
	Type string `json:"type"`

	// Track is set for track-related events.
	Track *Track `json:"track,omitempty"`
}

// EventFeed subscribes to the daemon's websocket event stream.
type EventFeed struct {
	url     string
	backoff time.Duration
}

// NewEventFeed creates a feed for the daemon at host:port.
func NewEventFeed(host string, port int) *EventFeed {
	return &EventFeed{
		url:     fmt.Sprintf("ws://%s:%d/events", host, port),
		backoff: 2 * time.Second,
	}
}

// Listen dials the event stream and invokes handler for every event until
// ctx is cancelled. Dropped connections are redialed after a fixed backoff;
// the daemon restarting must not take the feed down with it.
func (f *EventFeed) Listen(ctx context.Context, handler func(Event)) error {
	for {
		if err := f.listenOnce(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("music event feed disconnected; redialing",
				"url", f.url, "backoff", f.backoff, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.backoff):
		}
	}
}

// listenOnce runs a single websocket session.
func (f *EventFeed) listenOnce(ctx context.Context, handler func(Event)) error {
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("music: dial event feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("music: read event: %w", err)
		}
		handler(ev)
	}
}
