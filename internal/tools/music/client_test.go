package music

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func clientFor(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	return NewClient(u.Hostname(), port)
}

func TestPlay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/play" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["query"] != "kind of blue" {
			t.Errorf("query = %q", body["query"])
		}
		json.NewEncoder(w).Encode(Track{Title: "So What", Artist: "Miles Davis", Playing: true})
	}))
	defer srv.Close()

	track, err := clientFor(t, srv).Play(context.Background(), "kind of blue")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if track.Title != "So What" || !track.Playing {
		t.Errorf("track = %+v", track)
	}
}

func TestControl_RejectsUnknownAction(t *testing.T) {
	c := NewClient("localhost", 1) // never dialed
	if err := c.Control(context.Background(), Action("louder")); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestControl_SendsAction(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		got = body["action"]
	}))
	defer srv.Close()

	if err := clientFor(t, srv).Control(context.Background(), ActionPause); err != nil {
		t.Fatalf("Control: %v", err)
	}
	if got != "pause" {
		t.Errorf("action = %q, want pause", got)
	}
}

func TestNowPlaying_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	track, err := clientFor(t, srv).NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if track != nil {
		t.Errorf("track = %+v, want nil when idle", track)
	}
}

func TestPlay_SurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no results", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := clientFor(t, srv).Play(context.Background(), "nothing"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestEventFeed_DeliversEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := r.Context()
		wsjson.Write(ctx, conn, Event{Type: "track_started", Track: &Track{Title: "So What"}})
		wsjson.Write(ctx, conn, Event{Type: "paused"})
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	feed := NewEventFeed(u.Hostname(), port)

	var events []Event
	err := feed.listenOnce(context.Background(), func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("listenOnce: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != "track_started" || events[0].Track.Title != "So What" {
		t.Errorf("first event = %+v", events[0])
	}
}
