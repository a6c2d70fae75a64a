package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/mcp"
	"github.com/MrWong99/earshot/internal/tools/music"
	"github.com/MrWong99/earshot/internal/tools/system"
	"github.com/MrWong99/earshot/internal/tools/tasks"
	"github.com/MrWong99/earshot/internal/tools/websearch"
	"github.com/MrWong99/earshot/pkg/provider/llm"
)

type fakeMusic struct {
	track      *music.Track
	err        error
	lastQuery  string
	lastAction music.Action
}

func (f *fakeMusic) Play(_ context.Context, query string) (*music.Track, error) {
	f.lastQuery = query
	return f.track, f.err
}

func (f *fakeMusic) Control(_ context.Context, action music.Action) error {
	f.lastAction = action
	return f.err
}

func (f *fakeMusic) NowPlaying(context.Context) (*music.Track, error) {
	return f.track, f.err
}

type fakeVolume struct {
	level       int
	transitions []time.Duration
}

func (f *fakeVolume) Set(_ context.Context, percent int) error { f.level = percent; return nil }
func (f *fakeVolume) TransitionTo(_ context.Context, target int, over time.Duration) error {
	f.level = target
	f.transitions = append(f.transitions, over)
	return nil
}
func (f *fakeVolume) Volume(context.Context) (int, error) { return f.level, nil }

type panickyTasks struct{}

func (panickyTasks) Add(string, tasks.Priority) (tasks.Task, error) { panic("disk on fire") }
func (panickyTasks) Complete(string) (tasks.Task, error)            { panic("disk on fire") }
func (panickyTasks) MarkObsolete(string) (tasks.Task, error)        { panic("disk on fire") }
func (panickyTasks) Get(string) (tasks.Task, error)                 { panic("disk on fire") }
func (panickyTasks) List(bool) []tasks.Task                         { panic("disk on fire") }

type fakeMemory struct {
	cleared []string
	err     error
}

func (f *fakeMemory) ClearSession(_ context.Context, sessionID string) error {
	f.cleared = append(f.cleared, sessionID)
	return f.err
}

type fakeMCP struct {
	tools  map[string]*mcp.ToolResult
	err    error
	called []string
}

func (f *fakeMCP) HasTool(name string) bool {
	_, ok := f.tools[name]
	return ok
}

func (f *fakeMCP) CallTool(_ context.Context, name, _ string) (*mcp.ToolResult, error) {
	f.called = append(f.called, name)
	return f.tools[name], f.err
}

func TestDispatch_UnknownToolFailsClosed(t *testing.T) {
	d := &Dispatcher{}
	res := d.Dispatch(context.Background(), llm.ToolCall{Name: "launch_missiles", Arguments: "{}"})
	if res.Success {
		t.Fatal("unknown tool dispatched successfully")
	}
	if res.Error == "" {
		t.Error("unknown tool result carries no error")
	}
}

func TestDispatch_RoutesUnknownNameToMCP(t *testing.T) {
	router := &fakeMCP{tools: map[string]*mcp.ToolResult{
		"fetch_weather": {Content: `{"temp": 21}`},
	}}
	d := &Dispatcher{MCP: router}

	res := d.Dispatch(context.Background(), llm.ToolCall{Name: "fetch_weather", Arguments: `{"city":"berlin"}`})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.Output != `{"temp": 21}` {
		t.Errorf("output = %q", res.Output)
	}
	if len(router.called) != 1 || router.called[0] != "fetch_weather" {
		t.Errorf("mcp calls = %v", router.called)
	}
}

func TestDispatch_MCPErrorResultFails(t *testing.T) {
	router := &fakeMCP{tools: map[string]*mcp.ToolResult{
		"fetch_weather": {Content: "city not found", IsError: true},
	}}
	d := &Dispatcher{MCP: router}

	res := d.Dispatch(context.Background(), llm.ToolCall{Name: "fetch_weather", Arguments: "{}"})
	if res.Success {
		t.Fatal("error result dispatched successfully")
	}
	if !strings.Contains(res.Error, "city not found") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestDispatch_HandlerPanicIsContained(t *testing.T) {
	d := &Dispatcher{Tasks: panickyTasks{}}
	res := d.Dispatch(context.Background(), llm.ToolCall{Name: "add_task", Arguments: `{"title":"x"}`})
	if res.Success {
		t.Fatal("panicking handler reported success")
	}
	if !strings.Contains(res.Error, "panicked") {
		t.Errorf("error = %q, want panic mention", res.Error)
	}
}

func TestDispatch_SpeakResponse(t *testing.T) {
	d := &Dispatcher{}
	res := d.Dispatch(context.Background(), llm.ToolCall{
		Name:      "speak_response",
		Arguments: `{"text":"Hello there."}`,
	})
	if !res.Success || res.Feedback != "Hello there." {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatch_PlayMusic(t *testing.T) {
	m := &fakeMusic{track: &music.Track{Title: "So What", Artist: "Miles Davis"}}
	d := &Dispatcher{Music: m}

	res := d.Dispatch(context.Background(), llm.ToolCall{
		Name:      "play_music",
		Arguments: `{"query":"kind of blue"}`,
	})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if m.lastQuery != "kind of blue" {
		t.Errorf("query = %q", m.lastQuery)
	}
	if !strings.Contains(res.Feedback, "So What") {
		t.Errorf("feedback = %q", res.Feedback)
	}
}

func TestDispatch_PlayMusicWithoutClientFails(t *testing.T) {
	d := &Dispatcher{}
	res := d.Dispatch(context.Background(), llm.ToolCall{Name: "play_music", Arguments: `{"query":"x"}`})
	if res.Success {
		t.Fatal("expected failure without a music client")
	}
}

func TestDispatch_MusicControlError(t *testing.T) {
	m := &fakeMusic{err: errors.New("daemon down")}
	d := &Dispatcher{Music: m}
	res := d.Dispatch(context.Background(), llm.ToolCall{
		Name:      "music_control",
		Arguments: `{"action":"pause"}`,
	})
	if res.Success {
		t.Fatal("expected failure when daemon errors")
	}
}

func TestDispatch_VolumeDirection(t *testing.T) {
	v := &fakeVolume{level: 40}
	d := &Dispatcher{Volume: v}

	res := d.Dispatch(context.Background(), llm.ToolCall{
		Name:      "control_volume",
		Arguments: `{"direction":"up"}`,
	})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if v.level != 50 {
		t.Errorf("level = %d, want 50", v.level)
	}
}

func TestDispatch_VolumeFade(t *testing.T) {
	v := &fakeVolume{level: 80}
	d := &Dispatcher{Volume: v}

	res := d.Dispatch(context.Background(), llm.ToolCall{
		Name:      "control_volume",
		Arguments: `{"level": 20, "duration_seconds": 1.5}`,
	})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if v.level != 20 {
		t.Errorf("level = %d, want 20", v.level)
	}
	if len(v.transitions) != 1 || v.transitions[0] != 1500*time.Millisecond {
		t.Errorf("transitions = %v", v.transitions)
	}
}

func TestDispatch_ClearSessionUsesConfiguredID(t *testing.T) {
	mem := &fakeMemory{}
	d := &Dispatcher{Memory: mem, SessionID: "session-42"}

	res := d.Dispatch(context.Background(), llm.ToolCall{Name: "clear_session", Arguments: "{}"})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(mem.cleared) != 1 || mem.cleared[0] != "session-42" {
		t.Errorf("cleared = %v", mem.cleared)
	}
}

func TestDispatch_SystemControlDisabled(t *testing.T) {
	d := &Dispatcher{System: system.NewController(false)}
	res := d.Dispatch(context.Background(), llm.ToolCall{
		Name:      "system_control",
		Arguments: `{"action":"shutdown"}`,
	})
	if res.Success {
		t.Fatal("disabled system control reported success")
	}
}

type fakeSearch struct{ resp *websearch.Response }

func (f *fakeSearch) Search(context.Context, string) (*websearch.Response, error) {
	return f.resp, nil
}

func TestDispatch_WebSearchSpeaksAnswer(t *testing.T) {
	d := &Dispatcher{Search: &fakeSearch{resp: &websearch.Response{Answer: "It is 21 degrees."}}}
	res := d.Dispatch(context.Background(), llm.ToolCall{
		Name:      "web_search",
		Arguments: `{"query":"temperature in berlin"}`,
	})
	if !res.Success || res.Feedback != "It is 21 degrees." {
		t.Errorf("result = %+v", res)
	}
}

func TestDefinitions_CoverEveryKind(t *testing.T) {
	defs := Definitions()
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if seen[def.Name] {
			t.Errorf("duplicate definition %q", def.Name)
		}
		seen[def.Name] = true
		if ParseKind(def.Name) == KindUnknown {
			t.Errorf("definition %q does not parse to a kind", def.Name)
		}
	}
	for _, name := range kindNames {
		if !seen[name] {
			t.Errorf("kind %q has no definition", name)
		}
	}
}

func TestOverrides_Match(t *testing.T) {
	o := DefaultOverrides()

	cases := []struct {
		transcript string
		wantTool   string
		wantMatch  bool
	}{
		{"Please forget our conversation.", "clear_session", true},
		{"forget this conversation", "clear_session", true},
		{"forget our conversashun", "clear_session", true}, // transcription noise
		{"Stop the music!", "music_control", true},
		{"never mind", "unknown_request", true},
		{"play some jazz", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		call, ok := o.Match(tc.transcript)
		if ok != tc.wantMatch {
			t.Errorf("Match(%q) matched = %v, want %v", tc.transcript, ok, tc.wantMatch)
			continue
		}
		if ok && call.Name != tc.wantTool {
			t.Errorf("Match(%q) = %q, want %q", tc.transcript, call.Name, tc.wantTool)
		}
	}
}
