// Package dispatch executes resolved tool calls against their handlers.
//
// The built-in tool set is a closed enum; names outside it are routed to
// registered MCP servers when one offers the tool, and fail closed
// otherwise. A failing or panicking handler produces an unsuccessful
// ToolResult, never an error that crosses the pipeline boundary.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/earshot/internal/mcp"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/tools/music"
	"github.com/MrWong99/earshot/internal/tools/system"
	"github.com/MrWong99/earshot/internal/tools/tasks"
	"github.com/MrWong99/earshot/internal/tools/websearch"
	"github.com/MrWong99/earshot/pkg/provider/llm"
)

// ToolResult is the outcome of one dispatched tool call.
type ToolResult struct {
	// Success reports whether the handler completed normally.
	Success bool

	// Output is machine-oriented result data, if any.
	Output string

	// Feedback is the text to speak to the user, if any.
	Feedback string

	// Error describes the failure when Success is false.
	Error string
}

func failure(format string, args ...any) ToolResult {
	return ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

func spoken(feedback string) ToolResult {
	return ToolResult{Success: true, Feedback: feedback}
}

// MusicController is the subset of the music client the dispatcher needs.
type MusicController interface {
	Play(ctx context.Context, query string) (*music.Track, error)
	Control(ctx context.Context, action music.Action) error
	NowPlaying(ctx context.Context) (*music.Track, error)
}

// VolumeController changes the output volume.
type VolumeController interface {
	Set(ctx context.Context, percent int) error
	TransitionTo(ctx context.Context, target int, over time.Duration) error
	Volume(ctx context.Context) (int, error)
}

// TaskStore manages the todo list.
type TaskStore interface {
	Add(title string, priority tasks.Priority) (tasks.Task, error)
	Complete(ref string) (tasks.Task, error)
	MarkObsolete(ref string) (tasks.Task, error)
	Get(ref string) (tasks.Task, error)
	List(includeDone bool) []tasks.Task
}

// Searcher answers web queries.
type Searcher interface {
	Search(ctx context.Context, query string) (*websearch.Response, error)
}

// SystemController executes host power actions.
type SystemController interface {
	Execute(ctx context.Context, action system.Action) error
}

// ScreenAnalyzer answers questions about the current display contents.
type ScreenAnalyzer interface {
	Analyze(ctx context.Context, question string) (string, error)
}

// MemoryClearer wipes a conversation session.
type MemoryClearer interface {
	ClearSession(ctx context.Context, sessionID string) error
}

// MCPRouter forwards tool calls to MCP servers.
type MCPRouter interface {
	HasTool(name string) bool
	CallTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error)
}

// Dispatcher routes tool calls to handlers. Collaborators left nil make the
// corresponding tools report themselves unavailable instead of panicking.
type Dispatcher struct {
	Music  MusicController
	Volume VolumeController
	Tasks  TaskStore
	Search Searcher
	System SystemController
	Screen ScreenAnalyzer
	Memory MemoryClearer
	MCP    MCPRouter

	// SessionID identifies the conversation cleared by clear_session.
	SessionID string

	// Metrics defaults to observe.DefaultMetrics when nil.
	Metrics *observe.Metrics
}

func (d *Dispatcher) metrics() *observe.Metrics {
	if d.Metrics != nil {
		return d.Metrics
	}
	return observe.DefaultMetrics()
}

// Dispatch executes call and returns its result. It never returns an error;
// every failure mode, including a panicking handler, is folded into an
// unsuccessful ToolResult.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall) (result ToolResult) {
	log := observe.Logger(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("tool handler panicked", "tool", call.Name, "panic", r)
			result = failure("tool %q panicked: %v", call.Name, r)
		}
		status := "ok"
		if !result.Success {
			status = "failed"
		}
		d.metrics().RecordToolDispatch(ctx, call.Name, status)
	}()

	args := gjson.Parse(call.Arguments)

	switch ParseKind(call.Name) {
	case KindPlayMusic:
		return d.playMusic(ctx, args)
	case KindMusicControl:
		return d.musicControl(ctx, args)
	case KindGetSongInfo:
		return d.songInfo(ctx)
	case KindControlVolume:
		return d.controlVolume(ctx, args)
	case KindSpeakResponse:
		return spoken(args.Get("text").String())
	case KindWebSearch:
		return d.webSearch(ctx, args)
	case KindUnknownRequest:
		return d.unknownRequest(args)
	case KindAddTask:
		return d.addTask(args)
	case KindCompleteTask:
		return d.completeTask(args)
	case KindListTasks:
		return d.listTasks(args)
	case KindGetTask:
		return d.getTask(args)
	case KindObsoleteTask:
		return d.obsoleteTask(args)
	case KindAnalyzeScreen:
		return d.analyzeScreen(ctx, args)
	case KindSystemControl:
		return d.systemControl(ctx, args)
	case KindClearSession:
		return d.clearSession(ctx)
	}

	if d.MCP != nil && d.MCP.HasTool(call.Name) {
		return d.callMCP(ctx, call)
	}

	log.Warn("refusing unknown tool", "tool", call.Name)
	return failure("unknown tool %q", call.Name)
}

func (d *Dispatcher) playMusic(ctx context.Context, args gjson.Result) ToolResult {
	if d.Music == nil {
		return failure("music playback is not configured")
	}
	query := strings.TrimSpace(args.Get("query").String())
	if query == "" {
		return failure("play_music requires a query")
	}
	track, err := d.Music.Play(ctx, query)
	if err != nil {
		return failure("play music: %v", err)
	}
	return spoken(fmt.Sprintf("Playing %s.", track))
}

func (d *Dispatcher) musicControl(ctx context.Context, args gjson.Result) ToolResult {
	if d.Music == nil {
		return failure("music playback is not configured")
	}
	action := music.Action(args.Get("action").String())
	if !action.IsValid() {
		return failure("unknown playback action %q", action)
	}
	if err := d.Music.Control(ctx, action); err != nil {
		return failure("music control: %v", err)
	}
	return ToolResult{Success: true}
}

func (d *Dispatcher) songInfo(ctx context.Context) ToolResult {
	if d.Music == nil {
		return failure("music playback is not configured")
	}
	track, err := d.Music.NowPlaying(ctx)
	if err != nil {
		return failure("now playing: %v", err)
	}
	if track == nil {
		return spoken("Nothing is playing right now.")
	}
	return spoken(fmt.Sprintf("This is %s.", track))
}

func (d *Dispatcher) controlVolume(ctx context.Context, args gjson.Result) ToolResult {
	if d.Volume == nil {
		return failure("volume control is not configured")
	}

	var target int
	switch {
	case args.Get("level").Exists():
		target = int(args.Get("level").Int())
	case args.Get("direction").Exists():
		current, err := d.Volume.Volume(ctx)
		if err != nil {
			return failure("read volume: %v", err)
		}
		switch args.Get("direction").String() {
		case "up":
			target = current + 10
		case "down":
			target = current - 10
		default:
			return failure("unknown volume direction %q", args.Get("direction").String())
		}
	default:
		return failure("control_volume requires a level or direction")
	}

	if secs := args.Get("duration_seconds").Float(); secs > 0 {
		if err := d.Volume.TransitionTo(ctx, target, time.Duration(secs*float64(time.Second))); err != nil {
			return failure("volume transition: %v", err)
		}
		return ToolResult{Success: true}
	}
	if err := d.Volume.Set(ctx, target); err != nil {
		return failure("set volume: %v", err)
	}
	return ToolResult{Success: true}
}

func (d *Dispatcher) webSearch(ctx context.Context, args gjson.Result) ToolResult {
	if d.Search == nil {
		return failure("web search is not configured")
	}
	query := strings.TrimSpace(args.Get("query").String())
	if query == "" {
		return failure("web_search requires a query")
	}
	resp, err := d.Search.Search(ctx, query)
	if err != nil {
		return failure("web search: %v", err)
	}
	summary := websearch.Summarize(resp)
	if summary == "" {
		return spoken("I couldn't find anything useful on that.")
	}
	return spoken(summary)
}

func (d *Dispatcher) unknownRequest(args gjson.Result) ToolResult {
	return ToolResult{
		Success:  true,
		Output:   args.Get("reason").String(),
		Feedback: "Sorry, that's not something I can help with.",
	}
}

func (d *Dispatcher) addTask(args gjson.Result) ToolResult {
	if d.Tasks == nil {
		return failure("task list is not configured")
	}
	task, err := d.Tasks.Add(args.Get("title").String(), tasks.ParsePriority(args.Get("priority").String()))
	if err != nil {
		return failure("add task: %v", err)
	}
	return spoken(fmt.Sprintf("Added %s with %s priority.", task.Title, task.Priority))
}

func (d *Dispatcher) completeTask(args gjson.Result) ToolResult {
	if d.Tasks == nil {
		return failure("task list is not configured")
	}
	task, err := d.Tasks.Complete(args.Get("task").String())
	if err != nil {
		return failure("complete task: %v", err)
	}
	return spoken(fmt.Sprintf("Done. I've checked off %s.", task.Title))
}

func (d *Dispatcher) listTasks(args gjson.Result) ToolResult {
	if d.Tasks == nil {
		return failure("task list is not configured")
	}
	list := d.Tasks.List(args.Get("include_done").Bool())
	if len(list) == 0 {
		return spoken("Your list is empty.")
	}

	const spokenLimit = 5
	titles := make([]string, 0, spokenLimit)
	for _, t := range list {
		titles = append(titles, t.Title)
		if len(titles) == spokenLimit {
			break
		}
	}
	feedback := fmt.Sprintf("You have %d tasks: %s.", len(list), strings.Join(titles, ", "))
	if len(list) == 1 {
		feedback = fmt.Sprintf("You have one task: %s.", titles[0])
	}
	return spoken(feedback)
}

func (d *Dispatcher) getTask(args gjson.Result) ToolResult {
	if d.Tasks == nil {
		return failure("task list is not configured")
	}
	task, err := d.Tasks.Get(args.Get("task").String())
	if err != nil {
		return failure("get task: %v", err)
	}
	status := "still open"
	if task.Done {
		status = "already done"
	}
	return spoken(fmt.Sprintf("%s, %s priority, %s.", task.Title, task.Priority, status))
}

func (d *Dispatcher) obsoleteTask(args gjson.Result) ToolResult {
	if d.Tasks == nil {
		return failure("task list is not configured")
	}
	task, err := d.Tasks.MarkObsolete(args.Get("task").String())
	if err != nil {
		return failure("obsolete task: %v", err)
	}
	return spoken(fmt.Sprintf("Dropped %s from your list.", task.Title))
}

func (d *Dispatcher) analyzeScreen(ctx context.Context, args gjson.Result) ToolResult {
	if d.Screen == nil {
		return failure("screen analysis is not configured")
	}
	answer, err := d.Screen.Analyze(ctx, args.Get("question").String())
	if err != nil {
		return failure("analyze screen: %v", err)
	}
	return spoken(answer)
}

func (d *Dispatcher) systemControl(ctx context.Context, args gjson.Result) ToolResult {
	if d.System == nil {
		return failure("system control is not configured")
	}
	action := system.Action(args.Get("action").String())
	if err := d.System.Execute(ctx, action); err != nil {
		return failure("system control: %v", err)
	}
	return spoken("Okay.")
}

func (d *Dispatcher) clearSession(ctx context.Context) ToolResult {
	if d.Memory == nil {
		return failure("conversation memory is not configured")
	}
	if err := d.Memory.ClearSession(ctx, d.SessionID); err != nil {
		return failure("clear session: %v", err)
	}
	return spoken("Okay, I've forgotten our conversation.")
}

func (d *Dispatcher) callMCP(ctx context.Context, call llm.ToolCall) ToolResult {
	res, err := d.MCP.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		return failure("mcp tool %q: %v", call.Name, err)
	}
	if res.IsError {
		return failure("mcp tool %q: %s", call.Name, res.Content)
	}
	return ToolResult{Success: true, Output: res.Content}
}
