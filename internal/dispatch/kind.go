package dispatch

import "github.com/MrWong99/earshot/pkg/provider/llm"

// Kind enumerates the built-in tools. The set is closed: a name that does
// not parse to a Kind is either routed to an MCP server or fails closed.
type Kind int

const (
	KindUnknown Kind = iota
	KindPlayMusic
	KindMusicControl
	KindGetSongInfo
	KindControlVolume
	KindSpeakResponse
	KindWebSearch
	KindUnknownRequest
	KindAddTask
	KindCompleteTask
	KindListTasks
	KindGetTask
	KindObsoleteTask
	KindAnalyzeScreen
	KindSystemControl
	KindClearSession
)

var kindNames = map[Kind]string{
	KindPlayMusic:      "play_music",
	KindMusicControl:   "music_control",
	KindGetSongInfo:    "get_song_info",
	KindControlVolume:  "control_volume",
	KindSpeakResponse:  "speak_response",
	KindWebSearch:      "web_search",
	KindUnknownRequest: "unknown_request",
	KindAddTask:        "add_task",
	KindCompleteTask:   "complete_task",
	KindListTasks:      "list_tasks",
	KindGetTask:        "get_task",
	KindObsoleteTask:   "obsolete_task",
	KindAnalyzeScreen:  "analyze_screen",
	KindSystemControl:  "system_control",
	KindClearSession:   "clear_session",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

// ParseKind maps a tool name to its Kind. Unknown names yield KindUnknown.
func ParseKind(name string) Kind {
	return kindByName[name]
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

func stringParam(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// Definitions returns the tool definitions offered to the LLM for every
// built-in tool.
func Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "play_music",
			Description: "Search the music library and start playing the best match.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": stringParam("Song, album or artist to play."),
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "music_control",
			Description: "Control playback of the currently playing music.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type":        "string",
						"enum":        []string{"pause", "resume", "skip", "stop"},
						"description": "Playback action to perform.",
					},
				},
				"required": []string{"action"},
			},
		},
		{
			Name:        "get_song_info",
			Description: "Tell the user what song is currently playing.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "control_volume",
			Description: "Set or adjust the output volume.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"level": map[string]any{
						"type":        "integer",
						"description": "Target volume percentage between 0 and 100.",
					},
					"direction": map[string]any{
						"type":        "string",
						"enum":        []string{"up", "down"},
						"description": "Relative adjustment when no level is given.",
					},
					"duration_seconds": map[string]any{
						"type":        "number",
						"description": "Fade to the target over this many seconds instead of jumping.",
					},
				},
			},
		},
		{
			Name:        "speak_response",
			Description: "Say something to the user. Use for answers, confirmations and small talk.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": stringParam("Exact text to speak aloud."),
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        "web_search",
			Description: "Search the web for current information the assistant does not know.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": stringParam("Search query."),
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "unknown_request",
			Description: "Use when the request cannot be served by any other tool.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": stringParam("Short explanation of why the request cannot be handled."),
				},
			},
		},
		{
			Name:        "add_task",
			Description: "Add an item to the user's todo list.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": stringParam("What needs to be done."),
					"priority": map[string]any{
						"type":        "string",
						"enum":        []string{"low", "normal", "high"},
						"description": "Task urgency. Defaults to normal.",
					},
				},
				"required": []string{"title"},
			},
		},
		{
			Name:        "complete_task",
			Description: "Mark a todo item as done.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task": stringParam("Title (or close paraphrase) of the task to complete."),
				},
				"required": []string{"task"},
			},
		},
		{
			Name:        "list_tasks",
			Description: "List the user's open todo items.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"include_done": map[string]any{
						"type":        "boolean",
						"description": "Also list completed tasks.",
					},
				},
			},
		},
		{
			Name:        "get_task",
			Description: "Read out the details of one todo item.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task": stringParam("Title (or close paraphrase) of the task."),
				},
				"required": []string{"task"},
			},
		},
		{
			Name:        "obsolete_task",
			Description: "Drop a todo item that is no longer relevant, without completing it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task": stringParam("Title (or close paraphrase) of the task to drop."),
				},
				"required": []string{"task"},
			},
		},
		{
			Name:        "analyze_screen",
			Description: "Look at the user's screen and answer a question about it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": stringParam("What the user wants to know about the screen."),
				},
			},
		},
		{
			Name:        "system_control",
			Description: "Lock, suspend, reboot or shut down the computer.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type":        "string",
						"enum":        []string{"lock", "suspend", "reboot", "shutdown"},
						"description": "Host action to perform.",
					},
				},
				"required": []string{"action"},
			},
		},
		{
			Name:        "clear_session",
			Description: "Forget the current conversation history.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}
