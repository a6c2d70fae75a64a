// Package config provides the configuration schema, loader, and provider
// registry for the earshot voice assistant.
package config

import "github.com/MrWong99/earshot/internal/mcp"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Memory    MemoryConfig    `yaml:"memory"`
	Music     MusicConfig     `yaml:"music"`
	Search    SearchConfig    `yaml:"search"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
	Effects   EffectsConfig   `yaml:"effects"`
}

// ServerConfig holds the metrics endpoint and logging settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds microphone, wake-word, and capture settings.
type AudioConfig struct {
	// SampleRate is the microphone sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSize is the number of samples read per frame.
	ChunkSize int `yaml:"chunk_size"`

	// ClipsDir is the directory command clips are written to.
	ClipsDir string `yaml:"clips_dir"`

	// ClipBaseName is the base file name for command clips. A timestamp is
	// appended per clip (e.g., "command_20260830-153000.wav").
	ClipBaseName string `yaml:"clip_base_name"`

	Wake    WakeConfig    `yaml:"wake"`
	Capture CaptureConfig `yaml:"capture"`
}

// WakeConfig holds wake-word detection settings.
type WakeConfig struct {
	// Sensitivity is the minimum classifier confidence that counts as a
	// detection, in [0, 1]. Higher values mean fewer false triggers.
	Sensitivity float64 `yaml:"sensitivity"`

	// CooldownFrames is the number of frames skipped after a detection
	// before the listener arms again.
	CooldownFrames int `yaml:"cooldown_frames"`

	// ClassifierURL is the endpoint of the wake-word scoring service.
	ClassifierURL string `yaml:"classifier_url"`

	// ClassifierSampleRate is the sample rate the classifier model was
	// trained for. A mismatch with audio.sample_rate is logged at startup.
	ClassifierSampleRate int `yaml:"classifier_sample_rate"`
}

// CaptureConfig holds silence-detection settings for command capture.
type CaptureConfig struct {
	// SilenceThreshold is the RMS amplitude below which a frame counts as
	// silent, on the int16 sample scale.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// InitialSilence is how many seconds of leading silence are allowed
	// before the capture gives up waiting for speech.
	InitialSilence float64 `yaml:"initial_silence"`

	// PostSpeechSilence is how many seconds of uninterrupted trailing
	// silence end the capture once speech has been heard.
	PostSpeechSilence float64 `yaml:"post_speech_silence"`

	// MaxDuration is the hard wall-clock cap on a capture, in seconds.
	MaxDuration float64 `yaml:"max_duration"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM         ProviderEntry `yaml:"llm"`
	Transcriber ProviderEntry `yaml:"transcriber"`
	Embeddings  ProviderEntry `yaml:"embeddings"`
	TTS         ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "whisper-native", "piper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// ResolverConfig holds LLM tool-resolution settings.
type ResolverConfig struct {
	// MaxAttempts is the total LLM call budget per transcript, including
	// the first attempt.
	MaxAttempts int `yaml:"max_attempts"`

	// Temperature is the sampling temperature for resolution calls. Kept
	// low so tool selection stays deterministic.
	Temperature float64 `yaml:"temperature"`

	// SalvageParsing enables recovery of tool calls embedded as text in
	// the model's content (some models emit "<function=...>" markup
	// instead of structured tool calls).
	SalvageParsing bool `yaml:"salvage_parsing"`
}

// MemoryConfig holds settings for the conversation memory layer.
type MemoryConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the pgvector
	// memory store. Empty disables long-term memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension of the embeddings
	// column. Must match the model configured in providers.embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// UserID scopes stored exchanges to one user.
	UserID string `yaml:"user_id"`

	// ContextExchanges is how many recent and similar exchanges are pulled
	// into the resolution prompt.
	ContextExchanges int `yaml:"context_exchanges"`
}

// MusicConfig holds the address of the music player service.
type MusicConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	// TavilyAPIKey authenticates against the Tavily search API. Empty
	// disables the web_search tool.
	TavilyAPIKey string `yaml:"tavily_api_key"`
}

// ToolsConfig holds settings for local tools.
type ToolsConfig struct {
	// TasksPath is the JSON file the todo store persists to.
	TasksPath string `yaml:"tasks_path"`

	// AllowSystemControl gates the system_control tool. Off by default
	// because it can shut the machine down.
	AllowSystemControl bool `yaml:"allow_system_control"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server.
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is
	// "streamable-http". Ignored for stdio transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the
	// subprocess when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// EffectsConfig holds sound-cue settings.
type EffectsConfig struct {
	// Enabled toggles audible cues (wake chime, capture end).
	Enabled bool `yaml:"enabled"`

	// SoundsDir is the directory the cue files live in.
	SoundsDir string `yaml:"sounds_dir"`
}
