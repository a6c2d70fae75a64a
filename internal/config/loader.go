package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/earshot/internal/mcp"
)

// Defaults applied by [LoadFromReader] when the corresponding field is unset.
const (
	DefaultSampleRate        = 16000
	DefaultChunkSize         = 1024
	DefaultSilenceThreshold  = 500
	DefaultInitialSilence    = 5.0
	DefaultPostSpeechSilence = 2.0
	DefaultMaxDuration       = 30.0
	DefaultCooldownFrames    = 30
	DefaultSensitivity       = 0.5
	DefaultMaxAttempts       = 3
	DefaultTemperature       = 0.1
	DefaultContextExchanges  = 5
	DefaultClipBaseName      = "command"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":         {"openai", "anthropic", "ollama", "gemini", "groq"},
	"transcriber": {"openai", "whisper-native"},
	"embeddings":  {"openai"},
	"tts":         {"piper"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in unset fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.ChunkSize == 0 {
		cfg.Audio.ChunkSize = DefaultChunkSize
	}
	if cfg.Audio.ClipBaseName == "" {
		cfg.Audio.ClipBaseName = DefaultClipBaseName
	}
	if cfg.Audio.Wake.Sensitivity == 0 {
		cfg.Audio.Wake.Sensitivity = DefaultSensitivity
	}
	if cfg.Audio.Wake.CooldownFrames == 0 {
		cfg.Audio.Wake.CooldownFrames = DefaultCooldownFrames
	}
	if cfg.Audio.Capture.SilenceThreshold == 0 {
		cfg.Audio.Capture.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.Audio.Capture.InitialSilence == 0 {
		cfg.Audio.Capture.InitialSilence = DefaultInitialSilence
	}
	if cfg.Audio.Capture.PostSpeechSilence == 0 {
		cfg.Audio.Capture.PostSpeechSilence = DefaultPostSpeechSilence
	}
	if cfg.Audio.Capture.MaxDuration == 0 {
		cfg.Audio.Capture.MaxDuration = DefaultMaxDuration
	}
	if cfg.Resolver.MaxAttempts == 0 {
		cfg.Resolver.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Resolver.Temperature == 0 {
		cfg.Resolver.Temperature = DefaultTemperature
	}
	if cfg.Memory.ContextExchanges == 0 {
		cfg.Memory.ContextExchanges = DefaultContextExchanges
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must be positive", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.Wake.Sensitivity < 0 || cfg.Audio.Wake.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("audio.wake.sensitivity %.2f is out of range [0, 1]", cfg.Audio.Wake.Sensitivity))
	}
	if cfg.Audio.Wake.CooldownFrames < 0 {
		errs = append(errs, fmt.Errorf("audio.wake.cooldown_frames %d must not be negative", cfg.Audio.Wake.CooldownFrames))
	}
	if cfg.Audio.Capture.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("audio.capture.silence_threshold %.1f must not be negative", cfg.Audio.Capture.SilenceThreshold))
	}
	if cfg.Audio.Capture.InitialSilence <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture.initial_silence %.1f must be positive", cfg.Audio.Capture.InitialSilence))
	}
	if cfg.Audio.Capture.PostSpeechSilence <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture.post_speech_silence %.1f must be positive", cfg.Audio.Capture.PostSpeechSilence))
	}
	if cfg.Audio.Capture.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture.max_duration %.1f must be positive", cfg.Audio.Capture.MaxDuration))
	}
	// A classifier/microphone sample-rate mismatch is reported by the wake
	// listener at construction, not here.

	// Unknown provider names warn rather than fail; a new provider may be
	// registered by a build this loader knows nothing about.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required; voice commands cannot be resolved without an LLM"))
	}
	if cfg.Providers.Transcriber.Name == "" {
		errs = append(errs, errors.New("providers.transcriber is required"))
	}

	// Resolver
	if cfg.Resolver.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("resolver.max_attempts %d must be at least 1", cfg.Resolver.MaxAttempts))
	}
	if cfg.Resolver.Temperature < 0 || cfg.Resolver.Temperature > 2 {
		errs = append(errs, fmt.Errorf("resolver.temperature %.2f is out of range [0, 2]", cfg.Resolver.Temperature))
	}

	// Memory
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; conversation memory will not be available")
	}
	if cfg.Memory.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("memory.postgres_dsn is set but providers.embeddings is not configured"))
	}
	if cfg.Memory.PostgresDSN != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("memory.embedding_dimensions is not set; defaulting to 1536")
	}

	if cfg.Search.TavilyAPIKey == "" {
		slog.Warn("search.tavily_api_key is empty; the web_search tool will be unavailable")
	}

	// MCP servers
	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
