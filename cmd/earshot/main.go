// Command earshot is the local voice assistant daemon: it listens for the
// wake word on the default microphone, captures and transcribes the spoken
// command, resolves it to a tool call via an LLM, and executes it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/internal/app"
	"github.com/MrWong99/earshot/internal/capture"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/dispatch"
	"github.com/MrWong99/earshot/internal/effects"
	"github.com/MrWong99/earshot/internal/health"
	"github.com/MrWong99/earshot/internal/mcp"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/resolve"
	"github.com/MrWong99/earshot/internal/tools/music"
	"github.com/MrWong99/earshot/internal/tools/screen"
	"github.com/MrWong99/earshot/internal/tools/system"
	"github.com/MrWong99/earshot/internal/tools/tasks"
	"github.com/MrWong99/earshot/internal/tools/volume"
	"github.com/MrWong99/earshot/internal/tools/websearch"
	"github.com/MrWong99/earshot/internal/wake"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/memory"
	pgmemory "github.com/MrWong99/earshot/pkg/memory/postgres"
	"github.com/MrWong99/earshot/pkg/provider/embeddings"
	oaembed "github.com/MrWong99/earshot/pkg/provider/embeddings/openai"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/earshot/pkg/provider/llm/openai"
	"github.com/MrWong99/earshot/pkg/provider/transcribe"
	oatranscribe "github.com/MrWong99/earshot/pkg/provider/transcribe/openai"
	"github.com/MrWong99/earshot/pkg/provider/transcribe/whisper"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/provider/tts/piper"
)

// resolverSystemPrompt frames every tool resolution request.
const resolverSystemPrompt = `You are a voice assistant running on the user's computer.
Map the user's spoken request to exactly one of the available tools.
Prefer speak_response for questions you can answer directly.
Use unknown_request when no tool fits. Never invent tool names.`

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshot: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("earshot starting", "config", *configPath, "log_level", cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "earshot"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create LLM provider", "err", err)
		return 1
	}
	transcriber, err := reg.CreateTranscriber(cfg.Providers.Transcriber)
	if err != nil {
		slog.Error("failed to create transcriber", "err", err)
		return 1
	}

	var speaker tts.Speaker
	if cfg.Providers.TTS.Name != "" {
		speaker, err = reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			slog.Error("failed to create TTS speaker", "err", err)
			return 1
		}
	} else {
		slog.Warn("no TTS provider configured; spoken feedback disabled")
		speaker = silentSpeaker{}
	}

	var embedder embeddings.Provider
	if cfg.Providers.Embeddings.Name != "" {
		embedder, err = reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			slog.Error("failed to create embeddings provider", "err", err)
			return 1
		}
	}

	// ── Conversation memory (optional) ────────────────────────────────────────
	var store *pgmemory.Store
	if cfg.Memory.PostgresDSN != "" {
		dims := cfg.Memory.EmbeddingDimensions
		if dims <= 0 && embedder != nil {
			dims = embedder.Dimensions()
		}
		if dims <= 0 {
			// Matches the loader's "defaulting to 1536" warning.
			dims = 1536
		}
		store, err = pgmemory.NewStore(ctx, cfg.Memory.PostgresDSN, dims)
		if err != nil {
			slog.Error("failed to connect conversation memory", "err", err)
			return 1
		}
		defer store.Close()
	}

	// ── MCP servers (optional) ────────────────────────────────────────────────
	host := mcp.New()
	defer host.Close()
	for _, srv := range cfg.MCP.Servers {
		if err := host.RegisterServer(ctx, mcp.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}); err != nil {
			slog.Error("failed to register MCP server", "server", srv.Name, "err", err)
			return 1
		}
	}

	// ── Tools ─────────────────────────────────────────────────────────────────
	dispatcher, musicFeed := buildDispatcher(cfg, host, store)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	classifier, err := wake.NewHTTPClassifier(cfg.Audio.Wake.ClassifierURL,
		wake.WithSampleRate(cfg.Audio.Wake.ClassifierSampleRate))
	if err != nil {
		slog.Error("failed to create wake classifier", "err", err)
		return 1
	}
	listener := wake.NewListener(classifier, cfg.Audio.Wake.Sensitivity, cfg.Audio.Wake.CooldownFrames,
		wake.WithSampleRates(cfg.Audio.SampleRate, cfg.Audio.Wake.ClassifierSampleRate))

	recorder := capture.New(capture.Config{
		SampleRate:        cfg.Audio.SampleRate,
		ChunkSize:         cfg.Audio.ChunkSize,
		SilenceThreshold:  cfg.Audio.Capture.SilenceThreshold,
		InitialSilence:    cfg.Audio.Capture.InitialSilence,
		PostSpeechSilence: cfg.Audio.Capture.PostSpeechSilence,
		MaxDuration:       time.Duration(cfg.Audio.Capture.MaxDuration * float64(time.Second)),
		ClipsDir:          cfg.Audio.ClipsDir,
		ClipBaseName:      cfg.Audio.ClipBaseName,
	})

	toolDefs := append(dispatch.Definitions(), host.Tools()...)
	resolver := resolve.New(llmProvider, toolDefs, resolve.Config{
		MaxAttempts:    cfg.Resolver.MaxAttempts,
		Temperature:    cfg.Resolver.Temperature,
		SalvageParsing: cfg.Resolver.SalvageParsing,
		SystemPrompt:   resolverSystemPrompt,
	})

	cues := effects.NewPlayer(cfg.Effects.SoundsDir, cfg.Effects.Enabled)

	assistant, err := app.New(app.Config{
		SourceFactory: func() (audio.FrameSource, error) {
			return audio.OpenMic(audio.MicConfig{
				SampleRate: cfg.Audio.SampleRate,
				ChunkSize:  cfg.Audio.ChunkSize,
			})
		},
		Listener:         listener,
		Recorder:         recorder,
		Transcriber:      transcriber,
		Resolver:         resolver,
		Dispatcher:       dispatcher,
		Speaker:          speaker,
		Cues:             cues,
		Memory:           storeOrNil(store),
		Embedder:         embedder,
		UserID:           cfg.Memory.UserID,
		ContextExchanges: cfg.Memory.ContextExchanges,
	})
	if err != nil {
		slog.Error("failed to assemble pipeline", "err", err)
		return 1
	}
	dispatcher.SessionID = assistant.SessionID()

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return assistant.Run(gctx) })

	if cfg.Server.MetricsAddr != "" {
		checks := []health.Check{{Name: "classifier", Probe: classifier.Healthy}}
		if store != nil {
			checks = append(checks, health.Check{Name: "memory", Probe: store.Ping})
		}
		g.Go(func() error { return serveMetrics(gctx, cfg.Server.MetricsAddr, health.New(checks...)) })
	}
	if musicFeed != nil {
		g.Go(func() error {
			err := musicFeed.Listen(gctx, func(ev music.Event) {
				slog.Debug("music event", "type", ev.Type)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	slog.Info("earshot ready", "session_id", assistant.SessionID())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildDispatcher wires every configured tool backend into a Dispatcher.
// The music event feed is returned separately so the caller can supervise it.
func buildDispatcher(cfg *config.Config, host *mcp.Host, store *pgmemory.Store) (*dispatch.Dispatcher, *music.EventFeed) {
	d := &dispatch.Dispatcher{MCP: host}

	var feed *music.EventFeed
	if cfg.Music.Host != "" {
		d.Music = music.NewClient(cfg.Music.Host, cfg.Music.Port)
		feed = music.NewEventFeed(cfg.Music.Host, cfg.Music.Port)
	}

	d.Volume = volume.NewManager(&volume.AmixerMixer{})
	d.System = system.NewController(cfg.Tools.AllowSystemControl)

	if cfg.Tools.TasksPath != "" {
		ts, err := tasks.NewStore(cfg.Tools.TasksPath)
		if err != nil {
			slog.Warn("task list unavailable", "err", err)
		} else {
			d.Tasks = ts
		}
	}

	if key := firstNonEmpty(cfg.Search.TavilyAPIKey, os.Getenv("TAVILY_API_KEY")); key != "" {
		search, err := websearch.New(key)
		if err != nil {
			slog.Warn("web search unavailable", "err", err)
		} else {
			d.Search = search
		}
	}

	// Screen analysis rides on the LLM provider's credentials when that
	// provider is OpenAI-compatible and vision-capable.
	if cfg.Providers.LLM.Name == "openai" && cfg.Providers.LLM.APIKey != "" {
		analyzer, err := screen.New(cfg.Providers.LLM.APIKey, cfg.Providers.LLM.Model)
		if err != nil {
			slog.Warn("screen analysis unavailable", "err", err)
		} else {
			d.Screen = analyzer
		}
	}

	if store != nil {
		d.Memory = store
	}
	return d, feed
}

// registerBuiltinProviders wires the provider factories that ship with
// earshot into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// OpenAI goes through the official SDK directly; it is also the vision
	// backend, so it keeps the native client.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining remote LLM backends go through any-llm; ollama differs
	// only in using BaseURL instead of an API key.
	for _, name := range []string{"anthropic", "gemini", "groq", "ollama"} {
		providerName := name
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []oatranscribe.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatranscribe.WithBaseURL(entry.BaseURL))
		}
		return oatranscribe.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []whisper.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Speaker, error) {
		var opts []piper.Option
		if bin := entry.StringOption("binary", ""); bin != "" {
			opts = append(opts, piper.WithBinary(bin))
		}
		return piper.New(entry.Model, opts...)
	})
}

// serveMetrics exposes the Prometheus endpoint and the health probes until
// ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, probes *health.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	probes.Register(mux)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("metrics endpoint listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// silentSpeaker discards speech when no TTS backend is configured.
type silentSpeaker struct{}

func (silentSpeaker) Speak(context.Context, string) error { return nil }

// storeOrNil converts a possibly-nil concrete store into the interface
// without producing a non-nil interface around a nil pointer.
func storeOrNil(s *pgmemory.Store) memory.Store {
	if s == nil {
		return nil
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
