// Package app wires the voice pipeline together and runs its main loop:
// wait for the wake word, capture the command, transcribe it, resolve it to
// a tool call, dispatch, speak the result, remember the exchange.
//
// The pipeline is strictly sequential. Nothing below this package raises an
// error across a stage boundary; every stage failure ends the current
// iteration and the loop goes back to listening. From the user's side a
// failure is silence or a short spoken apology, never a crash.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/earshot/internal/capture"
	"github.com/MrWong99/earshot/internal/dispatch"
	"github.com/MrWong99/earshot/internal/effects"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/resolve"
	"github.com/MrWong99/earshot/internal/wake"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/memory"
	"github.com/MrWong99/earshot/pkg/provider/embeddings"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/transcribe"
	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// apology is spoken when a command failed and the tool produced no feedback
// of its own.
const apology = "Sorry, that didn't work."

// deviceRetryDelay spaces out reopen attempts after an input device failure.
const deviceRetryDelay = time.Second

// wakeAwaiter blocks until a wake word fires.
type wakeAwaiter interface {
	Await(ctx context.Context, src audio.FrameSource) (*wake.Event, error)
}

// commandRecorder captures one spoken command.
type commandRecorder interface {
	Record(ctx context.Context, src audio.FrameSource) capture.Outcome
}

// toolResolver maps a transcript to at most one tool call.
type toolResolver interface {
	Resolve(ctx context.Context, transcript string, history []llm.Message) resolve.Resolution
}

// toolDispatcher executes a resolved tool call.
type toolDispatcher interface {
	Dispatch(ctx context.Context, call llm.ToolCall) dispatch.ToolResult
}

// App is the assembled voice assistant.
type App struct {
	sourceFactory audio.SourceFactory
	listener      wakeAwaiter
	recorder      commandRecorder
	transcriber   transcribe.Transcriber
	resolver      toolResolver
	dispatcher    toolDispatcher
	speaker       tts.Speaker
	overrides     *dispatch.Overrides
	cues          *effects.Player

	// memory and embedder are optional; with either nil the assistant
	// runs stateless.
	memory   memory.Store
	embedder embeddings.Provider

	userID           string
	sessionID        string
	contextExchanges int

	metrics *observe.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Config carries the collaborators for New. SourceFactory, Listener,
// Recorder, Transcriber, Resolver, Dispatcher and Speaker are required.
type Config struct {
	SourceFactory audio.SourceFactory
	Listener      wakeAwaiter
	Recorder      commandRecorder
	Transcriber   transcribe.Transcriber
	Resolver      toolResolver
	Dispatcher    toolDispatcher
	Speaker       tts.Speaker

	// Overrides defaults to dispatch.DefaultOverrides.
	Overrides *dispatch.Overrides

	// Cues may be nil to disable sound effects.
	Cues *effects.Player

	Memory   memory.Store
	Embedder embeddings.Provider

	UserID           string
	SessionID        string
	ContextExchanges int

	Metrics *observe.Metrics
}

// New assembles an App.
func New(cfg Config) (*App, error) {
	switch {
	case cfg.SourceFactory == nil:
		return nil, errors.New("app: SourceFactory is required")
	case cfg.Listener == nil:
		return nil, errors.New("app: Listener is required")
	case cfg.Recorder == nil:
		return nil, errors.New("app: Recorder is required")
	case cfg.Transcriber == nil:
		return nil, errors.New("app: Transcriber is required")
	case cfg.Resolver == nil:
		return nil, errors.New("app: Resolver is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("app: Dispatcher is required")
	case cfg.Speaker == nil:
		return nil, errors.New("app: Speaker is required")
	}

	a := &App{
		sourceFactory:    cfg.SourceFactory,
		listener:         cfg.Listener,
		recorder:         cfg.Recorder,
		transcriber:      cfg.Transcriber,
		resolver:         cfg.Resolver,
		dispatcher:       cfg.Dispatcher,
		speaker:          cfg.Speaker,
		overrides:        cfg.Overrides,
		cues:             cfg.Cues,
		memory:           cfg.Memory,
		embedder:         cfg.Embedder,
		userID:           cfg.UserID,
		sessionID:        cfg.SessionID,
		contextExchanges: cfg.ContextExchanges,
		metrics:          cfg.Metrics,
		sleep:            sleepCtx,
	}
	if a.overrides == nil {
		a.overrides = dispatch.DefaultOverrides()
	}
	if a.sessionID == "" {
		a.sessionID = uuid.NewString()
	}
	if a.contextExchanges <= 0 {
		a.contextExchanges = 5
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a, nil
}

// SessionID returns the conversation session identifier for this run.
func (a *App) SessionID() string { return a.sessionID }

// Run executes the pipeline loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	log := observe.Logger(ctx)
	log.Info("voice pipeline started", "session_id", a.sessionID)

	for {
		if err := ctx.Err(); err != nil {
			log.Info("voice pipeline stopped")
			return nil
		}
		if err := a.iteration(ctx); err != nil {
			// Stage failures are fatal to the iteration only. Pace
			// the retry so a dead input device cannot spin the loop.
			log.Error("pipeline iteration failed", "error", err)
			if err := a.sleep(ctx, deviceRetryDelay); err != nil {
				return nil
			}
		}
	}
}

// iteration runs one wake-to-response cycle.
func (a *App) iteration(ctx context.Context) error {
	log := observe.Logger(ctx)

	src, err := a.sourceFactory()
	if err != nil {
		return err
	}
	defer src.Close()

	event, err := a.listener.Await(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info("wake word detected", "model", event.Model, "score", event.Score)
	a.cues.Play(effects.CueWake)

	outcome := a.recorder.Record(ctx, src)
	switch out := outcome.(type) {
	case capture.NoSpeech:
		log.Info("no speech after wake word")
		return nil
	case capture.DeviceError:
		return out.Err
	case capture.Clip:
		return a.handleClip(ctx, out)
	default:
		return nil
	}
}

// handleClip takes a captured command clip through transcription,
// resolution, dispatch, speech and memory.
func (a *App) handleClip(ctx context.Context, clip capture.Clip) error {
	log := observe.Logger(ctx)

	start := time.Now()
	transcript, err := a.transcriber.Transcribe(ctx, clip.Path)
	if err != nil {
		a.cues.Play(effects.CueError)
		return err
	}
	a.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	log.Info("command transcribed", "transcript", transcript, "clip", clip.Path)

	// A clip that transcribes to nothing ends the cycle here; no remote
	// call is worth making for it.
	if strings.TrimSpace(transcript) == "" {
		return nil
	}

	call, ok := a.resolveCall(ctx, transcript)
	if !ok {
		return nil
	}

	result := a.dispatcher.Dispatch(ctx, call)
	log.Info("tool dispatched",
		"tool", call.Name,
		"success", result.Success,
		"error", result.Error,
	)

	feedback := result.Feedback
	if !result.Success {
		a.cues.Play(effects.CueError)
		if feedback == "" {
			feedback = apology
		}
	}
	if feedback != "" {
		a.speak(ctx, feedback)
	} else if result.Success {
		// A silent success still gets an audible acknowledgement.
		a.cues.Play(effects.CueDone)
	}

	a.remember(ctx, transcript, call.Name, feedback)
	return nil
}

// resolveCall picks the tool call for a transcript: phrase overrides first,
// LLM resolution second. ok is false when nothing should be dispatched.
func (a *App) resolveCall(ctx context.Context, transcript string) (llm.ToolCall, bool) {
	log := observe.Logger(ctx)

	if call, ok := a.overrides.Match(transcript); ok {
		log.Info("phrase override matched", "tool", call.Name)
		return call, true
	}

	res := a.resolver.Resolve(ctx, transcript, a.conversationContext(ctx, transcript))
	switch r := res.(type) {
	case resolve.Call:
		return r.Tool, true
	case resolve.Fallback:
		log.Warn("resolver substituted fallback response")
		return r.Tool, true
	case resolve.None:
		log.Info("nothing to dispatch", "reason", r.Reason)
		return llm.ToolCall{}, false
	default:
		return llm.ToolCall{}, false
	}
}

// conversationContext builds the message history handed to the resolver:
// similar exchanges from past sessions first, then the current session's
// recent exchanges in chronological order. Memory failures degrade to an
// empty context.
func (a *App) conversationContext(ctx context.Context, transcript string) []llm.Message {
	if a.memory == nil {
		return nil
	}
	log := observe.Logger(ctx)
	var msgs []llm.Message

	if a.embedder != nil {
		if vec, err := a.embedder.Embed(ctx, transcript); err != nil {
			log.Warn("embedding for similarity search failed", "error", err)
		} else if similar, err := a.memory.SearchSimilar(ctx, a.userID, vec, 3); err != nil {
			log.Warn("similarity search failed", "error", err)
		} else if len(similar) > 0 {
			note := "Possibly relevant past requests:"
			for _, s := range similar {
				note += "\n- " + s.Exchange.Transcript
				if s.Exchange.Response != "" {
					note += " -> " + s.Exchange.Response
				}
			}
			msgs = append(msgs, llm.Message{Role: "system", Content: note})
		}
	}

	recent, err := a.memory.Recent(ctx, a.sessionID, a.contextExchanges)
	if err != nil {
		log.Warn("loading recent exchanges failed", "error", err)
		return msgs
	}
	// Recent returns newest first; the prompt wants oldest first.
	for i := len(recent) - 1; i >= 0; i-- {
		msgs = append(msgs, llm.Message{Role: "user", Content: recent[i].Transcript})
		if recent[i].Response != "" {
			msgs = append(msgs, llm.Message{Role: "assistant", Content: recent[i].Response})
		}
	}
	return msgs
}

// speak voices the feedback and records its duration. Speech failures are
// logged only; the action itself already happened.
func (a *App) speak(ctx context.Context, text string) {
	start := time.Now()
	if err := a.speaker.Speak(ctx, text); err != nil {
		observe.Logger(ctx).Error("speaking feedback failed", "error", err)
		return
	}
	a.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
}

// remember persists the completed exchange. Best effort: memory being down
// must not surface to the user.
func (a *App) remember(ctx context.Context, transcript, toolName, response string) {
	if a.memory == nil {
		return
	}
	log := observe.Logger(ctx)

	var embedding []float32
	if a.embedder != nil {
		vec, err := a.embedder.Embed(ctx, transcript)
		if err != nil {
			log.Warn("embedding exchange failed", "error", err)
		} else {
			embedding = vec
		}
	}

	ex := memory.Exchange{
		ID:         uuid.NewString(),
		UserID:     a.userID,
		SessionID:  a.sessionID,
		Transcript: transcript,
		Response:   response,
		ToolName:   toolName,
		Embedding:  embedding,
		Timestamp:  time.Now(),
	}
	if err := a.memory.AddExchange(ctx, ex); err != nil {
		log.Warn("persisting exchange failed", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
