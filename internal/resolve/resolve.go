// Package resolve turns a transcribed voice command into at most one tool
// call via an LLM provider.
//
// Resolution runs at low temperature with a bounded retry budget. Transient
// provider failures back off exponentially with multiplicative jitter;
// rate-limit failures use a shorter, near-fixed delay and trip a canned
// "system busy" fallback once they repeat, so the user hears something
// instead of waiting out the full retry budget.
package resolve

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/provider/llm"
)

// Resolution is the discriminated result of one resolver run. It is exactly
// one of [Call], [None], or [Fallback].
type Resolution interface{ resolution() }

// Call is a tool invocation chosen by the model.
type Call struct {
	Tool llm.ToolCall
}

// None means no tool should be dispatched: the transcript was empty, the
// model produced no tool call, or the retry budget ran out.
type None struct {
	// Reason is a short machine-readable cause ("empty_transcript",
	// "no_tool_call", "attempts_exhausted").
	Reason string
}

// Fallback is a synthesized spoken response substituted for a real
// resolution, currently only used when the provider is rate limited.
type Fallback struct {
	Tool llm.ToolCall
}

func (Call) resolution()     {}
func (None) resolution()     {}
func (Fallback) resolution() {}

// Retry timing. Generic failures grow exponentially from backoffBase up to
// backoffCap with up to backoffJitter multiplicative jitter; rate-limit
// failures wait a near-fixed rateLimitDelay since hammering a throttled
// endpoint with exponential probes just burns the budget.
const (
	backoffBase     = 500 * time.Millisecond
	backoffCap      = 8 * time.Second
	backoffJitter   = 0.5
	rateLimitDelay  = 1 * time.Second
	rateLimitJitter = 0.1

	// rateLimitFallbackAfter is how many consecutive rate-limit failures
	// trigger the canned busy response instead of further retries.
	rateLimitFallbackAfter = 2
)

// busyResponse is spoken via the fallback when the provider is throttled.
const busyResponse = "I'm a bit overloaded right now. Give me a moment and try again."

// rateLimitMarkers are matched case-insensitively against provider error
// text. Providers surface throttling in wildly different shapes, so this is
// heuristic by necessity.
var rateLimitMarkers = []string{"rate limit", "429", "too many requests"}

// salvagePattern matches a tool invocation embedded in raw model output that
// some backends echo inside their error text when structured tool parsing
// fails on their side.
var salvagePattern = regexp.MustCompile(`<function=([a-zA-Z0-9_]+)>(\{.*?\})</function>`)

// Config tunes the resolver.
type Config struct {
	// MaxAttempts is the total completion attempt budget per transcript.
	MaxAttempts int

	// Temperature is sent with every completion. Keep it low; tool
	// selection should be deterministic for identical transcripts.
	Temperature float64

	// SalvageParsing enables recovering a tool call from the raw error
	// text of the final failed attempt.
	SalvageParsing bool

	// SystemPrompt is prepended to every resolution request.
	SystemPrompt string
}

// Resolver resolves transcripts into tool calls. It is stateless between
// Resolve calls.
type Resolver struct {
	provider llm.Provider
	tools    []llm.ToolDefinition
	cfg      Config
	metrics  *observe.Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// Option is a functional option for Resolver.
type Option func(*Resolver)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// withTiming overrides the sleep and jitter functions, for tests.
func withTiming(sleep func(context.Context, time.Duration) error, jitter func() float64) Option {
	return func(r *Resolver) {
		r.sleep = sleep
		r.jitter = jitter
	}
}

// New creates a Resolver offering tools to the model on every request.
func New(provider llm.Provider, tools []llm.ToolDefinition, cfg Config, opts ...Option) *Resolver {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	r := &Resolver{
		provider: provider,
		tools:    tools,
		cfg:      cfg,
		sleep:    sleepCtx,
		jitter:   rand.Float64,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Resolve maps transcript to at most one tool call. history carries prior
// conversation context and may be nil. The returned value is exactly one of
// [Call], [None], or [Fallback].
//
// An empty transcript short-circuits to [None] without contacting the
// provider at all.
func (r *Resolver) Resolve(ctx context.Context, transcript string, history []llm.Message) Resolution {
	log := observe.Logger(ctx)
	start := time.Now()
	defer func() {
		r.metrics.ResolveDuration.Record(ctx, time.Since(start).Seconds())
	}()

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return None{Reason: "empty_transcript"}
	}

	req := llm.CompletionRequest{
		Messages:     append(append([]llm.Message{}, history...), llm.Message{Role: "user", Content: transcript}),
		Tools:        r.tools,
		Temperature:  r.cfg.Temperature,
		SystemPrompt: r.cfg.SystemPrompt,
	}

	var (
		lastErr              error
		consecutiveRateLimit int
	)

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		resp, err := r.provider.Complete(ctx, req)
		if err == nil {
			r.metrics.RecordResolveAttempt(ctx, "success")
			return r.fromResponse(ctx, resp)
		}
		lastErr = err

		rateLimited := isRateLimited(err)
		if rateLimited {
			consecutiveRateLimit++
		} else {
			consecutiveRateLimit = 0
		}
		r.metrics.RecordResolveAttempt(ctx, failureKind(rateLimited))
		log.Warn("tool resolution attempt failed",
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"rate_limited", rateLimited,
			"error", err,
		)

		// A throttled backend will not recover within this command's
		// lifetime; answer with the canned busy line instead of
		// burning the remaining attempts.
		if consecutiveRateLimit >= rateLimitFallbackAfter {
			r.metrics.ResolverFallbacks.Add(ctx, 1,
				metric.WithAttributes(observe.Attr("reason", "rate_limited")))
			return Fallback{Tool: busyToolCall()}
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}
		if err := r.sleep(ctx, r.delay(attempt, rateLimited)); err != nil {
			return None{Reason: "attempts_exhausted"}
		}
	}

	if r.cfg.SalvageParsing && lastErr != nil && !isRateLimited(lastErr) {
		if call, ok := salvageToolCall(lastErr.Error()); ok {
			log.Info("salvaged tool call from provider error text", "tool", call.Name)
			return Call{Tool: call}
		}
	}
	return None{Reason: "attempts_exhausted"}
}

// Complete runs a plain free-text completion with no tools and no retry
// machinery. It shares nothing with Resolve beyond the provider.
func (r *Resolver) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("resolve: completion: %w", err)
	}
	return resp.Content, nil
}

// fromResponse reduces a successful completion to a Resolution, enforcing
// the at-most-one tool call contract.
func (r *Resolver) fromResponse(ctx context.Context, resp *llm.CompletionResponse) Resolution {
	if resp == nil || len(resp.ToolCalls) == 0 {
		return None{Reason: "no_tool_call"}
	}
	if extra := len(resp.ToolCalls) - 1; extra > 0 {
		observe.Logger(ctx).Warn("model requested multiple tool calls; keeping the first",
			"discarded", extra)
	}
	return Call{Tool: resp.ToolCalls[0]}
}

// delay computes how long to wait before the next attempt.
func (r *Resolver) delay(attempt int, rateLimited bool) time.Duration {
	if rateLimited {
		return jittered(rateLimitDelay, rateLimitJitter, r.jitter())
	}
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return jittered(d, backoffJitter, r.jitter())
}

// jittered scales d by a random factor in [1, 1+spread].
func jittered(d time.Duration, spread, random float64) time.Duration {
	return time.Duration(float64(d) * (1 + spread*random))
}

// isRateLimited classifies a provider error as throttling by matching its
// text against known markers.
func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func failureKind(rateLimited bool) string {
	if rateLimited {
		return "rate_limited"
	}
	return "error"
}

// salvageToolCall extracts a <function=NAME>{json}</function> fragment from
// raw provider error text. The JSON payload must parse; a mangled payload is
// not worth dispatching.
func salvageToolCall(text string) (llm.ToolCall, bool) {
	m := salvagePattern.FindStringSubmatch(text)
	if m == nil {
		return llm.ToolCall{}, false
	}
	if !gjson.Valid(m[2]) {
		return llm.ToolCall{}, false
	}
	return llm.ToolCall{Name: m[1], Arguments: m[2]}, true
}

func busyToolCall() llm.ToolCall {
	return llm.ToolCall{
		Name:      "speak_response",
		Arguments: fmt.Sprintf(`{"text": %q}`, busyResponse),
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
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
