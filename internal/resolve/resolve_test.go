package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/earshot/pkg/provider/llm"
	llmmock "github.com/MrWong99/earshot/pkg/provider/llm/mock"
)

func newResolver(p llm.Provider, cfg Config, sleeps *[]time.Duration) *Resolver {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	sleep := func(_ context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	}
	return New(p, nil, cfg, withTiming(sleep, func() float64 { return 0 }))
}

func toolResponse(name, args string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{ID: "call-1", Name: name, Arguments: args}},
	}
}

func TestResolve_EmptyTranscriptSkipsProvider(t *testing.T) {
	p := &llmmock.Provider{CompleteResponse: toolResponse("play_music", "{}")}
	r := newResolver(p, Config{}, nil)

	for _, transcript := range []string{"", "   ", "\n\t"} {
		res := r.Resolve(context.Background(), transcript, nil)
		none, ok := res.(None)
		if !ok {
			t.Fatalf("transcript %q: resolution = %T, want None", transcript, res)
		}
		if none.Reason != "empty_transcript" {
			t.Errorf("reason = %q, want empty_transcript", none.Reason)
		}
	}
	if p.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", p.Calls())
	}
}

func TestResolve_PassesTranscriptAndTemperature(t *testing.T) {
	p := &llmmock.Provider{CompleteResponse: toolResponse("speak_response", `{"text":"hi"}`)}
	tools := []llm.ToolDefinition{{Name: "speak_response"}}
	r := New(p, tools, Config{MaxAttempts: 3, Temperature: 0.1}, withTiming(
		func(context.Context, time.Duration) error { return nil },
		func() float64 { return 0 },
	))

	history := []llm.Message{{Role: "user", Content: "earlier"}}
	res := r.Resolve(context.Background(), "say hi", history)
	if _, ok := res.(Call); !ok {
		t.Fatalf("resolution = %T, want Call", res)
	}

	req := p.CompleteCalls[0].Req
	if req.Temperature != 0.1 {
		t.Errorf("temperature = %v, want 0.1", req.Temperature)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "speak_response" {
		t.Errorf("tools = %v, want the configured definitions", req.Tools)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" || last.Content != "say hi" {
		t.Errorf("last message = %+v, want the transcript as user message", last)
	}
	if req.Messages[0].Content != "earlier" {
		t.Errorf("history not preserved: %+v", req.Messages)
	}
}

func TestResolve_RetriesThenSucceeds(t *testing.T) {
	p := &llmmock.Provider{Script: []llmmock.Step{
		{Err: errors.New("upstream timeout")},
		{Response: toolResponse("play_music", `{"query":"jazz"}`)},
	}}
	var sleeps []time.Duration
	r := newResolver(p, Config{}, &sleeps)

	res := r.Resolve(context.Background(), "play some jazz", nil)
	call, ok := res.(Call)
	if !ok {
		t.Fatalf("resolution = %T, want Call", res)
	}
	if call.Tool.Name != "play_music" {
		t.Errorf("tool = %q, want play_music", call.Tool.Name)
	}
	if p.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", p.Calls())
	}
	// With zero jitter the first generic backoff is exactly the base.
	if len(sleeps) != 1 || sleeps[0] != backoffBase {
		t.Errorf("sleeps = %v, want [%v]", sleeps, backoffBase)
	}
}

func TestResolve_BackoffGrowsForGenericFailures(t *testing.T) {
	p := &llmmock.Provider{Script: []llmmock.Step{
		{Err: errors.New("boom")},
	}}
	var sleeps []time.Duration
	r := newResolver(p, Config{MaxAttempts: 4}, &sleeps)

	if res := r.Resolve(context.Background(), "do a thing", nil); res != (None{Reason: "attempts_exhausted"}) {
		t.Fatalf("resolution = %v, want attempts_exhausted", res)
	}
	want := []time.Duration{backoffBase, 2 * backoffBase, 4 * backoffBase}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestResolve_ConsecutiveRateLimitsTripFallback(t *testing.T) {
	p := &llmmock.Provider{Script: []llmmock.Step{
		{Err: errors.New("HTTP 429 Too Many Requests")},
		{Err: errors.New("rate limit exceeded, retry later")},
		{Response: toolResponse("play_music", "{}")},
	}}
	var sleeps []time.Duration
	r := newResolver(p, Config{}, &sleeps)

	res := r.Resolve(context.Background(), "play music", nil)
	fb, ok := res.(Fallback)
	if !ok {
		t.Fatalf("resolution = %T, want Fallback", res)
	}
	if fb.Tool.Name != "speak_response" {
		t.Errorf("fallback tool = %q, want speak_response", fb.Tool.Name)
	}
	// The fallback fires after the second consecutive throttle, before
	// the third attempt that would have succeeded.
	if p.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", p.Calls())
	}
	if len(sleeps) != 1 || sleeps[0] != rateLimitDelay {
		t.Errorf("sleeps = %v, want [%v]", sleeps, rateLimitDelay)
	}
}

func TestResolve_NonConsecutiveRateLimitsDoNotTripFallback(t *testing.T) {
	p := &llmmock.Provider{Script: []llmmock.Step{
		{Err: errors.New("429")},
		{Err: errors.New("connection reset")},
		{Err: errors.New("too many requests")},
	}}
	r := newResolver(p, Config{MaxAttempts: 3}, nil)

	res := r.Resolve(context.Background(), "play music", nil)
	if res != (None{Reason: "attempts_exhausted"}) {
		t.Fatalf("resolution = %v, want attempts_exhausted", res)
	}
	if p.Calls() != 3 {
		t.Errorf("provider calls = %d, want 3", p.Calls())
	}
}

func TestResolve_SalvagesToolCallFromFinalError(t *testing.T) {
	errText := errors.New(`parse failure in model output: <function=play_music>{"query":"miles davis"}</function>`)
	p := &llmmock.Provider{CompleteErr: errText}
	r := newResolver(p, Config{MaxAttempts: 2, SalvageParsing: true}, nil)

	res := r.Resolve(context.Background(), "play miles davis", nil)
	call, ok := res.(Call)
	if !ok {
		t.Fatalf("resolution = %T, want salvaged Call", res)
	}
	if call.Tool.Name != "play_music" {
		t.Errorf("tool = %q, want play_music", call.Tool.Name)
	}
	if call.Tool.Arguments != `{"query":"miles davis"}` {
		t.Errorf("arguments = %q", call.Tool.Arguments)
	}
}

func TestResolve_SalvageDisabledByDefault(t *testing.T) {
	errText := errors.New(`<function=play_music>{"query":"jazz"}</function>`)
	p := &llmmock.Provider{CompleteErr: errText}
	r := newResolver(p, Config{MaxAttempts: 2}, nil)

	if res := r.Resolve(context.Background(), "play jazz", nil); res != (None{Reason: "attempts_exhausted"}) {
		t.Fatalf("resolution = %v, want attempts_exhausted with salvage off", res)
	}
}

func TestResolve_SalvageRejectsInvalidJSON(t *testing.T) {
	errText := errors.New(`<function=play_music>{"query":</function>`)
	p := &llmmock.Provider{CompleteErr: errText}
	r := newResolver(p, Config{MaxAttempts: 1, SalvageParsing: true}, nil)

	if res := r.Resolve(context.Background(), "play jazz", nil); res != (None{Reason: "attempts_exhausted"}) {
		t.Fatalf("resolution = %v, want attempts_exhausted for mangled payload", res)
	}
}

func TestResolve_KeepsFirstOfMultipleToolCalls(t *testing.T) {
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{
			{Name: "play_music", Arguments: "{}"},
			{Name: "control_volume", Arguments: "{}"},
		},
	}}
	r := newResolver(p, Config{}, nil)

	call, ok := r.Resolve(context.Background(), "play it loud", nil).(Call)
	if !ok {
		t.Fatal("expected Call resolution")
	}
	if call.Tool.Name != "play_music" {
		t.Errorf("tool = %q, want the first call kept", call.Tool.Name)
	}
}

func TestResolve_NoToolCallMeansNone(t *testing.T) {
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "just chatting"}}
	r := newResolver(p, Config{}, nil)

	res := r.Resolve(context.Background(), "hello there", nil)
	none, ok := res.(None)
	if !ok {
		t.Fatalf("resolution = %T, want None", res)
	}
	if none.Reason != "no_tool_call" {
		t.Errorf("reason = %q, want no_tool_call", none.Reason)
	}
}

func TestComplete_PlainText(t *testing.T) {
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "a haiku"}}
	r := newResolver(p, Config{}, nil)

	got, err := r.Complete(context.Background(), "write a haiku")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "a haiku" {
		t.Errorf("content = %q", got)
	}
	if len(p.CompleteCalls[0].Req.Tools) != 0 {
		t.Error("plain completion must not offer tools")
	}
}

func TestIsRateLimited(t *testing.T) {
	cases := []struct {
		err  string
		want bool
	}{
		{"HTTP 429 from upstream", true},
		{"Rate Limit exceeded", true},
		{"Too Many Requests", true},
		{"connection refused", false},
		{"model overloaded", false},
	}
	for _, tc := range cases {
		if got := isRateLimited(errors.New(tc.err)); got != tc.want {
			t.Errorf("isRateLimited(%q) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
