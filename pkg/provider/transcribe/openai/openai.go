// Package openai provides a Transcriber backed by the OpenAI audio
// transcription API (Whisper). Point it at an OpenAI-compatible endpoint
// such as Groq via WithBaseURL to use their hosted Whisper variants.
package openai

import (
	"context"
	"fmt"
	"os"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/earshot/pkg/provider/transcribe"
)

// Provider implements transcribe.Transcriber using the OpenAI audio API.
type Provider struct {
	client      oai.Client
	model       string
	language    string
	temperature float64
}

// Compile-time interface assertion.
var _ transcribe.Transcriber = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider, *[]option.RequestOption)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(_ *Provider, reqOpts *[]option.RequestOption) {
		*reqOpts = append(*reqOpts, option.WithBaseURL(url))
	}
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en").
// Empty lets the model auto-detect.
func WithLanguage(lang string) Option {
	return func(p *Provider, _ *[]option.RequestOption) {
		p.language = lang
	}
}

// New constructs a Transcriber that uploads clips to the given model
// (e.g., "whisper-1", "whisper-large-v3").
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	p := &Provider{model: model}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(p, &reqOpts)
	}

	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Transcribe implements transcribe.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, clipPath string) (string, error) {
	f, err := os.Open(clipPath)
	if err != nil {
		return "", fmt.Errorf("openai: open clip %q: %w", clipPath, err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
