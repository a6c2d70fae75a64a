// Package screen answers questions about what is currently on the display.
//
// A screenshot is captured with an external grabber (scrot on X11, grim on
// Wayland) and sent to a vision-capable OpenAI-compatible model together
// with the user's question.
package screen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Analyzer captures the screen and describes it.
type Analyzer interface {
	Analyze(ctx context.Context, question string) (string, error)
}

// VisionAnalyzer implements Analyzer against an OpenAI-compatible vision
// model.
type VisionAnalyzer struct {
	client  oai.Client
	model   string
	grabber []string
}

// Compile-time interface assertion.
var _ Analyzer = (*VisionAnalyzer)(nil)

// Option is a functional option for VisionAnalyzer.
type Option func(*VisionAnalyzer)

// WithGrabber overrides the screenshot argv. The output file path is
// appended as the final argument.
func WithGrabber(argv ...string) Option {
	return func(a *VisionAnalyzer) { a.grabber = argv }
}

// New creates a VisionAnalyzer. model must accept image input.
func New(apiKey, model string, opts ...Option) (*VisionAnalyzer, error) {
	if apiKey == "" {
		return nil, errors.New("screen: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("screen: model must not be empty")
	}
	a := &VisionAnalyzer{
		client:  oai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		grabber: []string{"scrot", "--overwrite"},
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Analyze grabs a screenshot and asks the model the given question about it.
func (a *VisionAnalyzer) Analyze(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		question = "Describe what is on the screen."
	}

	img, err := a.capture(ctx)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(question),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("screen: vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("screen: empty choices in vision response")
	}
	return resp.Choices[0].Message.Content, nil
}

// capture runs the grabber into a temp file and returns the PNG bytes.
func (a *VisionAnalyzer) capture(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "earshot-screen-*")
	if err != nil {
		return nil, fmt.Errorf("screen: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "shot.png")
	argv := append(append([]string{}, a.grabber...), path)
	if out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("screen: capture with %s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}

	img, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("screen: read screenshot: %w", err)
	}
	return img, nil
}
