package dispatch

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/earshot/pkg/provider/llm"
)

// overrideRule maps a spoken phrase directly to a tool call, bypassing LLM
// resolution. Matching is tried against the regex first, then fuzzily
// against the canonical phrase to absorb transcription noise.
type overrideRule struct {
	pattern   *regexp.Regexp
	canonical string
	call      llm.ToolCall
}

// fuzzyMaxDistance is the largest Levenshtein distance between normalized
// transcript and canonical phrase that still counts as a match.
const fuzzyMaxDistance = 3

// Overrides short-circuits a fixed set of phrases before resolution. These
// commands must work even when the LLM is down or hallucinating.
type Overrides struct {
	rules []overrideRule
}

// DefaultOverrides returns the built-in phrase table.
func DefaultOverrides() *Overrides {
	return &Overrides{rules: []overrideRule{
		{
			pattern:   regexp.MustCompile(`\bforget (our|this|the) conversation\b`),
			canonical: "forget our conversation",
			call:      llm.ToolCall{Name: "clear_session", Arguments: "{}"},
		},
		{
			pattern:   regexp.MustCompile(`\bstop (the )?music\b`),
			canonical: "stop the music",
			call:      llm.ToolCall{Name: "music_control", Arguments: `{"action":"stop"}`},
		},
		{
			pattern:   regexp.MustCompile(`\b(never ?mind|cancel that)\b`),
			canonical: "never mind",
			call:      llm.ToolCall{Name: "unknown_request", Arguments: `{"reason":"cancelled by user"}`},
		},
	}}
}

// Match checks transcript against the phrase table. The transcript is the
// raw transcription; normalization happens here.
func (o *Overrides) Match(transcript string) (llm.ToolCall, bool) {
	norm := normalize(transcript)
	if norm == "" {
		return llm.ToolCall{}, false
	}
	for _, rule := range o.rules {
		if rule.pattern.MatchString(norm) {
			return rule.call, true
		}
		if matchr.Levenshtein(norm, rule.canonical) <= fuzzyMaxDistance {
			return rule.call, true
		}
	}
	return llm.ToolCall{}, false
}

var nonWord = regexp.MustCompile(`[^a-z0-9 ]+`)
var spaces = regexp.MustCompile(`\s+`)

// normalize lowercases, strips punctuation and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWord.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
