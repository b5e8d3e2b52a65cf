// Package synth turns a question plus retrieved code into an answer.
package synth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderOllama     = "ollama"
	ProviderExtractive = "extractive"
)

// MaxFollowUps is the most follow-up questions kept from an answer.
const MaxFollowUps = 3

// minFollowUpLength filters out fragments that are not real questions.
const minFollowUpLength = 10

// Answer is the synthesized reply.
type Answer struct {
	Text      string
	FollowUps []string
}

// Synthesizer generates answers. Implementations must honour ctx
// cancellation and must not retry on their own.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, question, codeContext string) (Answer, error)
	// Available reports whether the backend can currently be reached.
	Available(ctx context.Context) bool
}

// Options selects and configures a synthesizer.
type Options struct {
	Provider string
	Host     string
	Model    string
}

// New returns the synthesizer for opts.Provider.
func New(opts Options) (Synthesizer, error) {
	switch strings.ToLower(opts.Provider) {
	case "", ProviderOllama:
		return NewOllama(opts.Host, opts.Model), nil
	case ProviderExtractive:
		return NewExtractive(), nil
	default:
		return nil, fmt.Errorf("unknown synthesis provider %q", opts.Provider)
	}
}

const followUpMarker = "FOLLOW_UP:"

// thinkPattern matches the reasoning block some models prepend.
var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

const promptTemplate = `You are a senior engineer answering questions about a codebase.
Answer in the same language as the question. Use only the code below; if it
does not contain the answer, say so. Cite files as [path:start-end].

Code:
%s
Question: %s

After the answer write a line containing only FOLLOW_UP: and then up to three
short follow-up questions the user might ask next, one per line, without
numbering.

Answer:`

const noContextNote = "(no matching code was found in the index)\n"

// BuildPrompt renders the generation prompt.
func BuildPrompt(question, codeContext string) string {
	if strings.TrimSpace(codeContext) == "" {
		codeContext = noContextNote
	}
	return fmt.Sprintf(promptTemplate, codeContext, question)
}

// ParseAnswer splits raw model output into the answer text and its
// follow-up questions.
func ParseAnswer(raw string) Answer {
	raw = strings.TrimSpace(thinkPattern.ReplaceAllString(raw, ""))
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Answer:"))

	idx := strings.LastIndex(raw, followUpMarker)
	if idx < 0 {
		return Answer{Text: raw, FollowUps: []string{}}
	}
	text := strings.TrimSpace(raw[:idx])
	return Answer{Text: text, FollowUps: ParseFollowUps(raw[idx+len(followUpMarker):])}
}

// ParseFollowUps keeps up to MaxFollowUps lines longer than ten characters,
// with list markers removed.
func ParseFollowUps(section string) []string {
	out := []string{}
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.TrimSpace(line)
		if len([]rune(line)) <= minFollowUpLength {
			continue
		}
		out = append(out, line)
		if len(out) == MaxFollowUps {
			break
		}
	}
	return out
}
