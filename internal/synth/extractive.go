package synth

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
)

var blockHeader = regexp.MustCompile(`(?m)^\[([^\]\n]+):(\d+)-(\d+)\]$`)

// maxExcerptLines bounds the lines quoted per block.
const maxExcerptLines = 6

// Extractive answers without a model by quoting the retrieved code. It is
// the offline provider and never fails.
type Extractive struct{}

// NewExtractive returns the offline synthesizer.
func NewExtractive() *Extractive { return &Extractive{} }

// Name implements Synthesizer.
func (Extractive) Name() string { return ProviderExtractive }

// Available implements Synthesizer.
func (Extractive) Available(context.Context) bool { return true }

// Synthesize implements Synthesizer.
func (Extractive) Synthesize(ctx context.Context, question, codeContext string) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}

	blocks := splitBlocks(codeContext)
	if len(blocks) == 0 {
		return Answer{
			Text:      "No code in the index matches this question. Try naming a class or a file.",
			FollowUps: []string{},
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The most relevant code for %q:\n", question)
	for _, blk := range blocks {
		fmt.Fprintf(&b, "\n[%s]\n", blk.ref)
		for _, line := range excerpt(blk.body) {
			b.WriteString("    " + line + "\n")
		}
	}

	followUps := []string{}
	seen := map[string]bool{}
	for _, blk := range blocks {
		name := path.Base(blk.file)
		if seen[name] {
			continue
		}
		seen[name] = true
		followUps = append(followUps, fmt.Sprintf("What else uses %s?", name))
		if len(followUps) == MaxFollowUps {
			break
		}
	}
	return Answer{Text: strings.TrimRight(b.String(), "\n"), FollowUps: followUps}, nil
}

type block struct {
	ref  string
	file string
	body string
}

func splitBlocks(codeContext string) []block {
	locs := blockHeader.FindAllStringSubmatchIndex(codeContext, -1)
	blocks := make([]block, 0, len(locs))
	for i, loc := range locs {
		end := len(codeContext)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		blocks = append(blocks, block{
			ref:  codeContext[loc[0]+1 : loc[1]-1],
			file: codeContext[loc[2]:loc[3]],
			body: strings.TrimSpace(codeContext[loc[1]:end]),
		})
	}
	return blocks
}

func excerpt(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, strings.TrimRight(line, " \t\r"))
		if len(out) == maxExcerptLines {
			break
		}
	}
	return out
}
