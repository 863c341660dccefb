package genai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/LoopPipe/internal/agent"
)

// DefaultMaxCopyLength bounds a rewritten invite body in characters.
const DefaultMaxCopyLength = 320

const copySystemPrompt = `You write short invite messages for a tutoring platform.
Rewrite the draft invite body for the given audience and tone.
Rules: keep every fact from the draft, invent nothing, no links, no hashtags, no emoji,
at most two sentences, plain text only. Reply with the rewritten body and nothing else.`

// Copywriter adapts a TextGenerator to agent.Copywriter.
type Copywriter struct {
	gen       TextGenerator
	maxLength int
}

var _ agent.Copywriter = (*Copywriter)(nil)

// NewCopywriter wraps gen. maxLength <= 0 uses DefaultMaxCopyLength.
func NewCopywriter(gen TextGenerator, maxLength int) *Copywriter {
	if maxLength <= 0 {
		maxLength = DefaultMaxCopyLength
	}
	return &Copywriter{gen: gen, maxLength: maxLength}
}

// Name implements agent.Copywriter.
func (c *Copywriter) Name() string { return c.gen.Provider() }

// Rewrite implements agent.Copywriter.
func (c *Copywriter) Rewrite(ctx context.Context, req agent.CopyRequest) (string, error) {
	out, err := c.gen.GenerateText(ctx, copySystemPrompt, BuildCopyPrompt(req))
	if err != nil {
		return "", err
	}
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		return "", ErrGeneratedCopyEmpty
	}
	if n := utf8.RuneCountInString(out); n > c.maxLength {
		return "", fmt.Errorf("%w: %d > %d", ErrGeneratedTooLong, n, c.maxLength)
	}
	return out, nil
}

// BuildCopyPrompt renders the user prompt for a rewrite request.
func BuildCopyPrompt(req agent.CopyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Audience: invite sent by a %s\n", strings.ToLower(string(req.Persona)))
	fmt.Fprintf(&b, "Loop: %s\n", req.Loop)
	if req.Draft.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Draft.Tone)
	}
	if req.Context.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", req.Context.Subject)
	}
	if req.Context.Grade != "" {
		fmt.Fprintf(&b, "Grade: %s\n", req.Context.Grade)
	}
	fmt.Fprintf(&b, "Headline: %s\n", req.Draft.Headline)
	fmt.Fprintf(&b, "Draft body: %s\n", req.Draft.Body)
	if req.Draft.CTA != "" {
		fmt.Fprintf(&b, "Call to action (do not repeat): %s\n", req.Draft.CTA)
	}
	return b.String()
}
