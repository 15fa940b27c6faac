package synth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
)

// BriefGenerator writes a short plain-text brief for patterns that hold above
// a confidence floor. Cited URLs are restricted to the pattern's own evidence;
// any other URL in the output is stripped.
type BriefGenerator struct {
	provider llm.Provider
	floor    float64
}

// NewBriefGenerator creates a new issue brief generator
func NewBriefGenerator(provider llm.Provider, floor float64) *BriefGenerator {
	if floor <= 0 {
		floor = 0.6
	}
	return &BriefGenerator{
		provider: provider,
		floor:    floor,
	}
}

var urlPattern = regexp.MustCompile(`https?://[^\s)\]>"']+`)

// Generate returns a brief for the pattern, or "" when the pattern sits below
// the floor. Failure is non-fatal; callers record the error and omit the brief.
func (g *BriefGenerator) Generate(ctx context.Context, p model.Pattern) (string, error) {
	if p.Confidence < g.floor {
		return "", nil
	}

	resp, err := g.provider.Generate(ctx, llm.GenerateRequest{Prompt: buildBriefPrompt(p)})
	if err != nil {
		return "", fmt.Errorf("generate brief for %q: %w", p.Title, err)
	}

	brief := strings.TrimSpace(resp.Text)
	if brief == "" {
		return "", nil
	}
	return enforceCitations(brief, p.Sources), nil
}

// enforceCitations strips every URL not present in the evidence list. The
// model is asked to cite only provided URLs, but the output is not trusted.
func enforceCitations(brief string, sources []model.SourceRef) string {
	allowed := make(map[string]bool)
	for _, s := range sources {
		if s.ItemURL != "" {
			allowed[s.ItemURL] = true
		}
		if s.SourceURL != "" {
			allowed[s.SourceURL] = true
		}
	}

	return urlPattern.ReplaceAllStringFunc(brief, func(url string) string {
		if allowed[strings.TrimRight(url, ".,;")] || allowed[url] {
			return url
		}
		return "[citation removed]"
	})
}

func buildBriefPrompt(p model.Pattern) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Write a short issue brief (3-5 sentences, plain text, no headings) for this systemic pattern.

Title: %s
Type: %s
Description: %s

Evidence:
`, p.Title, p.Type, p.Description)

	for _, s := range p.Sources {
		fmt.Fprintf(&b, "- %s (%s): %s\n", s.ItemTitle, s.ItemURL, s.Excerpt)
	}

	b.WriteString(`
Rules:
- Cite only the URLs listed above; never invent a URL.
- State what the evidence shows, then why it suggests a systemic issue.
`)

	return b.String()
}
