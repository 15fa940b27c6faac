package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/structured"
)

// Critic is the second-pass reviewer that prunes and penalizes weak patterns.
// It fails open: when the call fails, patterns pass through unchanged.
type Critic struct {
	provider   llm.Provider
	claimLimit int
}

// NewCritic creates a new critique filter
func NewCritic(provider llm.Provider, claimLimit int) *Critic {
	if claimLimit <= 0 {
		claimLimit = 30
	}
	return &Critic{
		provider:   provider,
		claimLimit: claimLimit,
	}
}

type critiqueResponse struct {
	Reviews []rawReview `json:"reviews"`
}

type rawReview struct {
	Pattern              int      `json:"pattern"` // Index into the input pattern list
	Issues               []string `json:"issues"`
	Suggestions          []string `json:"suggestions"`
	ShouldRemove         bool     `json:"should_remove"`
	ConfidenceAdjustment float64  `json:"confidence_adjustment"`
}

// Refine critiques the patterns against the claims and applies the verdicts:
// removal, or a bounded confidence adjustment in [-0.3, +0.1]. Returns the
// surviving patterns and the count removed. On generation or parse failure
// the input passes through unmodified with the error returned for recording.
func (c *Critic) Refine(ctx context.Context, patterns []model.Pattern, claims []model.Claim) ([]model.Pattern, int, error) {
	if len(patterns) == 0 {
		return patterns, 0, nil
	}

	if len(claims) > c.claimLimit {
		claims = claims[:c.claimLimit]
	}
	prompt := buildCritiquePrompt(patterns, claims)

	resp, err := c.provider.Generate(ctx, llm.GenerateRequest{Prompt: prompt})
	if err != nil {
		return patterns, 0, fmt.Errorf("generate critique: %w", err)
	}

	parsed, err := structured.Decode[critiqueResponse](resp.Text)
	if err != nil {
		return patterns, 0, fmt.Errorf("parse critique: %w", err)
	}

	remove := make(map[int]bool)
	adjust := make(map[int]float64)
	for _, rv := range parsed.Reviews {
		if rv.Pattern < 0 || rv.Pattern >= len(patterns) {
			continue
		}
		if rv.ShouldRemove {
			remove[rv.Pattern] = true
			continue
		}
		adjust[rv.Pattern] = clampAdjustment(rv.ConfidenceAdjustment)
	}

	var out []model.Pattern
	removed := 0
	for i, p := range patterns {
		if remove[i] {
			removed++
			continue
		}
		if delta, ok := adjust[i]; ok {
			p.Confidence = model.Clamp01(p.Confidence + delta)
		}
		out = append(out, p)
	}
	return out, removed, nil
}

// clampAdjustment bounds a critique delta to [-0.3, +0.1]
func clampAdjustment(delta float64) float64 {
	if delta < -0.3 {
		return -0.3
	}
	if delta > 0.1 {
		return 0.1
	}
	return delta
}

func buildCritiquePrompt(patterns []model.Pattern, claims []model.Claim) string {
	var b strings.Builder

	b.WriteString(`Critique these candidate systemic-issue patterns against the evidence. Look for: claims that do not actually support the pattern, overgeneralization, missing nuance, and conflation of distinct issues.

Patterns:
`)
	for i, p := range patterns {
		fmt.Fprintf(&b, "%d. %s (%s, confidence %.2f): %s\n", i, p.Title, p.Type, p.Confidence, p.Description)
	}

	b.WriteString("\nEvidence claims:\n")
	for _, claim := range claims {
		fmt.Fprintf(&b, "- [%s] %s\n", claim.Source.SourceName, claim.Statement)
	}

	b.WriteString(`
Return a JSON object:
{"reviews": [{"pattern": 0, "issues": ["..."], "suggestions": ["..."], "should_remove": false, "confidence_adjustment": -0.1}]}

Rules:
- "pattern" is the numeric index from the list above.
- "confidence_adjustment" is between -0.3 and 0.1.
- Set "should_remove" only for patterns the evidence does not support at all.
`)

	return b.String()
}
