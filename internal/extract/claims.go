// Package extract turns fetched source content into structured evidence:
// atomic claims, thematic claim clusters, and granular information units.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/structured"
)

// ClaimExtractor extracts atomic claims from fetched items via one
// structured-generation call per source
type ClaimExtractor struct {
	provider  llm.Provider
	maxClaims int
}

// NewClaimExtractor creates a new claim extractor
func NewClaimExtractor(provider llm.Provider, maxClaims int) *ClaimExtractor {
	if maxClaims <= 0 {
		maxClaims = 10
	}
	return &ClaimExtractor{
		provider:  provider,
		maxClaims: maxClaims,
	}
}

// claimsResponse is the expected generation output shape
type claimsResponse struct {
	Claims []rawClaim `json:"claims"`
}

type rawClaim struct {
	Statement  string  `json:"statement"`
	Category   string  `json:"category"`
	Item       string  `json:"item"` // Symbolic tag: ITEM_0, ITEM_1, ...
	Excerpt    string  `json:"excerpt"`
	Confidence float64 `json:"confidence"`
}

// Extract runs one generation call for the source and returns its claims.
// A failed or unparsable call yields zero claims and an error the caller
// records; it never aborts the run.
func (e *ClaimExtractor) Extract(ctx context.Context, source model.Source, items []model.FetchedItem) ([]model.Claim, error) {
	if len(items) == 0 {
		return nil, nil
	}

	prompt := buildClaimsPrompt(source, items, e.maxClaims)

	resp, err := e.provider.Generate(ctx, llm.GenerateRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("generate claims for %s: %w", source.Name, err)
	}

	parsed, err := structured.Decode[claimsResponse](resp.Text)
	if err != nil {
		return nil, fmt.Errorf("parse claims for %s: %w", source.Name, err)
	}

	credibility := source.EffectiveCredibility()

	var claims []model.Claim
	for _, rc := range parsed.Claims {
		if len(claims) >= e.maxClaims {
			break
		}
		statement := strings.TrimSpace(rc.Statement)
		if statement == "" {
			continue
		}

		category := model.ClaimCategory(strings.ToLower(rc.Category))
		if !model.ValidClaimCategory(category) {
			category = model.ClaimFactual
		}

		item := resolveItemTag(rc.Item, items)

		claims = append(claims, model.Claim{
			Statement: statement,
			Category:  category,
			Source: model.SourceRef{
				SourceID:   source.ID,
				SourceName: source.Name,
				SourceURL:  source.URL,
				ItemTitle:  item.Title,
				ItemURL:    item.URL,
				Excerpt:    strings.TrimSpace(rc.Excerpt),
			},
			Confidence: model.Clamp01(model.Clamp01(rc.Confidence) * credibility),
		})
	}

	return claims, nil
}

// resolveItemTag maps an ITEM_n tag back to the fetched item. Unknown or
// malformed tags fall back to the first item.
func resolveItemTag(tag string, items []model.FetchedItem) model.FetchedItem {
	tag = strings.TrimSpace(strings.ToUpper(tag))
	if n, ok := parseItemIndex(tag); ok && n >= 0 && n < len(items) {
		return items[n]
	}
	return items[0]
}

func parseItemIndex(tag string) (int, bool) {
	const prefix = "ITEM_"
	if !strings.HasPrefix(tag, prefix) {
		return 0, false
	}
	n := 0
	digits := tag[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// buildClaimsPrompt lists the source's items under symbolic tags and asks for
// atomic, typed claims referencing them
func buildClaimsPrompt(source model.Source, items []model.FetchedItem, maxClaims int) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Extract atomic claims from content published by "%s".

An atomic claim is a single, self-contained assertion. Categories:
- factual: verifiable statement of fact
- statistical: numeric or measured statement
- causal: X causes or leads to Y
- predictive: forward-looking statement

Items:
`, source.Name)

	for i, item := range items {
		fmt.Fprintf(&b, "\nITEM_%d: %s\n", i, item.Title)
		text := item.Text()
		if len(text) > 1500 {
			text = text[:1500]
		}
		if text != "" {
			fmt.Fprintf(&b, "%s\n", text)
		}
	}

	fmt.Fprintf(&b, `
Return a JSON object:
{"claims": [{"statement": "...", "category": "factual", "item": "ITEM_0", "excerpt": "...", "confidence": 0.8}]}

Rules:
- At most %d claims total.
- "item" must be the tag of the item the claim came from.
- "excerpt" is a short quote supporting the claim.
- "confidence" is your certainty the claim is faithfully extracted (0-1).
`, maxClaims)

	return b.String()
}
