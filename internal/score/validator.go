// Package score cross-validates synthesized patterns against the run's claims
// with a deterministic lexical heuristic. No generation calls; every number it
// produces is reproducible from its inputs and explained by a Signal.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mkravets/tectonic/internal/model"
)

// Minimum shared tokens between pattern text and a claim statement for the
// claim to count as supporting
const minSharedTokens = 3

// CrossValidator scores pattern support from claim overlap
type CrossValidator struct{}

// NewCrossValidator creates a new cross-validator
func NewCrossValidator() *CrossValidator {
	return &CrossValidator{}
}

// Validate scores each pattern against the claims. It returns the updated
// patterns plus the diagnostic signals. Pure function of its inputs.
func (v *CrossValidator) Validate(patterns []model.Pattern, claims []model.Claim) ([]model.Pattern, []model.Signal) {
	var signals []model.Signal

	out := make([]model.Pattern, 0, len(patterns))
	for _, p := range patterns {
		supporting := supportingClaims(p, claims)
		diversity := model.CountSourceDiversity(supporting)

		score := math.Min(1, float64(len(supporting))*0.1+float64(diversity)*0.2)
		prior := p.Confidence

		p.ClaimSupport = len(supporting)
		p.CrossValidation = score
		p.Confidence = math.Min(1, prior+score*0.2)
		p.Sources = mergeSources(p.Sources, supporting)

		signals = append(signals, model.Signal{
			Type:        model.SignalClaimSupport,
			Severity:    supportSeverity(len(supporting)),
			Description: fmt.Sprintf("%q supported by %d claims from %d sources", p.Title, len(supporting), diversity),
			Data: map[string]interface{}{
				"pattern":          p.Title,
				"supporting":       len(supporting),
				"source_diversity": diversity,
				"score":            score,
				"prior":            prior,
				"confidence":       p.Confidence,
				"formula":          "min(1, support*0.1 + diversity*0.2); conf = min(1, prior + score*0.2)",
			},
		})
		if len(supporting) == 0 {
			signals = append(signals, model.Signal{
				Type:        model.SignalLowSupport,
				Severity:    model.SeverityWarning,
				Description: fmt.Sprintf("%q has no lexically supporting claims", p.Title),
				Data:        map[string]interface{}{"pattern": p.Title},
			})
		}

		out = append(out, p)
	}

	return out, signals
}

// supportingClaims returns claims sharing at least minSharedTokens tokens with
// the pattern's title plus description
func supportingClaims(p model.Pattern, claims []model.Claim) []model.Claim {
	patternTokens := tokenSet(p.Title + " " + p.Description)

	var supporting []model.Claim
	for _, c := range claims {
		shared := 0
		for token := range tokenSet(c.Statement) {
			if patternTokens[token] {
				shared++
			}
		}
		if shared >= minSharedTokens {
			supporting = append(supporting, c)
		}
	}
	return supporting
}

// tokenSet lowercases and keeps tokens longer than 3 characters
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	}) {
		if len(token) > 3 {
			set[token] = true
		}
	}
	return set
}

// mergeSources appends item-level references from supporting claims,
// deduplicated by item URL, sorted for reproducible output
func mergeSources(existing []model.SourceRef, supporting []model.Claim) []model.SourceRef {
	seen := make(map[string]bool)
	out := make([]model.SourceRef, 0, len(existing)+len(supporting))
	for _, s := range existing {
		if s.ItemURL != "" && seen[s.ItemURL] {
			continue
		}
		seen[s.ItemURL] = true
		out = append(out, s)
	}

	var added []model.SourceRef
	for _, c := range supporting {
		ref := c.Source
		if ref.ItemURL != "" && seen[ref.ItemURL] {
			continue
		}
		seen[ref.ItemURL] = true
		added = append(added, ref)
	}
	sort.Slice(added, func(i, j int) bool { return added[i].ItemURL < added[j].ItemURL })

	return append(out, added...)
}

func supportSeverity(count int) model.SignalSeverity {
	switch {
	case count == 0:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}
